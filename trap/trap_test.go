package trap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCauseStringNamesKnownCauses(t *testing.T) {
	require.Equal(t, "UserEnvCall", UserEnvCall.String())
	require.Equal(t, "StoreFault", StoreFault.String())
	require.Equal(t, "StorePageFault", StorePageFault.String())
	require.Equal(t, "LoadFault", LoadFault.String())
	require.Equal(t, "LoadPageFault", LoadPageFault.String())
	require.Equal(t, "IllegalInstruction", IllegalInstruction.String())
	require.Equal(t, "SupervisorTimer", SupervisorTimer.String())
	require.Equal(t, "Unknown", Cause(999).String())
}

func TestIsFatalFaultClassifiesFaultsOnly(t *testing.T) {
	fatal := []Cause{StoreFault, StorePageFault, LoadFault, LoadPageFault, IllegalInstruction}
	for _, c := range fatal {
		require.True(t, c.IsFatalFault(), c.String())
	}
	nonFatal := []Cause{UserEnvCall, SupervisorTimer}
	for _, c := range nonFatal {
		require.False(t, c.IsFatalFault(), c.String())
	}
}

// killSite exists so every call in TestKillTaskDedupesRepeatedCallChain
// shares the identical call chain into KillTask; the dedup is keyed on the
// whole chain of return addresses, including the test's own call site, so
// the test calls killSite from a single line inside a loop — calling it (or
// KillTask directly) from a different line per call would defeat the point
// of the test.
func killSite(taskID int, cause Cause) {
	KillTask(taskID, cause)
}

// TestKillTaskDedupesRepeatedCallChain exercises caller.Distinct_caller_t's
// role in KillTask (§4.5: "log; kill current task"): the first kill from a
// given call chain is novel, every later kill along the identical chain is
// not — matching a demo program that keeps faulting the same way without
// flooding the log with identical stack traces.
func TestKillTaskDedupesRepeatedCallChain(t *testing.T) {
	before := killDistinct.Len()

	var lens [2]int
	for i := range lens {
		killSite(i+1, StoreFault)
		lens[i] = killDistinct.Len()
	}
	afterFirst, afterSecond := lens[0], lens[1]
	require.Equal(t, before+1, afterFirst, "first kill from this call chain should be novel")
	require.Equal(t, afterFirst, afterSecond, "repeat kill from the identical call chain should not add a new entry")
}
