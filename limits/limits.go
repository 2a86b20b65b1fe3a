// Package limits holds the handful of system-wide resource ceilings this
// kernel tracks. Only the task ceiling (Sysprocs) is enforced, by proc's
// PID allocator; the EasyFS cache-block and open-inode ceilings are
// recorded here but not consulted by fs. Adapted from biscuit's
// Syslimit_t, stripped of the networking/futex/arp counters that have no
// counterpart in a kernel with no networking stack (§1 non-goals).
package limits

import "sync/atomic"

/// Sysatomic_t is an atomically adjustable resource budget: positive means
/// budget remaining, and Taken fails (without going negative) once it's
/// exhausted.
type Sysatomic_t int64

/// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	// maximum live TaskControlBlocks
	Sysprocs Sysatomic_t
	// EasyFS block-cache capacity in blocks (§4.7 CACHE_CAP)
	CacheBlocks Sysatomic_t
	// EasyFS open-inode table capacity
	OpenInodes Sysatomic_t
}

/// Syslimit holds the process-wide limits in effect: MkSysLimit's
/// defaults, which nothing overrides at boot.
var Syslimit = MkSysLimit()

/// MkSysLimit returns the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs:    1024,
		CacheBlocks: 64,
		OpenInodes:  4096,
	}
}

// Taken decrements the limit by n, refusing (and leaving the limit
// unchanged) if that would drive it negative.
func (s *Sysatomic_t) Taken(n uint) bool {
	d := int64(n)
	if atomic.AddInt64((*int64)(s), -d) >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), d)
	return false
}

/// Take decrements the limit by one, reporting success.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Given increases the limit by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

/// Give increases the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

/// Value returns the current remaining budget.
func (s *Sysatomic_t) Value() int64 {
	return atomic.LoadInt64((*int64)(s))
}
