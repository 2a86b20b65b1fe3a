package proc

import "rvos/hashtable"

/// registryBuckets sizes the ELF registry's hashtable. A teaching kernel
/// never loads more than a handful of distinct programs, so this is
/// generous headroom rather than a tuned figure.
const registryBuckets = 64

/// Program_t is one entry in the ELF registry: the real ELF bytes vm.FromELF
/// maps into a fresh address space (so Sv39 mapping and ELF parsing run for
/// real, §4.2), paired with the Go closure that stands in for what the
/// compiled image would actually execute (§4.4 — this kernel's user
/// programs are closures rather than RISC-V instructions the kernel would
/// need an emulator to run; see proc package doc).
type Program_t struct {
	ELF  []byte
	Body func(*Task_t)
}

/// Registry_t is the kernel's ELF registry (§4.4): a name -> Program_t
/// table that exec, spawn, and run_initproc consult to load a program
/// without any notion of a host filesystem path. Grounded on the teacher's
/// hashtable.Hashtable_t, which already gives lock-free reads under
/// concurrent lookups — useful here since exec/spawn can run from several
/// tasks' dispatch paths without serializing on a single mutex.
type Registry_t struct {
	ht *hashtable.Hashtable_t
}

/// NewRegistry returns an empty ELF registry.
func NewRegistry() *Registry_t {
	return &Registry_t{ht: hashtable.MkHash(registryBuckets)}
}

/// Register associates name with prog. Re-registering an already-known
/// name panics — the registry is a boot-time table built once, not a
/// mutable program store.
func (r *Registry_t) Register(name string, prog Program_t) {
	if _, inserted := r.ht.Set(name, prog); !inserted {
		panic("proc: program already registered: " + name)
	}
}

/// Lookup returns the Program_t registered under name, or ok=false.
func (r *Registry_t) Lookup(name string) (Program_t, bool) {
	v, ok := r.ht.Get(name)
	if !ok {
		return Program_t{}, false
	}
	return v.(Program_t), true
}
