package vm

import "rvos/mem"

// Sv39 has three levels of 512-entry (9-bit index) tables below the 12-bit
// page offset (riscv-privileged §4.4). PTE_ADDR reuses mem.PGMASK: like the
// teacher's x86 PTEs, we store the frame's page-aligned address directly in
// the high bits rather than shifting a bare PPN into a PPN-field, since
// nothing below this package ever decodes these bits except this package.
const (
	vpnBits  = 9
	vpnMask  = (1 << vpnBits) - 1
	PTE_ADDR = mem.PGMASK
)

// vpn splits a page-aligned virtual address into its three Sv39 indices,
// vpn[2] being the root-table index.
func vpnOf(va int) [3]int {
	p := va >> int(mem.PGSHIFT)
	return [3]int{
		p & vpnMask,
		(p >> vpnBits) & vpnMask,
		(p >> (2 * vpnBits)) & vpnMask,
	}
}

func pteValid(pte mem.Pa_t) bool {
	return pte&mem.PTE_V != 0
}

func pteAddr(pte mem.Pa_t) mem.Pa_t {
	return pte & PTE_ADDR
}

func pageAt(pa mem.Pa_t) *mem.Pmap_t {
	pg := mem.Physmem.Dmap(pa)
	return mem.Pg2pmap(pg)
}
