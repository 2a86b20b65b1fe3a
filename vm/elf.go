package vm

import (
	"bytes"
	"debug/elf"

	"rvos/defs"
	"rvos/mem"
	"rvos/util"
)

/// FromELF parses a RISC-V64 ELF image, maps its LOAD segments, and lays
/// out the user stack and kernel-stack/TrapContext page for a brand new
/// task (§4.2, §4.6). It returns the address space, the entry point, and
/// the initial user stack pointer.
func FromELF(image []byte, asid defs.Pid_t) (*AddressSpace_t, uint64, uint64, defs.Err_t) {
	f, ferr := elf.NewFile(bytes.NewReader(image))
	if ferr != nil {
		return nil, 0, 0, defs.ENOEXEC
	}
	defer f.Close()
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, 0, 0, defs.ENOEXEC
	}

	as, err := NewAddressSpace(asid)
	if err != 0 {
		return nil, 0, 0, err
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := as.mapSegment(prog); err != 0 {
			as.Drop()
			return nil, 0, 0, err
		}
	}

	ustackTop := USER_STACK_TOP
	if err := as.MapRegion(ustackTop-USER_STACK_SIZE, USER_STACK_SIZE/mem.PGSIZE,
		mem.PTE_R|mem.PTE_W|mem.PTE_U, true); err != 0 {
		as.Drop()
		return nil, 0, 0, err
	}
	if err := as.MapRegion(KERNEL_STACK_VA, 1, mem.PTE_R|mem.PTE_W, true); err != 0 {
		as.Drop()
		return nil, 0, 0, err
	}

	cx := AppInitContext(f.Entry, uint64(ustackTop))
	*as.TrapContext() = cx

	return as, f.Entry, uint64(ustackTop), 0
}

func (as *AddressSpace_t) mapSegment(prog *elf.Prog) defs.Err_t {
	perm := mem.PTE_U
	if prog.Flags&elf.PF_R != 0 {
		perm |= mem.PTE_R
	}
	if prog.Flags&elf.PF_W != 0 {
		perm |= mem.PTE_W
	}
	if prog.Flags&elf.PF_X != 0 {
		perm |= mem.PTE_X
	}
	start := util.Rounddown(int(prog.Vaddr), mem.PGSIZE)
	end := util.Roundup(int(prog.Vaddr+prog.Memsz), mem.PGSIZE)
	pages := (end - start) / mem.PGSIZE
	if err := as.MapRegion(start, pages, perm, true); err != 0 {
		return err
	}

	data := make([]byte, prog.Filesz)
	if prog.Filesz > 0 {
		if _, rerr := prog.ReadAt(data, 0); rerr != nil {
			return defs.EIO
		}
	}
	return as.writeEager(int(prog.Vaddr), data)
}

// writeEager copies data into pages that were just allocated by MapRegion
// (and are therefore known to be both mapped and writable from the kernel
// side, regardless of the segment's user-facing W permission — the loader
// installs file contents before the first instruction ever runs).
func (as *AddressSpace_t) writeEager(va int, data []byte) defs.Err_t {
	for len(data) > 0 {
		pa, ok := as.Translate(va)
		if !ok {
			return defs.ENOEXEC
		}
		bpg := mem.Physmem.Dmap8(pa)
		n := copy(bpg, data)
		data = data[n:]
		va += n
	}
	return 0
}
