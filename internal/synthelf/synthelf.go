// Package synthelf builds minimal, valid RISC-V64 ELF executables in
// memory. This kernel's "user programs" are Go closures rather than
// compiled machine code (proc package doc), so the bytes vm.FromELF maps
// into an address space never need to contain real instructions — only a
// well-formed ELF64 header and one PT_LOAD segment debug/elf can parse,
// so the Sv39 mapping and ELF-loading code in vm runs against a real
// image instead of a hand-rolled shortcut. Used by cmd/rvos-sim to
// register its demo programs and by proc's tests to exercise fork/exec.
package synthelf

import "encoding/binary"

const (
	elfHeaderSize = 64
	phdrSize      = 56

	etExec  = 2
	emRiscv = 243
	ptLoad  = 1
	pfX     = 1 << 0
	pfW     = 1 << 1
	pfR     = 1 << 2
)

/// BaseVaddr is the virtual address every synthesized image's single
/// segment (and entry point) starts at.
const BaseVaddr = 0x10000

/// Minimal returns a valid ELF64/RISC-V executable with one PT_LOAD
/// segment of segSize bytes (rounded up to at least 16), readable,
/// writable, and executable, entered at BaseVaddr.
func Minimal(segSize int) []byte {
	if segSize < 16 {
		segSize = 16
	}
	total := elfHeaderSize + phdrSize + segSize
	buf := make([]byte, total)

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], etExec)
	le.PutUint16(buf[18:20], emRiscv)
	le.PutUint32(buf[20:24], 1) // e_version
	le.PutUint64(buf[24:32], BaseVaddr) // e_entry
	le.PutUint64(buf[32:40], elfHeaderSize) // e_phoff
	le.PutUint64(buf[40:48], 0) // e_shoff
	le.PutUint32(buf[48:52], 0) // e_flags
	le.PutUint16(buf[52:54], elfHeaderSize) // e_ehsize
	le.PutUint16(buf[54:56], phdrSize) // e_phentsize
	le.PutUint16(buf[56:58], 1) // e_phnum
	le.PutUint16(buf[58:60], 0) // e_shentsize
	le.PutUint16(buf[60:62], 0) // e_shnum
	le.PutUint16(buf[62:64], 0) // e_shstrndx

	ph := buf[elfHeaderSize : elfHeaderSize+phdrSize]
	le.PutUint32(ph[0:4], ptLoad)
	le.PutUint32(ph[4:8], pfR|pfW|pfX)
	le.PutUint64(ph[8:16], elfHeaderSize+phdrSize) // p_offset
	le.PutUint64(ph[16:24], BaseVaddr)             // p_vaddr
	le.PutUint64(ph[24:32], BaseVaddr)             // p_paddr
	le.PutUint64(ph[32:40], uint64(segSize))       // p_filesz
	le.PutUint64(ph[40:48], uint64(segSize))       // p_memsz
	le.PutUint64(ph[48:56], 0x1000)                // p_align

	return buf
}
