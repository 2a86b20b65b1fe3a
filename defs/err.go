package defs

import "fmt"

/// Err_t is a kernel error code. Zero means success; the errno constants
/// are positive, and Rc negates them into the negative value a RISC-V
/// syscall ABI returns in x10. FS-internal errors below reuse the same type so they flow
/// unchanged from fs up through syscall return values (§7 of the spec).
type Err_t int

const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	E2BIG        Err_t = 7
	ENOEXEC      Err_t = 8
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EACCES       Err_t = 13
	EFAULT       Err_t = 14
	ENOTBLK      Err_t = 15
	EBUSY        Err_t = 16
	EEXIST       Err_t = 17
	ENODEV       Err_t = 19
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	ENOSPC       Err_t = 28
	ENOTEMPTY    Err_t = 39
	ENAMETOOLONG Err_t = 36
	ENOHEAP      Err_t = 100 /// kernel ran out of accounting budget for a user copy loop
)

/// String renders the error using the conventional "E..." name when known.
func (e Err_t) String() string {
	switch e {
	case 0:
		return "success"
	case EPERM:
		return "EPERM"
	case ENOENT:
		return "ENOENT"
	case ESRCH:
		return "ESRCH"
	case EINTR:
		return "EINTR"
	case EIO:
		return "EIO"
	case E2BIG:
		return "E2BIG"
	case ENOEXEC:
		return "ENOEXEC"
	case EBADF:
		return "EBADF"
	case ECHILD:
		return "ECHILD"
	case EAGAIN:
		return "EAGAIN"
	case ENOMEM:
		return "ENOMEM"
	case EACCES:
		return "EACCES"
	case EFAULT:
		return "EFAULT"
	case EBUSY:
		return "EBUSY"
	case EEXIST:
		return "EEXIST"
	case ENODEV:
		return "ENODEV"
	case ENOTDIR:
		return "ENOTDIR"
	case EISDIR:
		return "EISDIR"
	case EINVAL:
		return "EINVAL"
	case ENOSPC:
		return "ENOSPC"
	case ENOTEMPTY:
		return "ENOTEMPTY"
	case ENAMETOOLONG:
		return "ENAMETOOLONG"
	case ENOHEAP:
		return "ENOHEAP"
	default:
		return fmt.Sprintf("Err_t(%d)", int(e))
	}
}

/// Rc converts the error into the negative isize a syscall returns to
/// userspace, or 0 for success (§4.5/§7).
func (e Err_t) Rc() int {
	if e == 0 {
		return 0
	}
	return -int(e)
}
