package defs

// FS-surfaced errors (§7), named exactly as the spec's taxonomy so callers
// and tests can use the spec's own vocabulary instead of raw errno numbers.
const (
	ErrAlreadyExists    = EEXIST
	ErrAllocInodeFailed = ENOSPC
	ErrIsDir            = EISDIR
	ErrIsFile           = ENOTDIR
	ErrNotEmpty         = ENOTEMPTY
	ErrNotFound         = ENOENT
)
