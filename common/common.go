package common

import (
	"syscall"
)

const (
	MAXNAMELEN  uint64 = 128 // on-disk name field
	NBLKPTR     uint64 = 6   // data-block pointers per inode
	NINOPERFILE uint64 = 1

	SUPEROFF uint64 = 0 // byte offset of the superblock

	// Blocks are two device I/O units.
	IOPERBLK uint64 = 2

	MAGIC uint32 = 0x114514

	DEFAULTPERM uint32 = 0777
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = ^Bnum(0)
)

type Ftype uint64

const (
	FILE Ftype = iota
	DIR
)

func (t Ftype) String() string {
	switch t {
	case FILE:
		return "file"
	case DIR:
		return "dir"
	}
	return "unknown"
}

// Error kinds; operations return these (possibly wrapped) so the host bridge
// can recover the errno with errors.As.
const (
	ErrIO          = syscall.EIO
	ErrNoSpace     = syscall.ENOSPC
	ErrNotFound    = syscall.ENOENT
	ErrExists      = syscall.EEXIST
	ErrNotDir      = syscall.ENOTDIR
	ErrUnsupported = syscall.ENXIO
	ErrIsDir       = syscall.EISDIR
	ErrNotEmpty    = syscall.ENOTEMPTY
	ErrNameTooLong = syscall.ENAMETOOLONG
	ErrInvalid     = syscall.EINVAL
	ErrBusy        = syscall.EBUSY
)
