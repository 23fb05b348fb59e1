package addr

import (
	"github.com/mit-pdos/naivefs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, counted from the start of
// the device, and Off is the location of the object within the block
// (expressed as a byte offset). The size of the object is determined by the
// context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

// Flatid returns the byte offset of a on a device with blocks of blksz bytes.
func (a Addr) Flatid(blksz uint64) uint64 {
	return uint64(a.Blkno)*blksz + a.Off
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkSlotAddr addresses the n-th sz-byte record of a region that starts at
// block start, packing as many records into each block as fit.
func MkSlotAddr(start common.Bnum, n uint64, sz uint64, blksz uint64) Addr {
	per := blksz / sz
	i := n / per
	return MkAddr(start+common.Bnum(i), (n%per)*sz)
}
