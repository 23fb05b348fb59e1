// Package super holds the superblock record and the disk layout it
// describes:
//
//	| Super | Inode Bitmap | Data Bitmap | Inode | Data |
//
// A block is two device I/O units; each inode occupies one block.
package super

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/naivefs/addr"
	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/inode"
	"github.com/mit-pdos/naivefs/util"
)

// SUPERSZ is the encoded size of the superblock record.
const SUPERSZ uint64 = 4 + 11*8

// Super is the on-disk superblock. Offsets are byte offsets from the start of
// the device.
type Super struct {
	Magic        uint32 `yaml:"magic"`
	Usage        uint64 `yaml:"usage"`
	MaxIno       uint64 `yaml:"max_ino"`
	MaxData      uint64 `yaml:"max_data"`
	MapInodeBlks uint64 `yaml:"map_inode_blks"`
	MapInodeOff  uint64 `yaml:"map_inode_offset"`
	MapDataBlks  uint64 `yaml:"map_data_blks"`
	MapDataOff   uint64 `yaml:"map_data_offset"`
	InodeOff     uint64 `yaml:"inode_offset"`
	DataOff      uint64 `yaml:"data_offset"`
	DiskSize     uint64 `yaml:"size_disk"`
	IOSize       uint64 `yaml:"size_io"`
}

func (s *Super) Encode() []byte {
	enc := marshal.NewEnc(SUPERSZ)
	enc.PutInt32(s.Magic)
	enc.PutInt(s.Usage)
	enc.PutInt(s.MaxIno)
	enc.PutInt(s.MaxData)
	enc.PutInt(s.MapInodeBlks)
	enc.PutInt(s.MapInodeOff)
	enc.PutInt(s.MapDataBlks)
	enc.PutInt(s.MapDataOff)
	enc.PutInt(s.InodeOff)
	enc.PutInt(s.DataOff)
	enc.PutInt(s.DiskSize)
	enc.PutInt(s.IOSize)
	return enc.Finish()
}

func Decode(b []byte) *Super {
	dec := marshal.NewDec(b)
	s := &Super{}
	s.Magic = dec.GetInt32()
	s.Usage = dec.GetInt()
	s.MaxIno = dec.GetInt()
	s.MaxData = dec.GetInt()
	s.MapInodeBlks = dec.GetInt()
	s.MapInodeOff = dec.GetInt()
	s.MapDataBlks = dec.GetInt()
	s.MapDataOff = dec.GetInt()
	s.InodeOff = dec.GetInt()
	s.DataOff = dec.GetInt()
	s.DiskSize = dec.GetInt()
	s.IOSize = dec.GetInt()
	return s
}

// Initialized reports whether the record carries the file system's magic.
func (s *Super) Initialized() bool {
	return s.Magic == common.MAGIC
}

// MkLayout computes a fresh layout for a device of diskSize bytes with an I/O
// unit of ioSize bytes.
func MkLayout(diskSize uint64, ioSize uint64) (*Super, error) {
	blksz := ioSize * common.IOPERBLK
	nblocks := diskSize / blksz
	superBlks := util.RoundUp(SUPERSZ, blksz)
	// assume every file uses all of its block pointers
	inodeNum := diskSize / ((common.NBLKPTR + common.NINOPERFILE) * blksz)
	mapInodeBlks := util.RoundUp(inodeNum, blksz)
	inodeBlks := inodeNum
	used := superBlks + inodeBlks + mapInodeBlks
	if inodeNum == 0 || used >= nblocks {
		return nil, fmt.Errorf("device of %d bytes is too small: %w",
			diskSize, common.ErrNoSpace)
	}
	remain := nblocks - used
	mapDataBlks := util.RoundUp(remain, blksz)
	if mapDataBlks >= remain {
		return nil, fmt.Errorf("device of %d bytes is too small: %w",
			diskSize, common.ErrNoSpace)
	}
	remain -= mapDataBlks

	s := &Super{
		Magic:        common.MAGIC,
		Usage:        0,
		MaxIno:       inodeNum,
		MaxData:      remain,
		MapInodeBlks: mapInodeBlks,
		MapDataBlks:  mapDataBlks,
		DiskSize:     diskSize,
		IOSize:       ioSize,
	}
	s.MapInodeOff = common.SUPEROFF + superBlks*blksz
	s.MapDataOff = s.MapInodeOff + mapInodeBlks*blksz
	s.InodeOff = s.MapDataOff + mapDataBlks*blksz
	s.DataOff = s.InodeOff + inodeNum*blksz
	util.DPrintf(1, "MkLayout: %d blocks: %d inodes, %d data blocks\n",
		nblocks, inodeNum, remain)
	return s, nil
}

// Check verifies that a recovered layout fits on a device of diskSize bytes.
func (s *Super) Check(diskSize uint64, ioSize uint64) error {
	blksz := ioSize * common.IOPERBLK
	if s.DataOff+s.MaxData*blksz > diskSize ||
		s.MapInodeBlks*blksz*8 < s.MaxIno ||
		s.MapDataBlks*blksz*8 < s.MaxData ||
		s.InodeOff+s.MaxIno*blksz > s.DataOff {
		return fmt.Errorf("superblock does not fit device (%d bytes, unit %d): %w",
			diskSize, ioSize, common.ErrInvalid)
	}
	return nil
}

// Geometry is the derived, in-memory view of a layout on a particular
// device.
type Geometry struct {
	*Super
	BlkSz     uint64
	NBlocks   uint64
	MaxDentry uint64
}

func MkGeometry(s *Super, diskSize uint64, ioSize uint64) *Geometry {
	blksz := ioSize * common.IOPERBLK
	return &Geometry{
		Super:     s,
		BlkSz:     blksz,
		NBlocks:   diskSize / blksz,
		MaxDentry: blksz / inode.DENTRYSZ,
	}
}

func (g *Geometry) blkno(off uint64) common.Bnum {
	return common.Bnum(off / g.BlkSz)
}

// InodeAddr is where inode ino's record lives.
func (g *Geometry) InodeAddr(ino common.Inum) addr.Addr {
	return addr.MkAddr(g.blkno(g.InodeOff)+common.Bnum(ino), 0)
}

// DataAddr is where data block bno starts.
func (g *Geometry) DataAddr(bno common.Bnum) addr.Addr {
	return addr.MkAddr(g.blkno(g.DataOff)+bno, 0)
}

// DentryAddr is where slot n of data block bno lives.
func (g *Geometry) DentryAddr(bno common.Bnum, n uint64) addr.Addr {
	return addr.MkSlotAddr(g.blkno(g.DataOff)+bno, n, inode.DENTRYSZ, g.BlkSz)
}

// MapInodeBytes and MapDataBytes are the sizes of the two bitmap regions.
func (g *Geometry) MapInodeBytes() uint64 {
	return g.MapInodeBlks * g.BlkSz
}

func (g *Geometry) MapDataBytes() uint64 {
	return g.MapDataBlks * g.BlkSz
}
