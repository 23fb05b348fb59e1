// Package buf maps byte-granular disk objects onto the device's I/O units.
//
// A Buf covers the run of whole units that contains an object. Loading a Buf
// reads those units; installing new object bytes splices them into the run so
// the bytes of the first and last unit that lie outside the object are
// preserved when the run is written back.
package buf

import (
	"fmt"

	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/disk"
	"github.com/mit-pdos/naivefs/util"
)

// A Buf is an object of Sz bytes at byte offset Off, backed by the aligned
// units [Start, Start+Nunit).
type Buf struct {
	Off   uint64
	Sz    uint64
	Start uint64 // first unit
	Nunit uint64
	Data  []byte // the object's bytes, a view into blk
	blk   []byte
	dirty bool
}

func ioErr(err error) error {
	return fmt.Errorf("%w: %v", common.ErrIO, err)
}

func mkBuf(d disk.Disk, off uint64, sz uint64) *Buf {
	usz := d.UnitSize()
	aligned := util.AlignDown(off, usz)
	bias := off - aligned
	nunit := util.RoundUp(bias+sz, usz)
	blk := make([]byte, nunit*usz)
	return &Buf{
		Off:   off,
		Sz:    sz,
		Start: aligned / usz,
		Nunit: nunit,
		Data:  blk[bias : bias+sz],
		blk:   blk,
		dirty: false,
	}
}

// MkBuf makes a zeroed Buf for the object without reading the device; only
// safe when the object covers its units exactly.
func MkBuf(d disk.Disk, off uint64, sz uint64) *Buf {
	return mkBuf(d, off, sz)
}

// MkBufLoad reads the units holding the object at off into a new Buf
func MkBufLoad(d disk.Disk, off uint64, sz uint64) (*Buf, error) {
	b := mkBuf(d, off, sz)
	usz := d.UnitSize()
	for i := uint64(0); i < b.Nunit; i++ {
		if err := d.ReadTo(b.Start+i, b.blk[i*usz:(i+1)*usz]); err != nil {
			return nil, ioErr(err)
		}
	}
	util.DPrintf(15, "load: off %d sz %d units %d+%d\n", off, sz, b.Start, b.Nunit)
	return b, nil
}

// Aligned reports whether the object starts and ends on unit boundaries.
func (b *Buf) Aligned() bool {
	return uint64(len(b.Data)) == uint64(len(b.blk))
}

// Install copies src over the object's bytes.
func (b *Buf) Install(src []byte) {
	if uint64(len(src)) != b.Sz {
		panic(fmt.Errorf("install of %d bytes into %d-byte object", len(src), b.Sz))
	}
	copy(b.Data, src)
	b.SetDirty()
}

func (b *Buf) IsDirty() bool {
	return b.dirty
}

func (b *Buf) SetDirty() {
	b.dirty = true
}

// WriteDirect writes every unit of the Buf to d.
func (b *Buf) WriteDirect(d disk.Disk) error {
	usz := d.UnitSize()
	if wb, ok := d.(disk.DiskWriteBatch); ok && b.Nunit > 1 {
		units := make([]disk.Block, b.Nunit)
		for i := range units {
			units[i] = b.blk[uint64(i)*usz : uint64(i+1)*usz]
		}
		if err := wb.WriteBatch(b.Start, units); err != nil {
			return ioErr(err)
		}
	} else {
		for i := uint64(0); i < b.Nunit; i++ {
			if err := d.Write(b.Start+i, b.blk[i*usz:(i+1)*usz]); err != nil {
				return ioErr(err)
			}
		}
	}
	b.dirty = false
	util.DPrintf(15, "write: off %d sz %d units %d+%d\n", b.Off, b.Sz, b.Start, b.Nunit)
	return nil
}

// Read returns sz bytes starting at byte offset off.
func Read(d disk.Disk, off uint64, sz uint64) ([]byte, error) {
	b, err := MkBufLoad(d, off, sz)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

// Write stores data at byte offset off, preserving the surrounding bytes of
// any partially covered unit.
func Write(d disk.Disk, off uint64, data []byte) error {
	sz := uint64(len(data))
	b := MkBuf(d, off, sz)
	if !b.Aligned() {
		var err error
		b, err = MkBufLoad(d, off, sz)
		if err != nil {
			return err
		}
	}
	b.Install(data)
	return b.WriteDirect(d)
}
