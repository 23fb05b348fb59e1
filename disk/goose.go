package disk

import (
	goosedisk "github.com/tchajed/goose/machine/disk"
)

// gooseDisk exposes a goose machine disk as a Disk whose I/O unit is the
// goose block size.
type gooseDisk struct {
	d goosedisk.Disk
}

var _ Disk = gooseDisk{}

func FromGoose(d goosedisk.Disk) Disk {
	return gooseDisk{d: d}
}

func (g gooseDisk) Read(a uint64) (Block, error) {
	return g.d.Read(a), nil
}

func (g gooseDisk) ReadTo(a uint64, b Block) error {
	copy(b, g.d.Read(a))
	return nil
}

func (g gooseDisk) Write(a uint64, v Block) error {
	g.d.Write(a, v)
	return nil
}

func (g gooseDisk) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g gooseDisk) UnitSize() uint64 {
	return goosedisk.BlockSize
}

func (g gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g gooseDisk) Close() error {
	g.d.Close()
	return nil
}
