package disk

import (
	"fmt"
	"sync"
)

var _ Disk = (*MemDisk)(nil)
var _ DiskWriteBatch = (*MemDisk)(nil)

// MemDisk is a Disk held entirely in memory.
type MemDisk struct {
	l        *sync.RWMutex
	unitSize uint64
	blocks   [][]byte
	closed   bool
}

func NewMemDisk(numUnits uint64, unitSize uint64) *MemDisk {
	blocks := make([][]byte, numUnits)
	for i := range blocks {
		blocks[i] = make([]byte, unitSize)
	}
	return &MemDisk{l: new(sync.RWMutex), unitSize: unitSize, blocks: blocks}
}

func (d *MemDisk) ReadTo(a uint64, buf Block) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if a >= uint64(len(d.blocks)) {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	copy(buf, d.blocks[a])
	return nil
}

func (d *MemDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.unitSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *MemDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != d.unitSize {
		panic(fmt.Errorf("v is not unit-sized (%d bytes)", len(v)))
	}
	d.l.Lock()
	defer d.l.Unlock()
	if a >= uint64(len(d.blocks)) {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	copy(d.blocks[a], v)
	return nil
}

func (d *MemDisk) WriteBatch(startPos uint64, blocks []Block) error {
	for i, buf := range blocks {
		if err := d.Write(startPos+uint64(i), buf); err != nil {
			return err
		}
	}
	return nil
}

func (d *MemDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *MemDisk) UnitSize() uint64 {
	return d.unitSize
}

func (d *MemDisk) Barrier() error { return nil }

// Close marks the disk closed; the contents stay readable so a test can
// reopen the same MemDisk.
func (d *MemDisk) Close() error {
	d.l.Lock()
	d.closed = true
	d.l.Unlock()
	return nil
}

// Closed reports whether Close has been called since the last Reopen.
func (d *MemDisk) Closed() bool {
	d.l.RLock()
	defer d.l.RUnlock()
	return d.closed
}

// Reopen makes a closed MemDisk usable again.
func (d *MemDisk) Reopen() {
	d.l.Lock()
	d.closed = false
	d.l.Unlock()
}
