// Package disk provides unit-addressed access to the device backing a file
// system.
//
// A unit is the device's minimum transfer size (its I/O unit). Callers that
// need byte-granular access go through package buf.
package disk

// Block is one I/O unit worth of bytes.
type Block = []byte

const DefaultUnitSize uint64 = 512

// Disk provides access to a unit-addressed device
type Disk interface {
	// Read reads a unit by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the unit at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block) error

	// Write updates a unit by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in units
	Size() (uint64, error)

	// UnitSize reports the size of one I/O unit in bytes
	UnitSize() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// DiskWriteBatch is implemented by disks that can write a run of consecutive
// units in one call.
type DiskWriteBatch interface {
	WriteBatch(startPos uint64, blocks []Block) error
}

// Bytes reports the capacity of d in bytes.
func Bytes(d Disk) (uint64, error) {
	n, err := d.Size()
	if err != nil {
		return 0, err
	}
	return n * d.UnitSize(), nil
}
