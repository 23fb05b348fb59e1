//go:build linux

package disk

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/naivefs/util"
)

// Options control how NewFileDisk treats regular image files. Block devices
// report their own geometry.
type Options struct {
	// UnitSize is the I/O unit of an image file.
	UnitSize uint64
	// ImageSize is the size an empty image file is grown to.
	ImageSize uint64
}

func DefaultOptions() Options {
	return Options{UnitSize: DefaultUnitSize, ImageSize: 4 << 20}
}

var _ Disk = (*fileDisk)(nil)
var _ DiskWriteBatch = (*fileDisk)(nil)

type fileDisk struct {
	fd       int
	lock     *flock.Flock
	unitSize uint64
	numUnits uint64
}

// NewFileDisk opens the device or image at path and takes an exclusive lock
// on it for the lifetime of the Disk.
func NewFileDisk(path string, opts Options) (Disk, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", path, unix.EBUSY)
	}
	d, err := openFileDisk(path, opts)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	d.lock = lock
	util.DPrintf(1, "disk %s: %d units of %d bytes\n", path, d.numUnits, d.unitSize)
	return d, nil
}

func openFileDisk(path string, opts Options) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	var unitSize, size uint64
	if stat.Mode&unix.S_IFMT == unix.S_IFBLK {
		ssz, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("BLKSSZGET %s: %w", path, err)
		}
		unitSize = uint64(ssz)
		size, err = blkGetSize64(fd)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("BLKGETSIZE64 %s: %w", path, err)
		}
	} else {
		unitSize = opts.UnitSize
		if unitSize == 0 {
			unitSize = DefaultUnitSize
		}
		size = uint64(stat.Size)
		if size == 0 {
			size = opts.ImageSize
			if err := unix.Ftruncate(fd, int64(size)); err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("truncate %s: %w", path, err)
			}
		}
	}
	return &fileDisk{fd: fd, unitSize: unitSize, numUnits: size / unitSize}, nil
}

func blkGetSize64(fd int) (uint64, error) {
	var sz uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.BLKGETSIZE64), uintptr(unsafe.Pointer(&sz)))
	if errno != 0 {
		return 0, errno
	}
	return sz, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != d.unitSize {
		panic("buffer is not unit-sized")
	}
	if a >= d.numUnits {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	n, err := unix.Pread(d.fd, buf, int64(a*d.unitSize))
	if err != nil {
		return fmt.Errorf("read unit %d: %w", a, err)
	}
	if n != len(buf) {
		return fmt.Errorf("read unit %d: %d of %d bytes: %w", a, n, len(buf), io.ErrUnexpectedEOF)
	}
	util.DPrintf(20, "read: %v\n", a)
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, d.unitSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != d.unitSize {
		panic(fmt.Errorf("v is not unit sized (%d bytes)", len(v)))
	}
	if a >= d.numUnits {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*d.unitSize))
	if err != nil {
		return fmt.Errorf("write unit %d: %w", a, err)
	}
	if n != len(v) {
		return fmt.Errorf("write unit %d: %d of %d bytes: %w", a, n, len(v), io.ErrShortWrite)
	}
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

// WriteBatch writes consecutive units with a single pwrite.
func (d *fileDisk) WriteBatch(startPos uint64, blocks []Block) error {
	if startPos+uint64(len(blocks)) > d.numUnits {
		panic(fmt.Errorf("out-of-bounds batch write at %v+%d", startPos, len(blocks)))
	}
	data := make([]byte, 0, uint64(len(blocks))*d.unitSize)
	for _, b := range blocks {
		if uint64(len(b)) != d.unitSize {
			panic(fmt.Errorf("batch entry is not unit sized (%d bytes)", len(b)))
		}
		data = append(data, b...)
	}
	n, err := unix.Pwrite(d.fd, data, int64(startPos*d.unitSize))
	if err != nil {
		return fmt.Errorf("write units %d+%d: %w", startPos, len(blocks), err)
	}
	if n != len(data) {
		return fmt.Errorf("write units %d+%d: %d of %d bytes: %w",
			startPos, len(blocks), n, len(data), io.ErrShortWrite)
	}
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numUnits, nil
}

func (d *fileDisk) UnitSize() uint64 {
	return d.unitSize
}

func (d *fileDisk) Barrier() error {
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	util.DPrintf(5, "barrier\n")
	return nil
}

func (d *fileDisk) Close() error {
	err := unix.Close(d.fd)
	if d.lock != nil {
		d.lock.Unlock()
	}
	return err
}
