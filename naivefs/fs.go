// Package naivefs is a small block file system: a superblock, an inode
// bitmap, a data bitmap, one block per inode, and at most six direct data
// blocks per file or directory.
//
// An Fs is one mounted session. The in-memory tree is loaded lazily: a
// directory entry read from disk names its inode by number, and the inode is
// read the first time a path walk reaches it. Changes stay in memory until
// Sync or Unmount writes the tree back. There is no journal, so a crash
// between those points loses (or tears) the unsynced changes.
//
// Fs does no locking. Callers serialize every call.
package naivefs

import (
	"fmt"

	"github.com/mit-pdos/naivefs/alloc"
	"github.com/mit-pdos/naivefs/buf"
	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/disk"
	"github.com/mit-pdos/naivefs/super"
	"github.com/mit-pdos/naivefs/util"
)

type Fs struct {
	d    disk.Disk
	geo  *super.Geometry
	imap *alloc.Alloc
	dmap *alloc.Alloc

	dentries     []dentry
	freeDentries []Dnum
	inodes       map[common.Inum]*Inode
	root         Dnum

	mounted bool
}

// Mount recovers the file system on d, laying out a fresh one if d does not
// carry the superblock magic. On error the caller keeps ownership of d.
func Mount(d disk.Disk) (*Fs, error) {
	diskSize, err := disk.Bytes(d)
	if err != nil {
		return nil, fmt.Errorf("device size: %w", err)
	}
	ioSize := d.UnitSize()
	if ioSize == 0 || diskSize < util.AlignUp(super.SUPERSZ, ioSize) {
		return nil, fmt.Errorf("device of %d bytes has no room for a superblock: %w",
			diskSize, common.ErrNoSpace)
	}

	b, err := buf.Read(d, common.SUPEROFF, super.SUPERSZ)
	if err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}
	sb := super.Decode(b)
	fresh := !sb.Initialized()
	if fresh {
		sb, err = super.MkLayout(diskSize, ioSize)
		if err != nil {
			return nil, err
		}
	} else if err := sb.Check(diskSize, ioSize); err != nil {
		return nil, err
	}

	fs := &Fs{
		d:      d,
		geo:    super.MkGeometry(sb, diskSize, ioSize),
		inodes: make(map[common.Inum]*Inode),
	}

	imap := make([]byte, fs.geo.MapInodeBytes())
	dmap := make([]byte, fs.geo.MapDataBytes())
	if !fresh {
		if imap, err = buf.Read(d, sb.MapInodeOff, uint64(len(imap))); err != nil {
			return nil, fmt.Errorf("read inode bitmap: %w", err)
		}
		if dmap, err = buf.Read(d, sb.MapDataOff, uint64(len(dmap))); err != nil {
			return nil, fmt.Errorf("read data bitmap: %w", err)
		}
	}
	fs.imap = alloc.MkAlloc(imap, sb.MaxIno)
	fs.dmap = alloc.MkAlloc(dmap, sb.MaxData)

	fs.root = fs.newDentry("/", common.DIR, NULLDNUM)
	if fresh {
		ip, err := fs.allocInode(fs.root)
		if err != nil {
			return nil, err
		}
		if ip.Ino != common.ROOTINUM {
			panic("root inode is not inode 0")
		}
		if err := fs.syncInode(ip); err != nil {
			return nil, err
		}
		delete(fs.inodes, ip.Ino)
		fs.de(fs.root).state = unloaded
	}
	fs.de(fs.root).ino = common.ROOTINUM
	if _, err := fs.materialize(fs.root); err != nil {
		return nil, fmt.Errorf("read root inode: %w", err)
	}
	fs.mounted = true
	util.DPrintf(1, "Mount: fresh %v, %d/%d inodes, %d/%d data blocks used\n",
		fresh, fs.imap.NumUsed(), sb.MaxIno, fs.dmap.NumUsed(), sb.MaxData)
	return fs, nil
}

// flush writes the tree, the superblock, and both bitmaps.
func (fs *Fs) flush() error {
	if err := fs.syncInode(fs.inode(fs.root)); err != nil {
		return err
	}
	fs.geo.Magic = common.MAGIC
	if err := buf.Write(fs.d, common.SUPEROFF, fs.geo.Super.Encode()); err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	if err := buf.Write(fs.d, fs.geo.MapInodeOff, fs.imap.Bitmap()); err != nil {
		return fmt.Errorf("write inode bitmap: %w", err)
	}
	if err := buf.Write(fs.d, fs.geo.MapDataOff, fs.dmap.Bitmap()); err != nil {
		return fmt.Errorf("write data bitmap: %w", err)
	}
	if err := fs.d.Barrier(); err != nil {
		return fmt.Errorf("%w: barrier: %v", common.ErrIO, err)
	}
	return nil
}

// Sync writes all in-memory state back without unmounting.
func (fs *Fs) Sync() error {
	if !fs.mounted {
		return nil
	}
	return fs.flush()
}

// Unmount writes all state back and closes the device. The device is closed
// even when a write fails; the first error is returned.
func (fs *Fs) Unmount() error {
	if !fs.mounted {
		return nil
	}
	err := fs.flush()
	if cerr := fs.d.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: close: %v", common.ErrIO, cerr)
	}
	fs.mounted = false
	fs.imap = nil
	fs.dmap = nil
	fs.inodes = nil
	fs.dentries = nil
	fs.freeDentries = nil
	util.DPrintf(1, "Unmount: err %v\n", err)
	return err
}

func (fs *Fs) Mounted() bool {
	return fs.mounted
}

// Super returns a copy of the superblock as it would be written now.
func (fs *Fs) Super() super.Super {
	sb := *fs.geo.Super
	sb.Magic = common.MAGIC
	return sb
}

func (fs *Fs) BlockSize() uint64 {
	return fs.geo.BlkSz
}

type StatFs struct {
	Bsize   uint64
	Blocks  uint64
	Bfree   uint64
	Files   uint64
	Ffree   uint64
	NameLen uint64
}

func (fs *Fs) StatFs() StatFs {
	return StatFs{
		Bsize:   fs.geo.BlkSz,
		Blocks:  fs.geo.MaxData,
		Bfree:   fs.dmap.NumFree(),
		Files:   fs.geo.MaxIno,
		Ffree:   fs.imap.NumFree(),
		NameLen: common.MAXNAMELEN,
	}
}
