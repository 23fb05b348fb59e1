package naivefs

import (
	"fmt"

	"github.com/mit-pdos/naivefs/buf"
	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/inode"
	"github.com/mit-pdos/naivefs/util"
)

// Dnum names a directory entry in the session's dentry table. Dnums are
// stable for the lifetime of the entry and reused after it is removed.
type Dnum uint64

const NULLDNUM Dnum = ^Dnum(0)

// residency records whether a dentry's inode has been read into the inode
// table yet.
type residency uint8

const (
	unloaded residency = iota
	loaded
)

type dentry struct {
	name    string
	ftype   common.Ftype
	parent  Dnum
	sibling Dnum // next entry of the same parent
	ino     common.Inum
	state   residency
	valid   bool
}

// Inode is the in-memory form of a file or directory.
type Inode struct {
	Ino    common.Inum
	Ftype  common.Ftype
	Size   uint64 // occupied block pointers (files), entry count (dirs)
	DirCnt uint64
	Blocks [common.NBLKPTR]common.Bnum
	Nbytes uint64

	dentry   Dnum // the entry that names this inode
	children Dnum // head of the child list, newest first
	data     []byte
}

func (ip *Inode) IsDir() bool {
	return ip.Ftype == common.DIR
}

func (fs *Fs) newDentry(name string, ftype common.Ftype, parent Dnum) Dnum {
	de := dentry{
		name:    name,
		ftype:   ftype,
		parent:  parent,
		sibling: NULLDNUM,
		state:   unloaded,
		valid:   true,
	}
	if n := len(fs.freeDentries); n > 0 {
		dn := fs.freeDentries[n-1]
		fs.freeDentries = fs.freeDentries[:n-1]
		fs.dentries[dn] = de
		return dn
	}
	fs.dentries = append(fs.dentries, de)
	return Dnum(len(fs.dentries) - 1)
}

func (fs *Fs) freeDentry(dn Dnum) {
	fs.dentries[dn] = dentry{valid: false}
	fs.freeDentries = append(fs.freeDentries, dn)
}

func (fs *Fs) de(dn Dnum) *dentry {
	de := &fs.dentries[dn]
	if !de.valid {
		panic(fmt.Errorf("dentry %d is not live", dn))
	}
	return de
}

func (fs *Fs) fileCap() uint64 {
	return common.NBLKPTR * fs.geo.BlkSz
}

// allocInode takes a free inode number and binds a fresh inode to dn.
func (fs *Fs) allocInode(dn Dnum) (*Inode, error) {
	n, err := fs.imap.AllocNum()
	if err != nil {
		return nil, err
	}
	de := fs.de(dn)
	ip := &Inode{
		Ino:      common.Inum(n),
		Ftype:    de.ftype,
		dentry:   dn,
		children: NULLDNUM,
	}
	for i := range ip.Blocks {
		ip.Blocks[i] = common.NULLBNUM
	}
	if !ip.IsDir() {
		ip.data = make([]byte, fs.fileCap())
	}
	de.ino = ip.Ino
	de.state = loaded
	fs.inodes[ip.Ino] = ip
	util.DPrintf(5, "allocInode: %d for %q\n", ip.Ino, de.name)
	return ip, nil
}

// releaseInode returns ip's data blocks and inode number to the bitmaps.
func (fs *Fs) releaseInode(ip *Inode) {
	for i, bno := range ip.Blocks {
		if bno != common.NULLBNUM {
			fs.freeData(bno)
			ip.Blocks[i] = common.NULLBNUM
		}
	}
	fs.imap.FreeNum(uint64(ip.Ino))
	delete(fs.inodes, ip.Ino)
	util.DPrintf(5, "releaseInode: %d\n", ip.Ino)
}

func (fs *Fs) allocData() (common.Bnum, error) {
	n, err := fs.dmap.AllocNum()
	if err != nil {
		return common.NULLBNUM, err
	}
	fs.geo.Usage += fs.geo.BlkSz
	return common.Bnum(n), nil
}

func (fs *Fs) freeData(bno common.Bnum) {
	fs.dmap.FreeNum(uint64(bno))
	fs.geo.Usage -= fs.geo.BlkSz
}

// reserveSlot makes room for one more entry in directory ip, allocating the
// next data block when the entry would start a new batch.
func (fs *Fs) reserveSlot(ip *Inode) error {
	if ip.DirCnt%fs.geo.MaxDentry != 0 {
		return nil
	}
	blk := ip.DirCnt / fs.geo.MaxDentry
	if blk >= common.NBLKPTR {
		return fmt.Errorf("directory %d holds %d entries: %w",
			ip.Ino, ip.DirCnt, common.ErrNoSpace)
	}
	bno, err := fs.allocData()
	if err != nil {
		return err
	}
	ip.Blocks[blk] = bno
	return nil
}

// attach inserts child at the head of ip's entry list without touching the
// data bitmap.
func (fs *Fs) attach(ip *Inode, child Dnum) uint64 {
	de := fs.de(child)
	de.sibling = ip.children
	de.parent = ip.dentry
	ip.children = child
	ip.DirCnt++
	ip.Size = ip.DirCnt
	return ip.DirCnt
}

// linkChild adds child to directory ip and returns the new entry count.
func (fs *Fs) linkChild(ip *Inode, child Dnum) (uint64, error) {
	if err := fs.reserveSlot(ip); err != nil {
		return 0, err
	}
	return fs.attach(ip, child), nil
}

// unlinkChild removes child from ip's entry list, releasing the trailing
// data block once its batch is empty.
func (fs *Fs) unlinkChild(ip *Inode, child Dnum) {
	prev := NULLDNUM
	for cur := ip.children; cur != NULLDNUM; cur = fs.de(cur).sibling {
		if cur != child {
			prev = cur
			continue
		}
		next := fs.de(cur).sibling
		if prev == NULLDNUM {
			ip.children = next
		} else {
			fs.de(prev).sibling = next
		}
		fs.de(cur).sibling = NULLDNUM
		ip.DirCnt--
		ip.Size = ip.DirCnt
		if ip.DirCnt%fs.geo.MaxDentry == 0 {
			blk := ip.DirCnt / fs.geo.MaxDentry
			if bno := ip.Blocks[blk]; bno != common.NULLBNUM {
				fs.freeData(bno)
				ip.Blocks[blk] = common.NULLBNUM
			}
		}
		return
	}
	panic(fmt.Errorf("dentry %d is not a child of inode %d", child, ip.Ino))
}

// nthChild returns the index-th entry in list order (newest first).
func (fs *Fs) nthChild(ip *Inode, index uint64) Dnum {
	var n uint64
	for cur := ip.children; cur != NULLDNUM; cur = fs.de(cur).sibling {
		if n == index {
			return cur
		}
		n++
	}
	return NULLDNUM
}

func (fs *Fs) findChild(ip *Inode, name string) Dnum {
	for cur := ip.children; cur != NULLDNUM; cur = fs.de(cur).sibling {
		if fs.de(cur).name == name {
			return cur
		}
	}
	return NULLDNUM
}

func (fs *Fs) inode(dn Dnum) *Inode {
	de := fs.de(dn)
	if de.state != loaded {
		panic(fmt.Errorf("inode of dentry %d is not loaded", dn))
	}
	return fs.inodes[de.ino]
}

// materialize returns dn's inode, reading it from disk on first access.
func (fs *Fs) materialize(dn Dnum) (*Inode, error) {
	de := fs.de(dn)
	if de.state == loaded {
		return fs.inodes[de.ino], nil
	}
	ip, err := fs.readInode(dn, de.ino)
	if err != nil {
		return nil, err
	}
	de = fs.de(dn)
	de.state = loaded
	fs.inodes[ip.Ino] = ip
	return ip, nil
}

// dropChildren frees the entries linked under a partially read directory.
func (fs *Fs) dropChildren(ip *Inode) {
	for cur := ip.children; cur != NULLDNUM; {
		next := fs.de(cur).sibling
		fs.freeDentry(cur)
		cur = next
	}
	ip.children = NULLDNUM
	ip.DirCnt = 0
	ip.Size = 0
}

// readInode decodes inode ino and, for directories, re-links its entries
// from the directory's data blocks in their on-disk order.
func (fs *Fs) readInode(dn Dnum, ino common.Inum) (*Inode, error) {
	if uint64(ino) >= fs.geo.MaxIno {
		return nil, fmt.Errorf("inode %d out of range: %w", ino, common.ErrIO)
	}
	a := fs.geo.InodeAddr(ino)
	b, err := buf.Read(fs.d, a.Flatid(fs.geo.BlkSz), inode.INODESZ)
	if err != nil {
		return nil, fmt.Errorf("read inode %d: %w", ino, err)
	}
	di := inode.DecodeDinode(b)
	if di.Ino != ino {
		return nil, fmt.Errorf("inode %d: record holds inode %d: %w",
			ino, di.Ino, common.ErrIO)
	}
	if (di.Ftype == common.FILE && di.Size > common.NBLKPTR) ||
		di.DirCnt > common.NBLKPTR*fs.geo.MaxDentry {
		return nil, fmt.Errorf("inode %d: size %d dir_cnt %d: %w",
			ino, di.Size, di.DirCnt, common.ErrIO)
	}
	if ftype := fs.de(dn).ftype; di.Ftype != ftype {
		return nil, fmt.Errorf("inode %d: record is a %v, entry says %v: %w",
			ino, di.Ftype, ftype, common.ErrIO)
	}
	ip := &Inode{
		Ino:      di.Ino,
		Ftype:    di.Ftype,
		Size:     di.Size,
		Blocks:   di.Blocks,
		Nbytes:   di.Nbytes,
		dentry:   dn,
		children: NULLDNUM,
	}
	if ip.IsDir() {
		for i := di.DirCnt; i > 0; i-- {
			slot := i - 1
			bno := di.Blocks[slot/fs.geo.MaxDentry]
			a := fs.geo.DentryAddr(bno, slot%fs.geo.MaxDentry)
			b, err := buf.Read(fs.d, a.Flatid(fs.geo.BlkSz), inode.DENTRYSZ)
			if err != nil {
				fs.dropChildren(ip)
				return nil, fmt.Errorf("read entry %d of inode %d: %w", slot, ino, err)
			}
			dd := inode.DecodeDdentry(b)
			child := fs.newDentry(dd.Name, dd.Ftype, dn)
			fs.de(child).ino = dd.Ino
			fs.attach(ip, child)
		}
	} else {
		ip.data = make([]byte, fs.fileCap())
		for i := uint64(0); i < di.Size; i++ {
			a := fs.geo.DataAddr(di.Blocks[i])
			b, err := buf.Read(fs.d, a.Flatid(fs.geo.BlkSz), fs.geo.BlkSz)
			if err != nil {
				return nil, fmt.Errorf("read block %d of inode %d: %w", i, ino, err)
			}
			copy(ip.data[i*fs.geo.BlkSz:], b)
		}
	}
	util.DPrintf(5, "readInode: %d ftype %v size %d dir_cnt %d\n",
		ip.Ino, ip.Ftype, ip.Size, ip.DirCnt)
	return ip, nil
}
