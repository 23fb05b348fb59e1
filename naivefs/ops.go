package naivefs

import (
	"syscall"

	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/inode"
	"github.com/mit-pdos/naivefs/util"
)

// Attr is what GetAttr reports about a path.
type Attr struct {
	Ino     common.Inum
	Ftype   common.Ftype
	Mode    uint32
	Size    uint64
	Nlink   uint32
	Blksize uint64
	Blocks  uint64
}

func (fs *Fs) dirBlocks(ip *Inode) uint64 {
	return util.RoundUp(ip.DirCnt, fs.geo.MaxDentry)
}

func (fs *Fs) GetAttr(path string) (Attr, error) {
	res, ip, err := fs.resolve(path)
	if err != nil {
		return Attr{}, err
	}
	a := Attr{
		Ino:     ip.Ino,
		Ftype:   ip.Ftype,
		Nlink:   1,
		Blksize: fs.geo.BlkSz,
	}
	if ip.IsDir() {
		a.Mode = syscall.S_IFDIR | common.DEFAULTPERM
		a.Size = ip.DirCnt * inode.DENTRYSZ
		a.Blocks = fs.dirBlocks(ip)
	} else {
		a.Mode = syscall.S_IFREG | common.DEFAULTPERM
		a.Size = ip.Nbytes
		a.Blocks = ip.Size
	}
	if res.IsRoot {
		a.Size = fs.geo.Usage
		a.Blocks = fs.geo.NBlocks
		a.Nlink = 2
	}
	return a, nil
}

func (fs *Fs) create(path string, ftype common.Ftype) error {
	res, pip, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if res.Found {
		return common.ErrExists
	}
	dn := fs.newDentry(name, ftype, res.Dentry)
	ip, err := fs.allocInode(dn)
	if err != nil {
		fs.freeDentry(dn)
		return err
	}
	if _, err := fs.linkChild(pip, dn); err != nil {
		fs.releaseInode(ip)
		fs.freeDentry(dn)
		return err
	}
	util.DPrintf(3, "create %s: inode %d\n", path, ip.Ino)
	return nil
}

func (fs *Fs) Mkdir(path string) error {
	return fs.create(path, common.DIR)
}

// Mknod creates an empty regular file.
func (fs *Fs) Mknod(path string) error {
	return fs.create(path, common.FILE)
}

// ReadDir returns the name of entry off of the directory at path, and the
// offset of the entry after it. ok is false past the last entry.
func (fs *Fs) ReadDir(path string, off uint64) (name string, next uint64, ok bool, err error) {
	_, ip, err := fs.resolve(path)
	if err != nil {
		return "", 0, false, err
	}
	if !ip.IsDir() {
		return "", 0, false, common.ErrNotDir
	}
	dn := fs.nthChild(ip, off)
	if dn == NULLDNUM {
		return "", off, false, nil
	}
	return fs.de(dn).name, off + 1, true, nil
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name  string
	Ftype common.Ftype
	Ino   common.Inum
}

// ReadDirAll lists the directory at path in ReadDir order.
func (fs *Fs) ReadDirAll(path string) ([]DirEntry, error) {
	_, ip, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	if !ip.IsDir() {
		return nil, common.ErrNotDir
	}
	ents := make([]DirEntry, 0, ip.DirCnt)
	for cur := ip.children; cur != NULLDNUM; cur = fs.de(cur).sibling {
		de := fs.de(cur)
		ents = append(ents, DirEntry{Name: de.name, Ftype: de.ftype, Ino: de.ino})
	}
	return ents, nil
}

func (fs *Fs) resolveFile(path string) (*Inode, error) {
	_, ip, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	if ip.IsDir() {
		return nil, common.ErrIsDir
	}
	return ip, nil
}

// Read copies file bytes starting at off into dst.
func (fs *Fs) Read(path string, dst []byte, off uint64) (int, error) {
	ip, err := fs.resolveFile(path)
	if err != nil {
		return 0, err
	}
	if off >= ip.Nbytes {
		return 0, nil
	}
	return copy(dst, ip.data[off:ip.Nbytes]), nil
}

// growTo makes sure blocks cover the first n bytes of ip, returning how many
// bytes are covered when the data bitmap runs out first.
func (fs *Fs) growTo(ip *Inode, n uint64) uint64 {
	need := util.RoundUp(n, fs.geo.BlkSz)
	for ip.Size < need {
		bno, err := fs.allocData()
		if err != nil {
			return ip.Size * fs.geo.BlkSz
		}
		ip.Blocks[ip.Size] = bno
		ip.Size++
	}
	return n
}

// shrinkTo releases ip's data blocks beyond the first nblk.
func (fs *Fs) shrinkTo(ip *Inode, nblk uint64) {
	for ip.Size > nblk {
		ip.Size--
		fs.freeData(ip.Blocks[ip.Size])
		ip.Blocks[ip.Size] = common.NULLBNUM
	}
}

// Write copies data into the file at off. Writes stop at the file's
// capacity of six blocks.
func (fs *Fs) Write(path string, data []byte, off uint64) (int, error) {
	ip, err := fs.resolveFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	end := util.Min(off+uint64(len(data)), fs.fileCap())
	if off >= end {
		return 0, common.ErrNoSpace
	}
	old := ip.Size
	end = fs.growTo(ip, end)
	if off >= end {
		fs.shrinkTo(ip, old)
		return 0, common.ErrNoSpace
	}
	n := copy(ip.data[off:end], data)
	ip.Nbytes = util.Max(ip.Nbytes, end)
	util.DPrintf(5, "write %s: %d bytes at %d, size %d\n", path, n, off, ip.Nbytes)
	return n, nil
}

// Truncate changes the size of the file at path, zero-filling on growth and
// releasing whole blocks past the new end.
func (fs *Fs) Truncate(path string, size uint64) error {
	ip, err := fs.resolveFile(path)
	if err != nil {
		return err
	}
	if size > fs.fileCap() {
		return common.ErrNoSpace
	}
	if size > ip.Nbytes {
		old := ip.Size
		if fs.growTo(ip, size) < size {
			fs.shrinkTo(ip, old)
			return common.ErrNoSpace
		}
	} else {
		fs.shrinkTo(ip, util.RoundUp(size, fs.geo.BlkSz))
	}
	for i := size; i < uint64(len(ip.data)); i++ {
		ip.data[i] = 0
	}
	ip.Nbytes = size
	return nil
}

// removeEntry detaches dn from its parent and releases its inode.
func (fs *Fs) removeEntry(dn Dnum) error {
	ip, err := fs.materialize(dn)
	if err != nil {
		return err
	}
	pip, err := fs.materialize(fs.de(dn).parent)
	if err != nil {
		return err
	}
	util.DPrintf(3, "remove %q: inode %d\n", fs.de(dn).name, ip.Ino)
	fs.unlinkChild(pip, dn)
	fs.releaseInode(ip)
	fs.freeDentry(dn)
	return nil
}

func (fs *Fs) Unlink(path string) error {
	ip, err := fs.resolveFile(path)
	if err != nil {
		return err
	}
	return fs.removeEntry(ip.dentry)
}

func (fs *Fs) Rmdir(path string) error {
	res, ip, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if res.IsRoot {
		return common.ErrBusy
	}
	if !ip.IsDir() {
		return common.ErrNotDir
	}
	if ip.DirCnt > 0 {
		return common.ErrNotEmpty
	}
	return fs.removeEntry(res.Dentry)
}

// isAncestor reports whether a is dn or one of dn's ancestors.
func (fs *Fs) isAncestor(a Dnum, dn Dnum) bool {
	for cur := dn; cur != NULLDNUM; cur = fs.de(cur).parent {
		if cur == a {
			return true
		}
	}
	return false
}

// Rename moves the entry at from to to, replacing a compatible entry that
// already exists there.
func (fs *Fs) Rename(from string, to string) error {
	src, sip, err := fs.resolve(from)
	if err != nil {
		return err
	}
	if src.IsRoot {
		return common.ErrBusy
	}
	dst, dip, name, err := fs.resolveParent(to)
	if err == common.ErrUnsupported {
		// a rename target below a file is a path error, not an unsupported create
		return common.ErrNotDir
	}
	if err != nil {
		return err
	}
	if dst.Found {
		if dst.Dentry == src.Dentry {
			return nil
		}
		if dst.IsRoot {
			return common.ErrBusy
		}
		if sip.IsDir() {
			if !dip.IsDir() {
				return common.ErrNotDir
			}
			if dip.DirCnt > 0 {
				return common.ErrNotEmpty
			}
		} else if dip.IsDir() {
			return common.ErrIsDir
		}
	}
	var newParent Dnum
	if dst.Found {
		newParent = fs.de(dst.Dentry).parent
	} else {
		newParent = dst.Dentry
	}
	if sip.IsDir() && fs.isAncestor(src.Dentry, newParent) {
		return common.ErrInvalid
	}
	npip, err := fs.materialize(newParent)
	if err != nil {
		return err
	}
	if dst.Found {
		if err := fs.removeEntry(dst.Dentry); err != nil {
			return err
		}
	}
	oldParent := fs.de(src.Dentry).parent
	if newParent != oldParent {
		if err := fs.reserveSlot(npip); err != nil {
			return err
		}
		fs.unlinkChild(fs.inode(oldParent), src.Dentry)
		fs.attach(npip, src.Dentry)
	}
	fs.de(src.Dentry).name = name
	util.DPrintf(3, "rename %s -> %s\n", from, to)
	return nil
}

// Access reports whether path exists; every entry carries the default
// permissions, so any mode is granted.
func (fs *Fs) Access(path string, mode uint32) error {
	_, _, err := fs.resolve(path)
	return err
}

func (fs *Fs) Open(path string) error {
	_, err := fs.resolveFile(path)
	return err
}

func (fs *Fs) OpenDir(path string) error {
	_, ip, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !ip.IsDir() {
		return common.ErrNotDir
	}
	return nil
}

// Utimens accepts and ignores new timestamps.
func (fs *Fs) Utimens(path string) error {
	return nil
}
