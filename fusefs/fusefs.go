// Package fusefs serves a naivefs.Fs through the kernel's FUSE interface.
//
// Every request is handled under one lock; naivefs itself does no locking.
package fusefs

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/naivefs"
	"github.com/mit-pdos/naivefs/util"
)

// FS adapts a naivefs.Fs to pathfs. Operations not listed here fall through
// to the embedded default file system, which answers ENOSYS.
type FS struct {
	pathfs.FileSystem
	mu  sync.Mutex
	nfs *naivefs.Fs
	uid uint32
	gid uint32
}

func New(nfs *naivefs.Fs) *FS {
	return &FS{
		FileSystem: pathfs.NewDefaultFileSystem(),
		nfs:        nfs,
		uid:        uint32(os.Getuid()),
		gid:        uint32(os.Getgid()),
	}
}

// pathfs names are relative to the mount root, with "" for the root itself.
func abs(name string) string {
	return "/" + name
}

func status(op string, name string, err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	util.DPrintf(3, "%s %q: %v\n", op, name, err)
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fuse.Status(errno)
	}
	return fuse.EIO
}

func (b *FS) String() string {
	return "naivefs"
}

func (b *FS) fillAttr(a naivefs.Attr, out *fuse.Attr) {
	now := time.Now()
	out.Ino = uint64(a.Ino)
	out.Mode = a.Mode
	out.Size = a.Size
	out.Nlink = a.Nlink
	out.Blksize = uint32(a.Blksize)
	// st_blocks counts 512-byte sectors
	out.Blocks = a.Blocks * (a.Blksize / 512)
	out.Owner = fuse.Owner{Uid: b.uid, Gid: b.gid}
	out.SetTimes(&now, &now, &now)
}

func (b *FS) GetAttr(name string, context *fuse.Context) (*fuse.Attr, fuse.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.nfs.GetAttr(abs(name))
	if err != nil {
		return nil, status("getattr", name, err)
	}
	out := &fuse.Attr{}
	b.fillAttr(a, out)
	return out, fuse.OK
}

func (b *FS) Access(name string, mode uint32, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("access", name, b.nfs.Access(abs(name), mode))
}

func (b *FS) Mkdir(name string, mode uint32, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("mkdir", name, b.nfs.Mkdir(abs(name)))
}

// Mknod supports regular files, and directories for callers that create them
// through mknod.
func (b *FS) Mknod(name string, mode uint32, dev uint32, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return status("mknod", name, b.nfs.Mkdir(abs(name)))
	case syscall.S_IFREG, 0:
		return status("mknod", name, b.nfs.Mknod(abs(name)))
	}
	return fuse.ENOSYS
}

func (b *FS) Create(name string, flags uint32, mode uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.nfs.Mknod(abs(name))
	if err == common.ErrExists && flags&syscall.O_EXCL == 0 {
		err = b.nfs.Open(abs(name))
	}
	if err != nil {
		return nil, status("create", name, err)
	}
	return b.newFile(name), fuse.OK
}

func (b *FS) Open(name string, flags uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.nfs.Open(abs(name)); err != nil {
		return nil, status("open", name, err)
	}
	if flags&syscall.O_TRUNC != 0 {
		if err := b.nfs.Truncate(abs(name), 0); err != nil {
			return nil, status("open", name, err)
		}
	}
	return b.newFile(name), fuse.OK
}

func (b *FS) OpenDir(name string, context *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ents, err := b.nfs.ReadDirAll(abs(name))
	if err != nil {
		return nil, status("opendir", name, err)
	}
	out := make([]fuse.DirEntry, 0, len(ents))
	for _, e := range ents {
		mode := uint32(syscall.S_IFREG)
		if e.Ftype == common.DIR {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode, Ino: uint64(e.Ino)})
	}
	return out, fuse.OK
}

func (b *FS) Unlink(name string, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("unlink", name, b.nfs.Unlink(abs(name)))
}

func (b *FS) Rmdir(name string, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("rmdir", name, b.nfs.Rmdir(abs(name)))
}

func (b *FS) Rename(oldName string, newName string, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("rename", oldName, b.nfs.Rename(abs(oldName), abs(newName)))
}

func (b *FS) Truncate(name string, size uint64, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("truncate", name, b.nfs.Truncate(abs(name), size))
}

func (b *FS) Utimens(name string, atime *time.Time, mtime *time.Time, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("utimens", name, b.nfs.Utimens(abs(name)))
}

// Chmod and Chown succeed without effect; every entry has mode 0777 and
// belongs to the mounting user.
func (b *FS) Chmod(name string, mode uint32, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("chmod", name, b.nfs.Access(abs(name), 0))
}

func (b *FS) Chown(name string, uid uint32, gid uint32, context *fuse.Context) fuse.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return status("chown", name, b.nfs.Access(abs(name), 0))
}

func (b *FS) StatFs(name string) *fuse.StatfsOut {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.nfs.StatFs()
	return &fuse.StatfsOut{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bfree,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Frsize:  uint32(st.Bsize),
		NameLen: uint32(st.NameLen),
	}
}

// Sync writes the file system back to its device.
func (b *FS) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nfs.Sync()
}

func (b *FS) OnUnmount() {
	util.DPrintf(1, "fusefs: kernel unmounted\n")
}
