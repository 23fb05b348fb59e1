package fusefs

import (
	"fmt"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
)

// file is an open regular file. It refers to its entry by path, so it follows
// the name it was opened under.
type file struct {
	nodefs.File
	b    *FS
	name string
}

func (b *FS) newFile(name string) nodefs.File {
	return &file{File: nodefs.NewDefaultFile(), b: b, name: name}
}

func (f *file) String() string {
	return fmt.Sprintf("naivefs.file(%s)", f.name)
}

func (f *file) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	n, err := f.b.nfs.Read(abs(f.name), dest, uint64(off))
	if err != nil {
		return nil, status("read", f.name, err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (f *file) Write(data []byte, off int64) (uint32, fuse.Status) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	n, err := f.b.nfs.Write(abs(f.name), data, uint64(off))
	if err != nil {
		return 0, status("write", f.name, err)
	}
	return uint32(n), fuse.OK
}

func (f *file) Truncate(size uint64) fuse.Status {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	return status("ftruncate", f.name, f.b.nfs.Truncate(abs(f.name), size))
}

func (f *file) GetAttr(out *fuse.Attr) fuse.Status {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	a, err := f.b.nfs.GetAttr(abs(f.name))
	if err != nil {
		return status("fgetattr", f.name, err)
	}
	f.b.fillAttr(a, out)
	return fuse.OK
}

func (f *file) Utimens(atime *time.Time, mtime *time.Time) fuse.Status {
	return fuse.OK
}

func (f *file) Flush() fuse.Status {
	return fuse.OK
}

func (f *file) Fsync(flags int) fuse.Status {
	return status("fsync", f.name, f.b.Sync())
}
