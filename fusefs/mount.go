package fusefs

import (
	"fmt"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/mit-pdos/naivefs/naivefs"
)

type MountOptions struct {
	// FsName is reported as the mount's source, usually the device path.
	FsName     string
	AllowOther bool
	Debug      bool
}

// Mount serves nfs at mountpoint and returns once the kernel has the mount.
// The caller waits on the server and unmounts nfs after it exits.
func Mount(mountpoint string, nfs *naivefs.Fs, opts MountOptions) (*fuse.Server, error) {
	pfs := pathfs.NewPathNodeFs(New(nfs), nil)
	conn := nodefs.NewFileSystemConnector(pfs.Root(), nodefs.NewOptions())
	server, err := fuse.NewServer(conn.RawFS(), mountpoint, &fuse.MountOptions{
		Name:       "naivefs",
		FsName:     opts.FsName,
		AllowOther: opts.AllowOther,
		Debug:      opts.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	go server.Serve()
	if err := server.WaitMount(); err != nil {
		server.Unmount()
		return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	return server, nil
}
