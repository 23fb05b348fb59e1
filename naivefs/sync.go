package naivefs

import (
	"fmt"

	"github.com/mit-pdos/naivefs/buf"
	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/inode"
	"github.com/mit-pdos/naivefs/util"
)

// syncInode writes ip's record and then its contents: for a directory, every
// entry in list order packed into its data blocks (recursing into loaded
// children); for a file, each occupied data block.
func (fs *Fs) syncInode(ip *Inode) error {
	di := inode.MkDinode(ip.Ino, fs.de(ip.dentry).ftype)
	di.Size = ip.Size
	di.DirCnt = ip.DirCnt
	di.Blocks = ip.Blocks
	di.Nbytes = ip.Nbytes
	a := fs.geo.InodeAddr(ip.Ino)
	if err := buf.Write(fs.d, a.Flatid(fs.geo.BlkSz), di.Encode()); err != nil {
		return fmt.Errorf("sync inode %d: %w", ip.Ino, err)
	}
	util.DPrintf(10, "syncInode: %d size %d dir_cnt %d\n", ip.Ino, ip.Size, ip.DirCnt)

	if ip.IsDir() {
		return fs.syncDir(ip)
	}
	for i := uint64(0); i < ip.Size; i++ {
		a := fs.geo.DataAddr(ip.Blocks[i])
		data := ip.data[i*fs.geo.BlkSz : (i+1)*fs.geo.BlkSz]
		if err := buf.Write(fs.d, a.Flatid(fs.geo.BlkSz), data); err != nil {
			return fmt.Errorf("sync block %d of inode %d: %w", i, ip.Ino, err)
		}
	}
	return nil
}

func (fs *Fs) syncDir(ip *Inode) error {
	var blk, slot uint64
	if ip.Blocks[blk] == common.NULLBNUM {
		return nil
	}
	for cur := ip.children; cur != NULLDNUM; cur = fs.de(cur).sibling {
		if slot >= fs.geo.MaxDentry {
			blk++
			slot = 0
		}
		de := fs.de(cur)
		dd := &inode.Ddentry{Name: de.name, Ftype: de.ftype, Ino: de.ino}
		a := fs.geo.DentryAddr(ip.Blocks[blk], slot)
		if err := buf.Write(fs.d, a.Flatid(fs.geo.BlkSz), dd.Encode()); err != nil {
			return fmt.Errorf("sync entry %q of inode %d: %w", de.name, ip.Ino, err)
		}
		if de.state == loaded {
			if err := fs.syncInode(fs.inodes[de.ino]); err != nil {
				return err
			}
		}
		slot++
	}
	return nil
}
