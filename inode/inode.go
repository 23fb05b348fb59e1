// Package inode defines the fixed-size on-disk records for inodes and
// directory entries.
package inode

import (
	"bytes"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/naivefs/common"
)

const (
	// INODESZ is the encoded size of an inode record: ino, size, dir_cnt,
	// ftype, the block pointers, and the byte length.
	INODESZ uint64 = 8 * (4 + common.NBLKPTR + 1)
	// DENTRYSZ is the encoded size of a directory entry record.
	DENTRYSZ uint64 = common.MAXNAMELEN + 8 + 8
)

// Dinode is the on-disk image of an inode.
type Dinode struct {
	Ino    common.Inum
	Size   uint64
	DirCnt uint64
	Ftype  common.Ftype
	Blocks [common.NBLKPTR]common.Bnum
	Nbytes uint64
}

func MkDinode(ino common.Inum, ftype common.Ftype) *Dinode {
	d := &Dinode{Ino: ino, Ftype: ftype}
	for i := range d.Blocks {
		d.Blocks[i] = common.NULLBNUM
	}
	return d
}

func (d *Dinode) Encode() []byte {
	enc := marshal.NewEnc(INODESZ)
	enc.PutInt(uint64(d.Ino))
	enc.PutInt(d.Size)
	enc.PutInt(d.DirCnt)
	enc.PutInt(uint64(d.Ftype))
	for _, b := range d.Blocks {
		enc.PutInt(b)
	}
	enc.PutInt(d.Nbytes)
	return enc.Finish()
}

func DecodeDinode(b []byte) *Dinode {
	dec := marshal.NewDec(b)
	d := &Dinode{}
	d.Ino = common.Inum(dec.GetInt())
	d.Size = dec.GetInt()
	d.DirCnt = dec.GetInt()
	d.Ftype = common.Ftype(dec.GetInt())
	for i := range d.Blocks {
		d.Blocks[i] = dec.GetInt()
	}
	d.Nbytes = dec.GetInt()
	return d
}

// Ddentry is the on-disk image of a directory entry.
type Ddentry struct {
	Name  string
	Ftype common.Ftype
	Ino   common.Inum
}

func (d *Ddentry) Encode() []byte {
	name := make([]byte, common.MAXNAMELEN)
	copy(name, d.Name)
	enc := marshal.NewEnc(DENTRYSZ)
	enc.PutBytes(name)
	enc.PutInt(uint64(d.Ftype))
	enc.PutInt(uint64(d.Ino))
	return enc.Finish()
}

func DecodeDdentry(b []byte) *Ddentry {
	dec := marshal.NewDec(b)
	name := dec.GetBytes(common.MAXNAMELEN)
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	d := &Ddentry{Name: string(name)}
	d.Ftype = common.Ftype(dec.GetInt())
	d.Ino = common.Inum(dec.GetInt())
	return d
}
