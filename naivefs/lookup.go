package naivefs

import (
	"strings"

	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/util"
)

// Result is the outcome of resolving a path.
//
// When Found is false, Dentry is the deepest entry the walk reached: the
// directory that lacked the next name, or a non-directory that the path
// tried to pass through. Depth counts the path segments resolved to reach
// Dentry.
type Result struct {
	Dentry Dnum
	Found  bool
	IsRoot bool
	Depth  int
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Lookup walks path from the root, reading inodes in as it goes. The
// returned entry's inode is always loaded. Names must match exactly.
func (fs *Fs) Lookup(path string) (Result, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		if _, err := fs.materialize(fs.root); err != nil {
			return Result{}, err
		}
		return Result{Dentry: fs.root, Found: true, IsRoot: true}, nil
	}

	res := Result{Dentry: fs.root}
	cur := fs.root
	for i, name := range segs {
		ip, err := fs.materialize(cur)
		if err != nil {
			return Result{}, err
		}
		if !ip.IsDir() {
			util.DPrintf(5, "Lookup %s: %q is not a directory\n", path, fs.de(cur).name)
			res = Result{Dentry: cur, Depth: i}
			break
		}
		child := fs.findChild(ip, name)
		if child == NULLDNUM {
			util.DPrintf(5, "Lookup %s: %q not found\n", path, name)
			res = Result{Dentry: cur, Depth: i}
			break
		}
		if i+1 == len(segs) {
			res = Result{Dentry: child, Found: true, Depth: i + 1}
			break
		}
		cur = child
	}
	if _, err := fs.materialize(res.Dentry); err != nil {
		return Result{}, err
	}
	return res, nil
}

// resolve looks up a path that must exist.
func (fs *Fs) resolve(path string) (Result, *Inode, error) {
	res, err := fs.Lookup(path)
	if err != nil {
		return Result{}, nil, err
	}
	ip := fs.inode(res.Dentry)
	if !res.Found {
		if !ip.IsDir() {
			return res, nil, common.ErrNotDir
		}
		return res, nil, common.ErrNotFound
	}
	return res, ip, nil
}

// resolveParent looks up the directory that a new entry at path would go
// into, returning it with the new entry's name. If an entry already exists
// at path, res.Found is set and the inode returned is that entry's.
func (fs *Fs) resolveParent(path string) (Result, *Inode, string, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return Result{}, nil, "", common.ErrExists
	}
	name := segs[len(segs)-1]
	if uint64(len(name)) > common.MAXNAMELEN {
		return Result{}, nil, "", common.ErrNameTooLong
	}
	res, err := fs.Lookup(path)
	if err != nil {
		return Result{}, nil, "", err
	}
	ip := fs.inode(res.Dentry)
	if res.Found {
		return res, ip, name, nil
	}
	if res.Depth < len(segs)-1 {
		if !ip.IsDir() {
			return res, nil, "", common.ErrNotDir
		}
		return res, nil, "", common.ErrNotFound
	}
	if !ip.IsDir() {
		return res, nil, "", common.ErrUnsupported
	}
	return res, ip, name, nil
}
