package naivefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	goosedisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/naivefs/buf"
	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/disk"
	"github.com/mit-pdos/naivefs/inode"
	"github.com/mit-pdos/naivefs/super"
)

const (
	testUnit  uint64 = 512
	testUnits uint64 = (4 << 20) / testUnit
)

type FsSuite struct {
	suite.Suite
	d  *disk.MemDisk
	fs *Fs
}

func (suite *FsSuite) SetupTest() {
	suite.d = disk.NewMemDisk(testUnits, testUnit)
	fs, err := Mount(suite.d)
	suite.Require().NoError(err)
	suite.fs = fs
}

func (suite *FsSuite) TearDownTest() {
	suite.NoError(suite.fs.Unmount())
}

// remount unmounts and mounts the same device again.
func (suite *FsSuite) remount() *Fs {
	suite.Require().NoError(suite.fs.Unmount())
	suite.True(suite.d.Closed(), "unmount closes the device")
	suite.d.Reopen()
	fs, err := Mount(suite.d)
	suite.Require().NoError(err)
	suite.fs = fs
	return fs
}

func TestFs(t *testing.T) {
	suite.Run(t, new(FsSuite))
}

func (suite *FsSuite) name(dn Dnum) string {
	return suite.fs.de(dn).name
}

func (suite *FsSuite) listing(path string) []string {
	var names []string
	for off := uint64(0); ; {
		name, next, ok, err := suite.fs.ReadDir(path, off)
		suite.Require().NoError(err)
		if !ok {
			return names
		}
		names = append(names, name)
		off = next
	}
}

func (suite *FsSuite) TestFreshMount() {
	fs := suite.fs
	suite.True(fs.Mounted())
	suite.Equal(uint64(1), fs.imap.NumUsed(), "only the root inode")
	suite.True(fs.imap.IsUsed(uint64(common.ROOTINUM)))
	suite.Equal(uint64(0), fs.dmap.NumUsed())
	suite.Equal(uint64(7), fs.geo.MaxDentry)
	suite.Equal(uint64(1024), fs.BlockSize())
}

func (suite *FsSuite) TestLayoutRoundTrip() {
	before := suite.fs.Super()
	fs := suite.remount()
	suite.Equal(before, fs.Super())

	raw1, err := buf.Read(suite.d, common.SUPEROFF, super.SUPERSZ)
	suite.Require().NoError(err)
	fs = suite.remount()
	raw2, err := buf.Read(suite.d, common.SUPEROFF, super.SUPERSZ)
	suite.Require().NoError(err)
	suite.Equal(raw1, raw2, "superblock bytes are stable across mounts")
	suite.Equal(before, fs.Super())
}

func (suite *FsSuite) TestMountRestoresRecordedState() {
	suite.Require().NoError(suite.fs.Mkdir("/a"))
	usage := suite.fs.Super().Usage
	suite.Equal(suite.fs.BlockSize(), usage, "root holds one entry block")

	fs := suite.remount()
	suite.Equal(usage, fs.Super().Usage)
	suite.Equal(uint64(2), fs.imap.NumUsed())
	suite.Equal(uint64(1), fs.dmap.NumUsed())
}

func (suite *FsSuite) TestLookup() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/a"))
	suite.Require().NoError(fs.Mkdir("/a/b"))
	suite.Require().NoError(fs.Mknod("/a/b/c"))

	res, err := fs.Lookup("/a/b/c")
	suite.NoError(err)
	suite.True(res.Found)
	suite.False(res.IsRoot)
	suite.Equal("c", suite.name(res.Dentry))

	res, err = fs.Lookup("/a/b/x")
	suite.NoError(err)
	suite.False(res.Found)
	suite.Equal("b", suite.name(res.Dentry), "returns the parent for a later create")
	suite.Equal(2, res.Depth)

	res, err = fs.Lookup("/")
	suite.NoError(err)
	suite.True(res.Found)
	suite.True(res.IsRoot)
	suite.Equal(fs.root, res.Dentry)

	res, err = fs.Lookup("//a//b/")
	suite.NoError(err)
	suite.True(res.Found, "empty segments are ignored")
	suite.Equal("b", suite.name(res.Dentry))
}

func (suite *FsSuite) TestLookupExactNames() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/abc"))
	for _, p := range []string{"/ab", "/abcd", "/a"} {
		res, err := fs.Lookup(p)
		suite.NoError(err)
		suite.False(res.Found, "%s should not match /abc", p)
	}
	suite.NoError(fs.Mkdir("/ab"), "a prefix of an existing name is a new name")
}

func (suite *FsSuite) TestLookupThroughFile() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/f"))

	res, err := fs.Lookup("/f/x")
	suite.NoError(err)
	suite.False(res.Found)
	suite.Equal("f", suite.name(res.Dentry))

	_, err = fs.GetAttr("/f/x")
	suite.Equal(common.ErrNotDir, err)
	suite.Equal(common.ErrUnsupported, fs.Mkdir("/f/x"))
	suite.Equal(common.ErrNotDir, fs.Mkdir("/f/x/y"))
	suite.Equal(common.ErrNotFound, fs.Mkdir("/nope/x"), "missing intermediate directory")
}

func (suite *FsSuite) TestCreateErrors() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	suite.Equal(common.ErrExists, fs.Mkdir("/d"))
	suite.Equal(common.ErrExists, fs.Mknod("/d"))
	suite.Equal(common.ErrExists, fs.Mkdir("/"))
	long := "/" + strings.Repeat("x", int(common.MAXNAMELEN)+1)
	suite.Equal(common.ErrNameTooLong, fs.Mknod(long))
	suite.NoError(fs.Mknod("/" + strings.Repeat("x", int(common.MAXNAMELEN))))
}

func (suite *FsSuite) TestReadDirOrder() {
	fs := suite.fs
	for _, n := range []string{"x", "y", "z"} {
		suite.Require().NoError(fs.Mknod("/" + n))
	}
	for i, want := range []string{"z", "y", "x"} {
		name, next, ok, err := fs.ReadDir("/", uint64(i))
		suite.NoError(err)
		suite.True(ok)
		suite.Equal(want, name)
		suite.Equal(uint64(i+1), next)
	}
	_, _, ok, err := fs.ReadDir("/", 3)
	suite.NoError(err)
	suite.False(ok)

	_, _, _, err = fs.ReadDir("/x", 0)
	suite.Equal(common.ErrNotDir, err)
	_, _, _, err = fs.ReadDir("/missing", 0)
	suite.Equal(common.ErrNotFound, err)
}

func (suite *FsSuite) TestSyncReload() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	var names []string
	for i := 0; i < 10; i++ {
		n := fmt.Sprintf("e%d", i)
		names = append(names, n)
		suite.Require().NoError(fs.Mknod("/d/" + n))
	}
	before := suite.listing("/d")
	suite.Require().NoError(fs.Sync())

	fs = suite.remount()
	res, err := fs.Lookup("/d")
	suite.Require().NoError(err)
	ip := fs.inode(res.Dentry)
	suite.Equal(uint64(10), ip.DirCnt)
	suite.NotEqual(common.NULLBNUM, ip.Blocks[0])
	suite.NotEqual(common.NULLBNUM, ip.Blocks[1])
	suite.Equal(common.NULLBNUM, ip.Blocks[2], "10 entries need two blocks of 7")

	after := suite.listing("/d")
	suite.Equal(before, after, "reload keeps the on-disk order")
	sort.Strings(after)
	sort.Strings(names)
	suite.Equal(names, after)
	suite.Equal(uint64(3), fs.dmap.NumUsed(), "reload allocates no blocks")
}

func (suite *FsSuite) TestLazyMaterialization() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/a"))
	suite.Require().NoError(fs.Mkdir("/a/b"))
	suite.Require().NoError(fs.Mkdir("/a/b/c"))

	fs = suite.remount()
	suite.Len(fs.inodes, 1, "only the root is read at mount")
	a := fs.findChild(fs.inode(fs.root), "a")
	suite.Require().NotEqual(NULLDNUM, a)
	suite.Equal(unloaded, fs.de(a).state)

	res, err := fs.Lookup("/a/b")
	suite.Require().NoError(err)
	suite.Equal(loaded, fs.de(a).state)
	suite.Equal(loaded, fs.de(res.Dentry).state)
	c := fs.findChild(fs.inode(res.Dentry), "c")
	suite.Equal(unloaded, fs.de(c).state, "entries below the walk stay on disk")
	suite.Len(fs.inodes, 3)
}

func (suite *FsSuite) TestGetAttr() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	a, err := fs.GetAttr("/d")
	suite.NoError(err)
	suite.Equal(common.DIR, a.Ftype)
	suite.Equal(uint32(syscall.S_IFDIR|0777), a.Mode)
	suite.Equal(uint64(0), a.Size)
	suite.Equal(uint32(1), a.Nlink)
	suite.Equal(uint64(1024), a.Blksize)

	suite.Require().NoError(fs.Mknod("/d/f"))
	a, err = fs.GetAttr("/d")
	suite.NoError(err)
	suite.Equal(uint64(144), a.Size, "one entry record")
	a, err = fs.GetAttr("/d/f")
	suite.NoError(err)
	suite.Equal(common.FILE, a.Ftype)
	suite.Equal(uint32(syscall.S_IFREG|0777), a.Mode)
	suite.Equal(uint64(0), a.Size)

	root, err := fs.GetAttr("/")
	suite.NoError(err)
	suite.Equal(fs.Super().Usage, root.Size)
	suite.Equal(uint64(2*1024), root.Size)
	suite.Equal(uint64(4096), root.Blocks)
	suite.Equal(uint32(2), root.Nlink)

	_, err = fs.GetAttr("/nope")
	suite.Equal(common.ErrNotFound, err)
}

func (suite *FsSuite) TestDirectoryCapacity() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	limit := common.NBLKPTR * fs.geo.MaxDentry
	for i := uint64(0); i < limit; i++ {
		suite.Require().NoError(fs.Mknod(fmt.Sprintf("/d/%d", i)))
	}
	freeInodes := fs.imap.NumFree()
	err := fs.Mknod("/d/overflow")
	suite.True(errors.Is(err, common.ErrNoSpace))
	suite.Equal(freeInodes, fs.imap.NumFree(), "failed create gives its inode back")
	res, _ := fs.Lookup("/d/overflow")
	suite.False(res.Found)

	fs = suite.remount()
	suite.Len(suite.listing("/d"), int(limit))
}

func (suite *FsSuite) TestReadWrite() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/f"))
	n, err := fs.Write("/f", []byte("hello"), 0)
	suite.NoError(err)
	suite.Equal(5, n)

	dst := make([]byte, 16)
	n, err = fs.Read("/f", dst, 0)
	suite.NoError(err)
	suite.Equal("hello", string(dst[:n]))

	n, err = fs.Write("/f", []byte("world"), 2000)
	suite.NoError(err)
	suite.Equal(5, n)
	a, _ := fs.GetAttr("/f")
	suite.Equal(uint64(2005), a.Size)
	suite.Equal(uint64(2), a.Blocks)

	fs = suite.remount()
	n, err = fs.Read("/f", dst, 1998)
	suite.NoError(err)
	suite.Equal([]byte{0, 0, 'w', 'o', 'r', 'l', 'd'}, dst[:n])
	n, err = fs.Read("/f", dst, 0)
	suite.NoError(err)
	suite.Equal("hello", string(dst[:5]))
	n, err = fs.Read("/f", dst, 5000)
	suite.NoError(err)
	suite.Equal(0, n, "reads past the end return nothing")

	_, err = fs.Read("/", dst, 0)
	suite.Equal(common.ErrIsDir, err)
}

func (suite *FsSuite) TestWriteCapacity() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/f"))
	data := make([]byte, 7000)
	n, err := fs.Write("/f", data, 0)
	suite.NoError(err)
	suite.Equal(6*1024, n, "writes stop at six blocks")
	_, err = fs.Write("/f", []byte{1}, 6*1024)
	suite.Equal(common.ErrNoSpace, err)
	suite.Equal(common.ErrNoSpace, fs.Truncate("/f", 6*1024+1))
}

func (suite *FsSuite) TestTruncate() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/f"))
	suite.Require().NoError(fs.Truncate("/f", 3000))
	a, _ := fs.GetAttr("/f")
	suite.Equal(uint64(3000), a.Size)
	suite.Equal(uint64(3), a.Blocks)
	used := fs.dmap.NumUsed()

	_, err := fs.Write("/f", []byte("abcdef"), 0)
	suite.NoError(err)
	suite.Require().NoError(fs.Truncate("/f", 3))
	a, _ = fs.GetAttr("/f")
	suite.Equal(uint64(3), a.Size)
	suite.Equal(uint64(1), a.Blocks)
	suite.Equal(used-2, fs.dmap.NumUsed(), "shrinking frees blocks")

	suite.Require().NoError(fs.Truncate("/f", 6))
	dst := make([]byte, 6)
	n, _ := fs.Read("/f", dst, 0)
	suite.Equal(6, n)
	suite.Equal([]byte{'a', 'b', 'c', 0, 0, 0}, dst, "regrown bytes read as zero")
	suite.Equal(common.ErrIsDir, fs.Truncate("/", 0))
}

func (suite *FsSuite) TestUnlinkReclaims() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	freeIno, freeData, usage := fs.imap.NumFree(), fs.dmap.NumFree(), fs.Super().Usage

	suite.Require().NoError(fs.Mknod("/d/f"))
	_, err := fs.Write("/d/f", make([]byte, 4000), 0)
	suite.Require().NoError(err)
	suite.Require().NoError(fs.Unlink("/d/f"))

	suite.Equal(freeIno, fs.imap.NumFree())
	suite.Equal(freeData, fs.dmap.NumFree(), "the emptied directory block is freed too")
	suite.Equal(usage, fs.Super().Usage)
	res, _ := fs.Lookup("/d/f")
	suite.False(res.Found)

	suite.Equal(common.ErrNotFound, fs.Unlink("/d/f"))
	suite.Equal(common.ErrIsDir, fs.Unlink("/d"))
}

func (suite *FsSuite) TestUnlinkAfterReload() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/f"))
	_, err := fs.Write("/f", []byte("data"), 0)
	suite.Require().NoError(err)
	fs = suite.remount()
	suite.Require().NoError(fs.Unlink("/f"))
	suite.Equal(uint64(1), fs.imap.NumUsed())
	suite.Equal(uint64(0), fs.dmap.NumUsed())
	suite.Equal(uint64(0), fs.Super().Usage)
	fs = suite.remount()
	suite.Empty(suite.listing("/"))
}

func (suite *FsSuite) TestRmdir() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	suite.Require().NoError(fs.Mknod("/d/f"))
	suite.Equal(common.ErrNotEmpty, fs.Rmdir("/d"))
	suite.Equal(common.ErrNotDir, fs.Rmdir("/d/f"))
	suite.Equal(common.ErrBusy, fs.Rmdir("/"))
	suite.Require().NoError(fs.Unlink("/d/f"))
	suite.NoError(fs.Rmdir("/d"))
	suite.Empty(suite.listing("/"))
	suite.Equal(uint64(1), fs.imap.NumUsed())
}

func (suite *FsSuite) TestRenameInPlace() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/a"))
	_, err := fs.Write("/a", []byte("payload"), 0)
	suite.Require().NoError(err)
	suite.Require().NoError(fs.Rename("/a", "/b"))
	res, _ := fs.Lookup("/a")
	suite.False(res.Found)

	fs = suite.remount()
	dst := make([]byte, 7)
	n, err := fs.Read("/b", dst, 0)
	suite.NoError(err)
	suite.Equal("payload", string(dst[:n]))
}

func (suite *FsSuite) TestRenameAcrossDirectories() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/src"))
	suite.Require().NoError(fs.Mkdir("/dst"))
	suite.Require().NoError(fs.Mkdir("/src/sub"))
	suite.Require().NoError(fs.Mknod("/src/sub/f"))

	suite.Require().NoError(fs.Rename("/src/sub", "/dst/moved"))
	suite.Empty(suite.listing("/src"))
	suite.Equal([]string{"moved"}, suite.listing("/dst"))
	suite.Equal([]string{"f"}, suite.listing("/dst/moved"))

	fs = suite.remount()
	res, err := fs.Lookup("/dst/moved/f")
	suite.NoError(err)
	suite.True(res.Found)
	suite.Equal(uint64(3), fs.dmap.NumUsed(), "src gave up its only block")
}

func (suite *FsSuite) TestRenameReplaces() {
	fs := suite.fs
	suite.Require().NoError(fs.Mknod("/a"))
	suite.Require().NoError(fs.Mknod("/b"))
	suite.Require().NoError(fs.Mkdir("/d"))
	suite.Require().NoError(fs.Mkdir("/e"))
	suite.Require().NoError(fs.Mknod("/e/x"))

	suite.Equal(common.ErrIsDir, fs.Rename("/a", "/d"))
	suite.Equal(common.ErrNotDir, fs.Rename("/d", "/a"))
	suite.Equal(common.ErrNotEmpty, fs.Rename("/d", "/e"))
	suite.Equal(common.ErrInvalid, fs.Rename("/e", "/e/y"))
	suite.Equal(common.ErrBusy, fs.Rename("/", "/z"))
	suite.Equal(common.ErrNotFound, fs.Rename("/nope", "/z"))
	suite.NoError(fs.Rename("/a", "/a"))
	suite.Equal(common.ErrNotDir, fs.Rename("/b", "/a/x"), "target parent is a file")
	suite.Equal(common.ErrNotDir, fs.Rename("/b", "/a/x/y"))
	suite.Equal(common.ErrNotFound, fs.Rename("/b", "/nope/x"))

	used := fs.imap.NumUsed()
	suite.Require().NoError(fs.Rename("/a", "/b"))
	suite.Equal(used-1, fs.imap.NumUsed(), "the replaced file's inode is freed")
	suite.ElementsMatch([]string{"b", "d", "e"}, suite.listing("/"))
}

func (suite *FsSuite) TestAccessOpen() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	suite.Require().NoError(fs.Mknod("/d/f"))
	suite.NoError(fs.Access("/d/f", 0))
	suite.Equal(common.ErrNotFound, fs.Access("/d/g", 0))
	suite.NoError(fs.Open("/d/f"))
	suite.Equal(common.ErrIsDir, fs.Open("/d"))
	suite.NoError(fs.OpenDir("/d"))
	suite.Equal(common.ErrNotDir, fs.OpenDir("/d/f"))
	suite.NoError(fs.Utimens("/d/f"))
}

func (suite *FsSuite) TestStatFs() {
	fs := suite.fs
	st := fs.StatFs()
	suite.Equal(uint64(1024), st.Bsize)
	suite.Equal(fs.geo.MaxData, st.Blocks)
	suite.Equal(fs.geo.MaxData, st.Bfree)
	suite.Equal(fs.geo.MaxIno-1, st.Ffree)
	suite.Require().NoError(fs.Mknod("/f"))
	st = fs.StatFs()
	suite.Equal(fs.geo.MaxData-1, st.Bfree)
	suite.Equal(fs.geo.MaxIno-2, st.Ffree)
}

func (suite *FsSuite) TestReadDirAll() {
	fs := suite.fs
	suite.Require().NoError(fs.Mkdir("/d"))
	suite.Require().NoError(fs.Mknod("/f"))
	ents, err := fs.ReadDirAll("/")
	suite.NoError(err)
	suite.Require().Len(ents, 2)
	suite.Equal("f", ents[0].Name)
	suite.Equal(common.FILE, ents[0].Ftype)
	suite.Equal("d", ents[1].Name)
	suite.Equal(common.DIR, ents[1].Ftype)
}

func (suite *FsSuite) TestUnmountTwice() {
	suite.Require().NoError(suite.fs.Unmount())
	suite.False(suite.fs.Mounted())
	suite.NoError(suite.fs.Unmount(), "unmounting an unmounted session is a no-op")
	suite.NoError(suite.fs.Sync())
}

type failingDisk struct {
	*disk.MemDisk
	failWrites bool
	failRead   uint64 // unit whose reads fail; zero disables
}

func (d *failingDisk) ReadTo(a uint64, b disk.Block) error {
	if d.failRead != 0 && a == d.failRead {
		return errors.New("read fault")
	}
	return d.MemDisk.ReadTo(a, b)
}

func (d *failingDisk) Read(a uint64) (disk.Block, error) {
	b := make(disk.Block, d.UnitSize())
	err := d.ReadTo(a, b)
	return b, err
}

func (d *failingDisk) Write(a uint64, v disk.Block) error {
	if d.failWrites {
		return errors.New("write fault")
	}
	return d.MemDisk.Write(a, v)
}

func (d *failingDisk) WriteBatch(start uint64, blocks []disk.Block) error {
	for i, b := range blocks {
		if err := d.Write(start+uint64(i), b); err != nil {
			return err
		}
	}
	return nil
}

func TestUnmountWriteFailure(t *testing.T) {
	d := &failingDisk{MemDisk: disk.NewMemDisk(testUnits, testUnit)}
	fs, err := Mount(d)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/a"))

	d.failWrites = true
	err = fs.Unmount()
	assert.True(t, errors.Is(err, common.ErrIO))
	assert.True(t, d.Closed(), "the device is closed even on failure")
	assert.False(t, fs.Mounted())
}

func TestMountTooSmall(t *testing.T) {
	assert := assert.New(t)
	for _, units := range []uint64{0, 8} {
		d := disk.NewMemDisk(units, 512)
		var err error
		assert.NotPanics(func() { _, err = Mount(d) }, "%d units", units)
		assert.True(errors.Is(err, common.ErrNoSpace), "%d units: %v", units, err)
	}
}

func TestMountGooseDisk(t *testing.T) {
	assert := assert.New(t)
	d := disk.FromGoose(goosedisk.NewMemDisk(1024))
	fs, err := Mount(d)
	require.NoError(t, err)
	assert.Equal(uint64(2*goosedisk.BlockSize), fs.BlockSize())
	require.NoError(t, fs.Mkdir("/g"))
	require.NoError(t, fs.Unmount())

	fs, err = Mount(d)
	require.NoError(t, err)
	res, err := fs.Lookup("/g")
	assert.NoError(err)
	assert.True(res.Found)
	assert.NoError(fs.Unmount())
}

func liveDentries(fs *Fs) int {
	n := 0
	for _, de := range fs.dentries {
		if de.valid {
			n++
		}
	}
	return n
}

func TestDirectoryReadFailure(t *testing.T) {
	assert := assert.New(t)
	d := &failingDisk{MemDisk: disk.NewMemDisk(testUnits, testUnit)}
	fs, err := Mount(d)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/d"))
	for i := 0; i < 8; i++ {
		require.NoError(t, fs.Mknod(fmt.Sprintf("/d/%d", i)))
	}
	res, err := fs.Lookup("/d")
	require.NoError(t, err)
	bno := fs.inode(res.Dentry).Blocks[0]
	// entries are read from the last slot down: slot 7 sits in the second
	// block and succeeds before slot 6 fails
	fail := fs.geo.DentryAddr(bno, 6).Flatid(fs.geo.BlkSz) / testUnit
	require.NoError(t, fs.Unmount())

	d.Reopen()
	fs, err = Mount(d)
	require.NoError(t, err)
	live := liveDentries(fs)
	d.failRead = fail
	_, err = fs.Lookup("/d")
	assert.True(errors.Is(err, common.ErrIO), "%v", err)
	assert.Equal(live, liveDentries(fs), "entries read before the failure are freed")

	d.failRead = 0
	ents, err := fs.ReadDirAll("/d")
	assert.NoError(err)
	assert.Len(ents, 8)
	assert.NoError(fs.Unmount())
}

func TestInodeTypeMismatch(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(testUnits, testUnit)
	fs, err := Mount(d)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/d"))
	res, err := fs.Lookup("/d")
	require.NoError(t, err)
	off := fs.geo.InodeAddr(fs.inode(res.Dentry).Ino).Flatid(fs.geo.BlkSz)
	require.NoError(t, fs.Unmount())

	b, err := buf.Read(d, off, inode.INODESZ)
	require.NoError(t, err)
	di := inode.DecodeDinode(b)
	di.Ftype = common.FILE
	require.NoError(t, buf.Write(d, off, di.Encode()))

	d.Reopen()
	fs, err = Mount(d)
	require.NoError(t, err)
	_, err = fs.Lookup("/d")
	assert.True(errors.Is(err, common.ErrIO), "%v", err)
	assert.NoError(fs.Unmount())
}
