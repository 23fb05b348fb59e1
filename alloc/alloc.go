package alloc

import (
	"fmt"

	"github.com/mit-pdos/naivefs/common"
	"github.com/mit-pdos/naivefs/util"
)

// Alloc uses a bit map to allocate and free numbers. Bit i of byte j
// corresponds to number 8*j+i. Only numbers below max are handed out.
//
// Alloc does no locking; callers serialize access.
type Alloc struct {
	bitmap []byte
	max    uint64
}

// MkAlloc manages bitmap in place, so the caller can write the same buffer
// back to disk.
func MkAlloc(bitmap []byte, max uint64) *Alloc {
	if max > uint64(len(bitmap))*8 {
		panic(fmt.Errorf("bitmap of %d bytes cannot track %d numbers", len(bitmap), max))
	}
	return &Alloc{bitmap: bitmap, max: max}
}

func MkMaxAlloc(max uint64) *Alloc {
	return MkAlloc(make([]byte, util.RoundUp(max, 8)), max)
}

// AllocNum returns the lowest free number and marks it used.
func (a *Alloc) AllocNum() (uint64, error) {
	for byteCur, b := range a.bitmap {
		if b == 0xFF {
			continue
		}
		for bit := uint64(0); bit < 8; bit++ {
			if b&(1<<bit) == 0 {
				num := uint64(byteCur)*8 + bit
				if num >= a.max {
					return 0, common.ErrNoSpace
				}
				a.bitmap[byteCur] |= 1 << bit
				util.DPrintf(10, "AllocNum: %d\n", num)
				return num, nil
			}
		}
	}
	return 0, common.ErrNoSpace
}

func (a *Alloc) check(n uint64) {
	if n >= a.max {
		panic(fmt.Errorf("number %d out of range (max %d)", n, a.max))
	}
}

// FreeNum marks n free again. Freeing a free number panics.
func (a *Alloc) FreeNum(n uint64) {
	a.check(n)
	if !a.IsUsed(n) {
		panic(fmt.Errorf("FreeNum: %d is not allocated", n))
	}
	a.bitmap[n/8] &^= 1 << (n % 8)
	util.DPrintf(10, "FreeNum: %d\n", n)
}

func (a *Alloc) MarkUsed(n uint64) {
	a.check(n)
	a.bitmap[n/8] |= 1 << (n % 8)
}

func (a *Alloc) IsUsed(n uint64) bool {
	a.check(n)
	return a.bitmap[n/8]&(1<<(n%8)) != 0
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumUsed counts the allocated numbers below max.
func (a *Alloc) NumUsed() uint64 {
	var count uint64
	full := a.max / 8
	for _, b := range a.bitmap[:full] {
		count += popCnt(b)
	}
	for n := full * 8; n < a.max; n++ {
		if a.IsUsed(n) {
			count++
		}
	}
	return count
}

func (a *Alloc) NumFree() uint64 {
	return a.max - a.NumUsed()
}

func (a *Alloc) Max() uint64 {
	return a.max
}

// Bitmap returns the underlying bitmap buffer.
func (a *Alloc) Bitmap() []byte {
	return a.bitmap
}
