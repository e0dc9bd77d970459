package htm

import (
	"fmt"
	"math/bits"
	"sort"
)

/*
 Fixed-shape binary vector backed by uint64 words. Exposes both a sparse
view (sorted list of on-bit indices) and a dense view, interconvertible.
This is the I/O type the sequence memory consumes for active columns and
the connection graph consumes for adaptation membership tests.
*/
type SparseBinaryVector struct {
	dims []int
	size int
	data []uint64
}

func NewSparseBinaryVector(dims []int) (*SparseBinaryVector, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("sparse binary vector: no dimensions given")
	}
	size := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("sparse binary vector: non-positive dimension %d", d)
		}
		size *= d
	}

	sbv := new(SparseBinaryVector)
	sbv.dims = make([]int, len(dims))
	copy(sbv.dims, dims)
	sbv.size = size
	sbv.data = make([]uint64, (size+63)/64)
	return sbv, nil
}

func (sbv *SparseBinaryVector) Size() int {
	return sbv.size
}

func (sbv *SparseBinaryVector) Dimensions() []int {
	result := make([]int, len(sbv.dims))
	copy(result, sbv.dims)
	return result
}

func (sbv *SparseBinaryVector) word(idx int) int {
	return idx / 64
}

func (sbv *SparseBinaryVector) At(idx int) bool {
	if idx < 0 || idx >= sbv.size {
		panic(fmt.Sprintf("sparse binary vector: index %d out of range", idx))
	}
	return sbv.data[sbv.word(idx)]&(1<<uint(idx%64)) != 0
}

func (sbv *SparseBinaryVector) Set(idx int, val bool) {
	if idx < 0 || idx >= sbv.size {
		panic(fmt.Sprintf("sparse binary vector: index %d out of range", idx))
	}
	if val {
		sbv.data[sbv.word(idx)] |= 1 << uint(idx%64)
	} else {
		sbv.data[sbv.word(idx)] &^= 1 << uint(idx%64)
	}
}

func (sbv *SparseBinaryVector) Clear() {
	for i := range sbv.data {
		sbv.data[i] = 0
	}
}

//Returns sorted indices of the on bits
func (sbv *SparseBinaryVector) GetSparse() []int {
	var result []int
	for w, word := range sbv.data {
		if word == 0 {
			continue
		}
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) != 0 {
				result = append(result, w*64+b)
			}
		}
	}
	return result
}

/*
 Replaces the vector contents with the given on-bit indices. The input
need not be sorted; it is stored canonically. Out of range indices are
rejected before any mutation.
*/
func (sbv *SparseBinaryVector) SetSparse(indices []int) error {
	for _, idx := range indices {
		if idx < 0 || idx >= sbv.size {
			return fmt.Errorf("sparse binary vector: index %d out of range [0,%d)", idx, sbv.size)
		}
	}
	sbv.Clear()
	for _, idx := range indices {
		sbv.data[sbv.word(idx)] |= 1 << uint(idx%64)
	}
	return nil
}

func (sbv *SparseBinaryVector) GetDense() []bool {
	result := make([]bool, sbv.size)
	for w, word := range sbv.data {
		if word == 0 {
			continue
		}
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) != 0 {
				result[w*64+b] = true
			}
		}
	}
	return result
}

func (sbv *SparseBinaryVector) SetDense(values []bool) error {
	if len(values) != sbv.size {
		return fmt.Errorf("sparse binary vector: dense length %d != size %d", len(values), sbv.size)
	}
	sbv.Clear()
	for idx, val := range values {
		if val {
			sbv.data[sbv.word(idx)] |= 1 << uint(idx%64)
		}
	}
	return nil
}

//Count of on bits
func (sbv *SparseBinaryVector) Sum() int {
	count := 0
	for _, word := range sbv.data {
		count += bits.OnesCount64(word)
	}
	return count
}

func (sbv *SparseBinaryVector) Equals(other *SparseBinaryVector) bool {
	if sbv.size != other.size || len(sbv.dims) != len(other.dims) {
		return false
	}
	for i, d := range sbv.dims {
		if other.dims[i] != d {
			return false
		}
	}
	for i, word := range sbv.data {
		if other.data[i] != word {
			return false
		}
	}
	return true
}

func (sbv *SparseBinaryVector) Copy() *SparseBinaryVector {
	result := new(SparseBinaryVector)
	result.dims = make([]int, len(sbv.dims))
	copy(result.dims, sbv.dims)
	result.size = sbv.size
	result.data = make([]uint64, len(sbv.data))
	copy(result.data, sbv.data)
	return result
}

//Helper for building a vector from indices in one call
func SparseBinaryVectorFromIndices(dims []int, indices []int) (*SparseBinaryVector, error) {
	sbv, err := NewSparseBinaryVector(dims)
	if err != nil {
		return nil, err
	}
	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)
	if err := sbv.SetSparse(sorted); err != nil {
		return nil, err
	}
	return sbv, nil
}
