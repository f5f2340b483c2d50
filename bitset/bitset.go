package bitset

import "fmt"

// BitSet is a fixed-size set of bits packed into 64-bit words.
type BitSet []uint64

func NewBitSet(len uint64) BitSet {
	words := (len + 63) / 64
	return make([]uint64, words)
}

func (b BitSet) IsSet(index uint64) bool {
	return b[index/64]&(uint64(1)<<(index%64)) != 0
}

func (b BitSet) Set(index uint64) {
	b[index/64] |= uint64(1) << (index % 64)
}

// Matrix is a rows x cols grid of bits stored row-major in one BitSet.
type Matrix struct {
	rows, cols uint64
	bits       BitSet
}

func NewMatrix(rows, cols uint64) *Matrix {
	return &Matrix{
		rows: rows,
		cols: cols,
		bits: NewBitSet(rows * cols),
	}
}

func (m *Matrix) IsSet(row, col uint64) bool {
	return m.bits.IsSet(m.index(row, col))
}

func (m *Matrix) Set(row, col uint64) {
	m.bits.Set(m.index(row, col))
}

func (m *Matrix) index(row, col uint64) uint64 {
	if row >= m.rows || col >= m.cols {
		panic(fmt.Sprintf("bit matrix index (%d,%d) out of range (%d,%d)", row, col, m.rows, m.cols))
	}
	return row*m.cols + col
}
