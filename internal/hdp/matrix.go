package hdp

import "fmt"

// Matrix is a growable dense matrix of non-negative counts stored in one
// flat slice. Rows are laid out with a stride that doubles on column growth,
// so appending a state is amortized O(1) per row.
type Matrix struct {
	rows, cols int
	stride     int
	data       []int
}

// NewMatrix returns a zeroed rows×cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	m := &Matrix{}
	m.Resize(rows, cols)
	return m
}

// NewMatrixFrom builds a rows×cols matrix from row-major data.
func NewMatrixFrom(rows, cols int, data []int) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("matrix data length %d does not match %dx%d", len(data), rows, cols)
	}
	m := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		copy(m.Row(i), data[i*cols:(i+1)*cols])
	}
	return m, nil
}

// Rows returns the row count.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the column count.
func (m *Matrix) Cols() int { return m.cols }

// At returns the count at (i, j).
func (m *Matrix) At(i, j int) int {
	return m.data[i*m.stride+j]
}

// Set stores v at (i, j).
func (m *Matrix) Set(i, j, v int) {
	m.data[i*m.stride+j] = v
}

// Add increments (i, j) by n.
func (m *Matrix) Add(i, j, n int) {
	m.data[i*m.stride+j] += n
}

// Row returns row i as a slice aliasing the matrix storage.
func (m *Matrix) Row(i int) []int {
	off := i * m.stride
	return m.data[off : off+m.cols : off+m.cols]
}

// RowSum returns the total of row i.
func (m *Matrix) RowSum(i int) int {
	n := 0
	for _, v := range m.Row(i) {
		n += v
	}
	return n
}

// ColSum returns the total of column j.
func (m *Matrix) ColSum(j int) int {
	n := 0
	for i := 0; i < m.rows; i++ {
		n += m.At(i, j)
	}
	return n
}

// Total returns the sum of every entry.
func (m *Matrix) Total() int {
	n := 0
	for i := 0; i < m.rows; i++ {
		n += m.RowSum(i)
	}
	return n
}

// Resize changes the shape to rows×cols. Surviving entries keep their value
// and new entries are zero.
func (m *Matrix) Resize(rows, cols int) {
	if cols > m.stride {
		stride := max(cols, 2*m.stride, 4)
		data := make([]int, rows*stride, max(rows, 1)*stride*2)
		for i := 0; i < min(rows, m.rows); i++ {
			copy(data[i*stride:], m.Row(i))
		}
		m.stride = stride
		m.data = data
		m.rows, m.cols = rows, cols
		return
	}

	// Zero columns that leave and re-enter the visible range.
	if cols < m.cols {
		for i := 0; i < min(rows, m.rows); i++ {
			off := i * m.stride
			clear(m.data[off+cols : off+m.cols])
		}
	}
	need := rows * m.stride
	if need > cap(m.data) {
		data := make([]int, need, need*2)
		copy(data, m.data)
		m.data = data
	} else {
		old := len(m.data)
		m.data = m.data[:need]
		if need > old {
			clear(m.data[old:])
		}
	}
	m.rows, m.cols = rows, cols
}

// Reset zeroes every entry without changing the shape.
func (m *Matrix) Reset() {
	clear(m.data)
}

// AddMatrix adds o into m entry by entry. o may be smaller than m.
func (m *Matrix) AddMatrix(o *Matrix) error {
	if o.rows > m.rows || o.cols > m.cols {
		return fmt.Errorf("cannot add %dx%d counts into %dx%d", o.rows, o.cols, m.rows, m.cols)
	}
	for i := 0; i < o.rows; i++ {
		dst := m.Row(i)
		for j, v := range o.Row(i) {
			dst[j] += v
		}
	}
	return nil
}

// Select returns a new matrix holding the given rows, and the given columns
// when cols is non-nil, in the order listed.
func (m *Matrix) Select(rows, cols []int) *Matrix {
	ncols := m.cols
	if cols != nil {
		ncols = len(cols)
	}
	out := NewMatrix(len(rows), ncols)
	for oi, i := range rows {
		src := m.Row(i)
		dst := out.Row(oi)
		if cols == nil {
			copy(dst, src)
			continue
		}
		for oj, j := range cols {
			dst[oj] = src[j]
		}
	}
	return out
}

// Data returns a compact row-major copy of the entries.
func (m *Matrix) Data() []int {
	out := make([]int, 0, m.rows*m.cols)
	for i := 0; i < m.rows; i++ {
		out = append(out, m.Row(i)...)
	}
	return out
}
