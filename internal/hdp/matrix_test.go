package hdp

import (
	"testing"
)

func TestMatrix_ResizeKeepsValues(t *testing.T) {
	m := NewMatrix(2, 2)
	m.Set(0, 0, 1)
	m.Set(0, 1, 2)
	m.Set(1, 0, 3)
	m.Set(1, 1, 4)

	for _, size := range []int{3, 9, 40} {
		m.Resize(size, size)
		if m.Rows() != size || m.Cols() != size {
			t.Fatalf("shape = %dx%d, want %dx%d", m.Rows(), m.Cols(), size, size)
		}
		want := [][]int{{1, 2}, {3, 4}}
		for i := range want {
			for j := range want[i] {
				if got := m.At(i, j); got != want[i][j] {
					t.Errorf("size %d: At(%d,%d) = %d, want %d", size, i, j, got, want[i][j])
				}
			}
		}
		if got := m.Total(); got != 10 {
			t.Errorf("size %d: Total() = %d, want 10", size, got)
		}
	}
}

func TestMatrix_ShrinkThenGrowZeroes(t *testing.T) {
	m := NewMatrix(3, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, 1)
		}
	}
	m.Resize(2, 2)
	m.Resize(3, 3)

	if got := m.Total(); got != 4 {
		t.Errorf("Total() = %d, want 4 after shrink and regrow", got)
	}
	if got := m.RowSum(2); got != 0 {
		t.Errorf("RowSum(2) = %d, want 0", got)
	}
	if got := m.ColSum(2); got != 0 {
		t.Errorf("ColSum(2) = %d, want 0", got)
	}
}

func TestMatrix_Select(t *testing.T) {
	m, err := NewMatrixFrom(3, 3, []int{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	if err != nil {
		t.Fatalf("NewMatrixFrom() = %v", err)
	}

	got := m.Select([]int{0, 2}, []int{0, 2}).Data()
	want := []int{1, 3, 7, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Select() = %v, want %v", got, want)
		}
	}

	rows := m.Select([]int{1}, nil).Data()
	if len(rows) != 3 || rows[0] != 4 || rows[2] != 6 {
		t.Errorf("Select(rows only) = %v, want [4 5 6]", rows)
	}
}

func TestMatrix_AddMatrix(t *testing.T) {
	m := NewMatrix(3, 3)
	o := NewMatrix(2, 2)
	o.Set(1, 1, 5)
	if err := m.AddMatrix(o); err != nil {
		t.Fatalf("AddMatrix() = %v", err)
	}
	if m.At(1, 1) != 5 {
		t.Errorf("At(1,1) = %d, want 5", m.At(1, 1))
	}
	if err := o.AddMatrix(m); err == nil {
		t.Error("AddMatrix() of a larger matrix should fail")
	}
}

func TestNewMatrixFrom_LengthMismatch(t *testing.T) {
	if _, err := NewMatrixFrom(2, 2, []int{1, 2, 3}); err == nil {
		t.Error("NewMatrixFrom() should reject short data")
	}
}

func TestCounts_ObserveAndMerge(t *testing.T) {
	a := NewCounts(1, 4)
	a.Observe([]int{0, 2, 2}, []uint8{1, 0, 3})

	if a.States() != 3 {
		t.Fatalf("States() = %d, want 3", a.States())
	}
	if a.Start[0] != 1 || a.Trans.At(0, 2) != 1 || a.Trans.At(2, 2) != 1 {
		t.Errorf("unexpected counts: start=%v trans=%v", a.Start, a.Trans.Data())
	}
	if a.Emit.At(2, 3) != 1 || a.Emit.At(0, 1) != 1 {
		t.Errorf("unexpected emissions: %v", a.Emit.Data())
	}

	b := NewCounts(0, 4)
	b.Observe([]int{4}, []uint8{2})
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge() = %v", err)
	}
	if a.States() != 5 || a.Start[4] != 1 || a.Emit.At(4, 2) != 1 {
		t.Errorf("merge did not carry state 4: states=%d start=%v", a.States(), a.Start)
	}

	occ := a.Occupancy()
	want := []int{1, 0, 2, 0, 1}
	for k := range want {
		if occ[k] != want[k] {
			t.Errorf("Occupancy() = %v, want %v", occ, want)
			break
		}
	}
}
