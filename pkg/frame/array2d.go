package frame

import "fmt"

// maxArray2DElements bounds a single grid; anything larger cannot come from a
// valid AV1 frame (65536x65536 luma samples in 4x4 units).
const maxArray2DElements = 16384 * 16384

// Array2D is a row-major grid that keeps its backing storage across Reset
// calls when the new size fits.
type Array2D[T any] struct {
	rows    int
	columns int
	data    []T
}

// Reset resizes the grid and zeroes it.
func (a *Array2D[T]) Reset(rows, columns int) error {
	if rows < 0 || columns < 0 || (columns > 0 && rows > maxArray2DElements/columns) {
		return fmt.Errorf("array2d %dx%d: %w", rows, columns, ErrInvalidDimensions)
	}
	size := rows * columns
	if cap(a.data) >= size {
		a.data = a.data[:size]
		clear(a.data)
	} else {
		a.data = make([]T, size)
	}
	a.rows = rows
	a.columns = columns
	return nil
}

func (a *Array2D[T]) Rows() int    { return a.rows }
func (a *Array2D[T]) Columns() int { return a.columns }

func (a *Array2D[T]) Row(row int) []T {
	return a.data[row*a.columns : (row+1)*a.columns]
}

func (a *Array2D[T]) At(row, column int) T {
	return a.data[row*a.columns+column]
}

func (a *Array2D[T]) Set(row, column int, v T) {
	a.data[row*a.columns+column] = v
}
