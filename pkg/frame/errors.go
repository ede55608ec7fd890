package frame

import "errors"

var (
	// ErrPoolExhausted is returned by GetFreeBuffer when the pool is at its
	// configured capacity and every buffer is in use.
	ErrPoolExhausted = errors.New("frame buffer pool exhausted")
	// ErrPoolClosed is returned by GetFreeBuffer after Close.
	ErrPoolClosed = errors.New("frame buffer pool closed")
	// ErrAllocationFailed wraps allocator callback failures.
	ErrAllocationFailed = errors.New("frame buffer allocation failed")
	// ErrInvalidDimensions is returned for grids or images that cannot be sized.
	ErrInvalidDimensions = errors.New("invalid dimensions")
	// ErrSizeChanged wraps a failing size-changed callback.
	ErrSizeChanged = errors.New("frame buffer size change rejected")
)
