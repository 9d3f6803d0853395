package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaging(t *testing.T) {
	tests := []struct {
		page, size, total int64
		skip, pages       int64
	}{
		{page: 1, size: 10, total: 25, skip: 0, pages: 3},
		{page: 2, size: 10, total: 25, skip: 10, pages: 3},
		{page: 3, size: 10, total: 30, skip: 20, pages: 3},
		{page: 0, size: 5, total: 0, skip: 0, pages: 0},
		{page: -4, size: 7, total: 1, skip: 0, pages: 1},
	}

	for _, tt := range tests {
		p, err := NewPaging(tt.page, tt.size)
		require.NoError(t, err)
		assert.Equal(t, tt.skip, p.Skip())
		assert.Equal(t, tt.size, p.Limit())
		assert.Equal(t, tt.pages, p.TotalPages(tt.total))
	}

	_, err := NewPaging(1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = NewPaging(math.MaxInt64, 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Contains(t, err.Error(), "out of range")

	p, err := NewPaging(2, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), p.Skip())

	p, _ = NewPaging(2, 500)
	p = p.Clamp(100)
	assert.Equal(t, int64(100), p.Size())
	assert.Equal(t, int64(100), p.Skip())
	assert.Equal(t, int64(100), p.Clamp(0).Size())
}
