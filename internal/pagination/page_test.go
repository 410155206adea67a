package pagination

import (
	"testing"

	"github.com/example/tunestore/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"first page", Request{Page: 0, Size: 20}, false},
		{"max size", Request{Page: 3, Size: MaxSize}, false},
		{"negative page", Request{Page: -1, Size: 20}, true},
		{"zero size", Request{Page: 0, Size: 0}, true},
		{"oversized", Request{Page: 0, Size: MaxSize + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPage)
				assert.Equal(t, apperr.ValidationFailure, apperr.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	p := Slice(all, Request{Page: 1, Size: 2})
	assert.Equal(t, []int{3, 4}, p.Items)
	assert.Equal(t, 5, p.Total)

	last := Slice(all, Request{Page: 2, Size: 2})
	assert.Equal(t, []int{5}, last.Items)

	past := Slice(all, Request{Page: 9, Size: 2})
	assert.Empty(t, past.Items)
	assert.NotNil(t, past.Items)
}
