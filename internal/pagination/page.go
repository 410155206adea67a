package pagination

import (
	"fmt"

	"github.com/example/tunestore/internal/apperr"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

var ErrInvalidPage = apperr.New(apperr.ValidationFailure, "invalid page request")

// Request is a zero-based page request.
type Request struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

func (r Request) Validate() error {
	if r.Page < 0 {
		return fmt.Errorf("%w: page must not be negative", ErrInvalidPage)
	}
	if r.Size < 1 || r.Size > MaxSize {
		return fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidPage, MaxSize)
	}
	return nil
}

func (r Request) Offset() int { return r.Page * r.Size }

// Page is one slice of a larger result set.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// Slice pages an in-memory result set.
func Slice[T any](all []T, r Request) Page[T] {
	p := Page[T]{Items: []T{}, Page: r.Page, Size: r.Size, Total: len(all)}
	start := r.Offset()
	if start >= len(all) {
		return p
	}
	end := start + r.Size
	if end > len(all) {
		end = len(all)
	}
	p.Items = append(p.Items, all[start:end]...)
	return p
}
