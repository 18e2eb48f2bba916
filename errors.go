package datacache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNilStore   = errors.New("datacache: store is required")
	ErrNilService = errors.New("datacache: service is required")
	ErrNilFactory = errors.New("datacache: descriptor factory is required")
	ErrNilQuery   = errors.New("datacache: query is required")
	ErrEmptyKey   = errors.New("datacache: empty cache key")
	ErrClosed     = errors.New("datacache: service closed")
)

// ShapeError reports a key that holds a different form than the caller
// asked for.
type ShapeError struct {
	Key  string
	Want Shape
	Got  Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("datacache: key %q holds %s, want %s", e.Key, e.Got, e.Want)
}

// InvalidateError lists the dependencies whose tokens could not be fired.
// The others were fired.
type InvalidateError struct {
	Failed map[Dependency]error
}

func (e *InvalidateError) Error() string {
	if len(e.Failed) == 1 {
		for d, err := range e.Failed {
			return fmt.Sprintf("datacache: invalidate %s: %v", d, err)
		}
	}
	parts := make([]string, 0, len(e.Failed))
	for d, err := range e.Failed {
		parts = append(parts, d.String()+": "+err.Error())
	}
	return fmt.Sprintf("datacache: invalidate failed for %d dependencies: %s",
		len(e.Failed), strings.Join(parts, "; "))
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
