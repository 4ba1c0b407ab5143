package util

import (
	"errors"
	"fmt"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxResultWindow mirrors the elasticsearch index.max_result_window default: from+size may not exceed it.
	MaxResultWindow = 10000
)

var ErrWindowTooDeep = errors.New("page window too deep")

// Window turns page/from/size query values into a search offset and limit.
// A positive page wins over from.
func Window(page, from, size int) (offset, limit int, err error) {
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	if page > 0 {
		if page-1 > (MaxResultWindow-size)/size {
			return 0, 0, fmt.Errorf("%w: page %d of size %d", ErrWindowTooDeep, page, size)
		}
		return (page - 1) * size, size, nil
	}
	if from < 0 {
		from = 0
	}
	if from > MaxResultWindow-size {
		return 0, 0, fmt.Errorf("%w: from %d with size %d", ErrWindowTooDeep, from, size)
	}
	return from, size, nil
}
