package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errInvalidRange  = errors.New("invalid range format")
	errUnsatisfiable = errors.New("range not satisfiable")
)

// byteRange is one satisfiable span of an artifact, both ends inclusive.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

func (r byteRange) contentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.end, total)
}

// parseByteRange interprets a Range header against an artifact of the given
// size. ok is false when no range was requested. Multi-range requests are
// answered with their first span only.
func parseByteRange(header string, size int64) (rng byteRange, ok bool, err error) {
	if header == "" {
		return byteRange{}, false, nil
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return byteRange{}, false, errInvalidRange
	}
	if idx := strings.Index(spec, ","); idx != -1 {
		spec = strings.TrimSpace(spec[:idx])
	}

	first, last, found := strings.Cut(spec, "-")
	if !found {
		return byteRange{}, false, errInvalidRange
	}

	var start, end int64
	if first == "" {
		// Suffix form: the last N bytes.
		suffix, err := strconv.ParseInt(last, 10, 64)
		if err != nil || suffix <= 0 {
			return byteRange{}, false, errInvalidRange
		}
		start = size - suffix
		if start < 0 {
			start = 0
		}
		end = size - 1
	} else {
		start, err = strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return byteRange{}, false, errInvalidRange
		}
		if last == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(last, 10, 64)
			if err != nil {
				return byteRange{}, false, errInvalidRange
			}
		}
	}

	if start > end || start >= size {
		return byteRange{}, false, errUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return byteRange{start: start, end: end}, true, nil
}
