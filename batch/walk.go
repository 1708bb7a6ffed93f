package batch

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
)

// DefaultChunkSize bounds how many archive paths are buffered at a time.
const DefaultChunkSize = 20

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// WalkPDFs yields the PDF files below root depth first, descending into each
// directory as it is met. Every range over the returned sequence starts a
// new walk. A walk error is yielded once, with an empty path, and ends the
// sequence.
func WalkPDFs(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() || !isPDF(path) {
				return nil
			}
			if !yield(path, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// CountPDFs walks root once and counts the PDF files below it.
func CountPDFs(root string) (int, error) {
	count := 0
	for _, err := range WalkPDFs(root) {
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Chunks groups the values of seq into slices of at most size elements. An
// error from seq is yielded after the values collected before it.
func Chunks[T any](seq iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]T, error) bool) {
		chunk := make([]T, 0, size)
		for v, err := range seq {
			if err != nil {
				if len(chunk) > 0 && !yield(chunk, nil) {
					return
				}
				yield(nil, err)
				return
			}
			chunk = append(chunk, v)
			if len(chunk) == size {
				if !yield(chunk, nil) {
					return
				}
				chunk = make([]T, 0, size)
			}
		}
		if len(chunk) > 0 {
			yield(chunk, nil)
		}
	}
}
