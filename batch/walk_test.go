package batch

import (
	"errors"
	"iter"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfbatchsign/internal/testpdf"
)

func pdfTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testpdf.WriteTree(t, root, map[string][]byte{
		"a/1.pdf":     []byte("%PDF-1.7"),
		"a/b/2.PDF":   []byte("%PDF-1.7"),
		"a/notes.txt": []byte("notes"),
		"c.pdf":       []byte("%PDF-1.7"),
	})
	return root
}

func collect(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	for path, err := range WalkPDFs(root) {
		require.NoError(t, err)
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		paths = append(paths, filepath.ToSlash(rel))
	}
	return paths
}

func TestWalkPDFs(t *testing.T) {
	root := pdfTree(t)

	want := []string{"a/1.pdf", "a/b/2.PDF", "c.pdf"}
	assert.Equal(t, want, collect(t, root))
	// A second range starts over.
	assert.Equal(t, want, collect(t, root))
}

func TestWalkPDFsStopsEarly(t *testing.T) {
	root := pdfTree(t)

	seen := 0
	for _, err := range WalkPDFs(root) {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestWalkPDFsMissingRoot(t *testing.T) {
	var errs []error
	for path, err := range WalkPDFs(filepath.Join(t.TempDir(), "missing")) {
		assert.Empty(t, path)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])

	_, err := CountPDFs(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCountPDFs(t *testing.T) {
	count, err := CountPDFs(pdfTree(t))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = CountPDFs(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func ints(values []int, failAfter error) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for _, v := range values {
			if !yield(v, nil) {
				return
			}
		}
		if failAfter != nil {
			yield(0, failAfter)
		}
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		size   int
		want   [][]int
	}{
		{"empty", nil, 2, nil},
		{"exact", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"remainder", []int{1, 2, 3}, 2, [][]int{{1, 2}, {3}}},
		{"default size", []int{1, 2, 3}, 0, [][]int{{1, 2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]int
			for chunk, err := range Chunks(ints(tt.values, nil), tt.size) {
				require.NoError(t, err)
				got = append(got, slices.Clone(chunk))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunksError(t *testing.T) {
	boom := errors.New("boom")

	var got [][]int
	var gotErr error
	for chunk, err := range Chunks(ints([]int{1, 2, 3}, boom), 2) {
		if err != nil {
			gotErr = err
			continue
		}
		got = append(got, slices.Clone(chunk))
	}

	assert.Equal(t, [][]int{{1, 2}, {3}}, got)
	assert.ErrorIs(t, gotErr, boom)
}

func TestChunksStopsEarly(t *testing.T) {
	calls := 0
	for range Chunks(ints([]int{1, 2, 3, 4, 5}, nil), 2) {
		calls++
		break
	}
	assert.Equal(t, 1, calls)
}
