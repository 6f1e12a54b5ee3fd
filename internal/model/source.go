package model

import (
	"fmt"
	"sort"
)

// Path represents a file system path.
type Path string

// SourceFile is an immutable snapshot of a test file: its absolute path,
// byte content, and a precomputed line-start index. Offsets into Content
// are byte offsets; Position resolves them to 1-based line/column pairs
// counted in UTF-8 code units, matching go/token's convention.
type SourceFile struct {
	Path       Path
	Content    []byte
	lineStarts []int
}

// NewSourceFile builds a SourceFile and precomputes its line-start index.
func NewSourceFile(path Path, content []byte) *SourceFile {
	starts := []int{0}

	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}

	return &SourceFile{Path: path, Content: content, lineStarts: starts}
}

// Len returns the byte length of the file's content.
func (f *SourceFile) Len() int {
	return len(f.Content)
}

// Position resolves a byte offset to a 1-based (line, column) pair. Column
// is counted in bytes from the start of the line.
func (f *SourceFile) Position(offset int) (line, col int) {
	i := sort.Search(len(f.lineStarts), func(i int) bool {
		return f.lineStarts[i] > offset
	})
	if i == 0 {
		i = 1
	}

	line = i
	col = offset - f.lineStarts[i-1] + 1

	return line, col
}

// Offset resolves a 1-based (line, column) pair back to a byte offset. It
// is the left inverse of Position for any offset actually produced by it.
func (f *SourceFile) Offset(line, col int) (int, error) {
	if line < 1 || line > len(f.lineStarts) {
		return 0, fmt.Errorf("line %d out of range for %s", line, f.Path)
	}

	return f.lineStarts[line-1] + col - 1, nil
}

// Slice returns the raw bytes in [start, end).
func (f *SourceFile) Slice(start, end int) []byte {
	return f.Content[start:end]
}
