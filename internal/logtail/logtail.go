package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const chunkSize = 32 * 1024

// Read returns at most maxLines from the end of the file at path. The file is
// read backwards in chunks, so only the tail is loaded. A missing file yields
// no lines.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	tail, err := readTail(file, info.Size(), maxLines)
	if err != nil {
		return nil, err
	}
	return splitLines(tail, maxLines), nil
}

// readTail returns the bytes after the (maxLines+1)-th newline from the end,
// or the whole file when it holds fewer lines.
func readTail(r io.ReaderAt, size int64, maxLines int) ([]byte, error) {
	var buf []byte
	offset := size
	for offset > 0 {
		n := int64(chunkSize)
		if offset < n {
			n = offset
		}
		offset -= n
		chunk := make([]byte, n)
		if _, err := r.ReadAt(chunk, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log: %w", err)
		}
		buf = append(chunk, buf...)
		// One extra newline covers the trailing newline of the last line.
		if bytes.Count(buf, []byte{'\n'}) > maxLines {
			break
		}
	}
	return buf, nil
}

func splitLines(buf []byte, maxLines int) []string {
	text := strings.TrimSuffix(string(buf), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}

// Follower returns lines appended to a file since the previous call. A file
// that shrank (truncated or rotated) is read again from the start.
type Follower struct {
	path    string
	offset  int64
	partial string
}

// NewFollower starts following path at its current end.
func NewFollower(path string) *Follower {
	f := &Follower{path: path}
	if info, err := os.Stat(path); err == nil {
		f.offset = info.Size()
	}
	return f
}

// Next returns complete lines written since the last call. An unterminated
// last line is held back until its newline arrives.
func (f *Follower) Next() ([]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.offset, f.partial = 0, ""
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() < f.offset {
		f.offset, f.partial = 0, ""
	}
	if info.Size() == f.offset {
		return nil, nil
	}

	data := make([]byte, info.Size()-f.offset)
	n, err := file.ReadAt(data, f.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read log: %w", err)
	}
	f.offset += int64(n)

	text := f.partial + string(data[:n])
	cut := strings.LastIndexByte(text, '\n')
	if cut < 0 {
		f.partial = text
		return nil, nil
	}
	f.partial = text[cut+1:]
	lines := strings.Split(text[:cut], "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, nil
}
