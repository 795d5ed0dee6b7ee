package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// tailChunk is how far back from the end of the file each read reaches
const tailChunk = 64 * 1024

// TailFile returns up to n of the last lines of the file at path. A missing
// file yields no lines and no error.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 || path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	// Read growing windows from the end until enough lines are in view or
	// the whole file has been read.
	window := int64(tailChunk)
	for {
		start := info.Size() - window
		if start < 0 {
			start = 0
		}
		lines, err := readLinesFrom(f, start)
		if err != nil {
			return nil, err
		}
		if start > 0 && len(lines) > 0 {
			// first line is probably cut in half
			lines = lines[1:]
		}
		if len(lines) >= n || start == 0 {
			if len(lines) > n {
				lines = lines[len(lines)-n:]
			}
			return lines, nil
		}
		window *= 2
	}
}

func readLinesFrom(f *os.File, offset int64) ([]string, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return lines, nil
}
