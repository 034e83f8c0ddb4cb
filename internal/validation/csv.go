package validation

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// CountCSVRows counts the data rows in one exported CSV object. The
// replication service writes exports without a header line, so every
// non-blank line is a data row. A missing trailing newline still counts
// the final line.
func CountCSVRows(r io.Reader) (int64, error) {
	count, _, err := scanCSV(r, 0)
	return count, err
}

// scanCSV counts data rows and captures up to sampleN of them for the
// report.
func scanCSV(r io.Reader, sampleN int) (int64, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var count int64
	var sample []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		count++
		if len(sample) < sampleN {
			sample = append(sample, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return count, sample, fmt.Errorf("reading CSV: %w", err)
	}
	return count, sample, nil
}
