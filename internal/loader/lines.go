package loader

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// record is one meaningful input line split at whitespace.
type record struct {
	line   int
	fields []string
}

// readRecords returns every non-blank line that is not a '#' comment.
func readRecords(r io.Reader) ([]record, error) {
	var records []record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		records = append(records, record{line: line, fields: strings.Fields(text)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return records, nil
}

// parseMagnitude parses a finite, non-negative number.
func parseMagnitude(line int, field, what string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, parseErrorf(line, "%s %q is not a number", what, field)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, parseErrorf(line, "%s %q is not finite", what, field)
	}
	if v < 0 {
		return 0, parseErrorf(line, "%s %q must not be negative", what, field)
	}
	return v, nil
}
