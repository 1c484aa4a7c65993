package textnorm

import (
	"strconv"
	"strings"
)

// SplitList splits a delimited field ("A|B|C") into trimmed, non-empty parts
func SplitList(s, sep string) []string {
	if sep == "" {
		sep = "|"
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunk splits items into consecutive slices of at most size elements
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// ParseInt parses s as an integer, returning def on failure.
// Spreadsheet exports often write integers as "12.0", which is accepted.
func ParseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f)
	}
	return def
}

// ParseFloat parses s as a float, returning def on failure
func ParseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}
