package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedFilename is returned when a filename has no bracket marking
// the end of the title.
var ErrMalformedFilename = errors.New("malformed filename")

const altNameMarker = "[ALT "

// ParsedFilename is the metadata encoded in a library filename of the form
//
//	Title [ALT Alternate Title](Actor One, Actor Two, 1999).mkv
type ParsedFilename struct {
	Name      string
	AltName   *string
	Actors    []string
	MovieYear *int
	Filepath  string
}

// ParseFilename extracts the title, alternate title, actors and year from
// filename. The same filename always parses to the same result.
func ParseFilename(filename string) (*ParsedFilename, error) {
	nameEnd := titleEnd(filename)
	if nameEnd < 0 {
		return nil, fmt.Errorf("%w: %q has no '[' or '(' after the title", ErrMalformedFilename, filename)
	}

	name := strings.TrimSpace(filename[:nameEnd])
	if name == "" {
		return nil, fmt.Errorf("%w: %q has an empty title", ErrMalformedFilename, filename)
	}

	parsed := &ParsedFilename{
		Name:     name,
		AltName:  parseAltName(filename),
		Filepath: filename,
	}

	segment := actorsSegment(filename)
	remainder := segment
	if year, idx, ok := trailingYear(segment); ok {
		parsed.MovieYear = &year
		remainder = strings.TrimSpace(segment[:idx])
		remainder = strings.TrimSuffix(remainder, ",")
	}

	parsed.Actors = splitActors(remainder)

	return parsed, nil
}

// titleEnd returns the index of the earlier of the first '[' or '(', or -1.
func titleEnd(filename string) int {
	square := strings.IndexByte(filename, '[')
	paren := strings.IndexByte(filename, '(')

	switch {
	case square < 0:
		return paren
	case paren < 0:
		return square
	default:
		return min(square, paren)
	}
}

func parseAltName(filename string) *string {
	start := strings.Index(filename, altNameMarker)
	if start < 0 {
		return nil
	}
	start += len(altNameMarker)

	end := strings.IndexByte(filename[start:], ']')
	if end < 0 {
		end = len(filename) - start
	}

	alt := strings.TrimSpace(filename[start : start+end])
	return &alt
}

// actorsSegment is the trimmed text between the first '(' and the last ')'.
func actorsSegment(filename string) string {
	open := strings.IndexByte(filename, '(')
	closing := strings.LastIndexByte(filename, ')')
	if open < 0 || closing <= open {
		return ""
	}

	return strings.TrimSpace(filename[open+1 : closing])
}

// trailingYear finds a run of exactly four digits at the end of segment and
// returns its value and starting index.
func trailingYear(segment string) (int, int, bool) {
	if len(segment) < 4 {
		return 0, 0, false
	}

	idx := len(segment) - 4
	for i := idx; i < len(segment); i++ {
		if !isDigit(segment[i]) {
			return 0, 0, false
		}
	}
	if idx > 0 && isDigit(segment[idx-1]) {
		return 0, 0, false
	}

	year, err := strconv.Atoi(segment[idx:])
	if err != nil {
		return 0, 0, false
	}

	return year, idx, true
}

func splitActors(s string) []string {
	parts := strings.Split(s, ",")
	actors := make([]string, len(parts))
	for i, p := range parts {
		actors[i] = strings.TrimSpace(p)
	}
	return actors
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
