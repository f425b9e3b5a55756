// Package command turns chat lines into agent actions.
package command

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Invocation is one parsed command line.
type Invocation struct {
	Name   string   // lower-cased, prefix stripped
	Args   []string // whitespace separated, case preserved
	Rest   string   // raw text after the command token
	Sender string
}

// Parse splits line into a command invocation. It reports false when
// line is not a command (no prefix, or nothing after it).
func Parse(line, prefix string) (Invocation, bool) {
	line = strings.TrimSpace(line)
	if prefix == "" || !strings.HasPrefix(line, prefix) {
		return Invocation{}, false
	}
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], prefix)
	if name == "" {
		return Invocation{}, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	return Invocation{
		Name: strings.ToLower(name),
		Args: fields[1:],
		Rest: rest,
	}, true
}

var errNotFinite = errors.New("not a finite number")

// ParseFinite parses s as a float64 and rejects NaN and ±Inf, including
// values that overflow to infinity.
func ParseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}
