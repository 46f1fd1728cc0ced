// Package emotion maps the inference service's per-utterance emotion codes to the
// single label that drives the rig for a turn.
package emotion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Label is a prominent emotion.
type Label string

const (
	Thinking Label = "thinking"
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
)

// Service emotion codes.
const (
	CodeThinking = -2
	CodeNeutral  = 0
	CodeHappy    = 1
	CodeSad      = 2
)

var labelByCode = map[int]Label{
	CodeThinking: Thinking,
	CodeNeutral:  Neutral,
	CodeHappy:    Happy,
	CodeSad:      Sad,
}

// Lookup returns the label for a known code.
func Lookup(code int) (Label, bool) {
	label, ok := labelByCode[code]
	return label, ok
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	switch l {
	case Thinking, Neutral, Happy, Sad:
		return true
	default:
		return false
	}
}

func (l Label) String() string {
	return string(l)
}

// Aggregate picks the prominent emotion for one turn. Unknown codes are ignored.
// Between Happy and Sad the higher count wins; equal counts go to whichever code
// appeared first in codes. Anything else, including no codes, is Neutral.
func Aggregate(codes []int) Label {
	var (
		counts = map[int]int{}
		order  []int
	)
	for _, code := range codes {
		if code != CodeHappy && code != CodeSad {
			continue
		}
		if counts[code] == 0 {
			order = append(order, code)
		}
		counts[code]++
	}

	best, bestCount := 0, 0
	for _, code := range order {
		if counts[code] > bestCount {
			best, bestCount = code, counts[code]
		}
	}
	if bestCount == 0 {
		return Neutral
	}
	return labelByCode[best]
}

// ParseCodes reads a comma-separated integer list such as "1,0,2". Blank entries
// are skipped. A non-integer entry is dropped on its own; the valid codes are still
// returned together with an error naming every dropped entry.
func ParseCodes(header string) ([]int, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	parts := strings.Split(header, ",")
	codes := make([]int, 0, len(parts))
	var bad []error
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			bad = append(bad, fmt.Errorf("parse emotion code %q: %w", part, err))
			continue
		}
		codes = append(codes, code)
	}
	return codes, errors.Join(bad...)
}
