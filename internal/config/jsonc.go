package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// stripJSONC blanks comments and trailing commas with spaces. Newlines are
// kept and the output has the same length as the input, so decoder offsets
// still point at the right line and column of the original document.
func stripJSONC(content string) (string, error) {
	out := []byte(content)

	const (
		code = iota
		str
		lineComment
		blockComment
	)
	mode := code
	escaped := false
	blockStart := 0

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch mode {
		case str:
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				mode = code
			}

		case lineComment:
			if ch == '\n' || ch == '\r' {
				mode = code
				continue
			}
			out[i] = ' '

		case blockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				mode = code
				continue
			}
			if ch != '\n' && ch != '\r' && ch != '\t' {
				out[i] = ' '
			}

		default:
			switch {
			case ch == '"':
				mode = str
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				mode = lineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				blockStart = i
				i++
				mode = blockComment
			case ch == '}' || ch == ']':
				blankTrailingComma(out[:i])
			}
		}
	}

	if mode == blockComment {
		line, col := position(content, int64(blockStart)+1)
		return "", fmt.Errorf("line %d column %d: unterminated block comment in JSONC", line, col)
	}
	return string(out), nil
}

// blankTrailingComma replaces a comma that is the last non-space byte of prefix.
func blankTrailingComma(prefix []byte) {
	j := len(bytes.TrimRight(prefix, " \t\r\n"))
	if j > 0 && prefix[j-1] == ',' {
		prefix[j-1] = ' '
	}
}

// decodeJSONC strictly decodes a single JSONC document into v. Unknown fields
// and trailing values are errors; positioned errors carry line and column.
func decodeJSONC(content string, v any) error {
	clean, err := stripJSONC(content)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return locate(clean, err)
	}

	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return locate(clean, fmt.Errorf("multiple JSON values are not allowed"), dec.InputOffset())
	default:
		return locate(clean, err)
	}
}

// locate prefixes err with the line and column it refers to. The offset comes
// from json error types, or from at when given.
func locate(content string, err error, at ...int64) error {
	offset := int64(-1)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	case len(at) > 0:
		offset = at[0]
	}
	if offset < 0 {
		return err
	}
	line, col := position(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// position maps a 1-based byte offset, as reported by encoding/json, to a line
// and column.
func position(content string, offset int64) (line int, col int) {
	line, col = 1, 1
	if offset <= 0 {
		return line, col
	}
	end := min(int(offset), len(content))
	for i := 0; i < end-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
