// Package structured decodes typed values from free-form model replies.
//
// Models wrap JSON in markdown fences or commentary. Decode locates the
// first complete JSON object or array in the reply and unmarshals it.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrNoJSON is returned when a reply contains no decodable JSON value.
var ErrNoJSON = errors.New("no JSON value in reply")

// Decode extracts the JSON payload of reply and unmarshals it into T.
func Decode[T any](reply string) (T, error) {
	var out T
	raw, err := Extract(reply)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("unmarshal %T: %w", out, err)
	}
	return out, nil
}

// Extract returns the JSON text embedded in reply. Fenced blocks are
// preferred; otherwise the first balanced object or array that parses wins.
func Extract(reply string) (string, error) {
	body := unfence(reply)
	if json.Valid([]byte(body)) {
		return body, nil
	}

	for start := 0; start < len(body); start++ {
		if body[start] != '{' && body[start] != '[' {
			continue
		}
		end := matchClose(body, start)
		if end < 0 {
			continue
		}
		candidate := body[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("%w: %q", ErrNoJSON, preview)
}

// unfence returns the contents of the first ``` block, or the trimmed reply.
func unfence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	open := strings.Index(trimmed, "```")
	if open < 0 {
		return trimmed
	}
	rest := trimmed[open+3:]
	// Skip the info string ("json", "JSON", ...).
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// matchClose returns the index of the bracket closing s[start], skipping
// brackets inside string literals, or -1.
func matchClose(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Instructions returns a prompt suffix asking the model to answer with a
// JSON value shaped like T. Field names follow the json struct tags.
func Instructions[T any]() string {
	var zero T
	shape := describe(reflect.TypeOf(zero))
	var b strings.Builder
	b.WriteString("Your response should be in JSON format.\n")
	b.WriteString("Do not include any explanations, only provide a RFC8259 compliant JSON response following this format without deviation.\n")
	b.WriteString("Do not wrap the JSON in markdown code blocks.\n")
	b.WriteString("Here is the JSON shape your output must follow:\n")
	b.WriteString(shape)
	return b.String()
}

func describe(t reflect.Type) string {
	if t == nil {
		return "null"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		var fields []string
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			fields = append(fields, fmt.Sprintf("%q: %s", name, describe(f.Type)))
		}
		return "{" + strings.Join(fields, ", ") + "}"
	case reflect.Slice, reflect.Array:
		return "[" + describe(t.Elem()) + "]"
	case reflect.Map:
		return "{\"<key>\": " + describe(t.Elem()) + "}"
	case reflect.String:
		return "\"string\""
	case reflect.Bool:
		return "true"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "0"
	case reflect.Float32, reflect.Float64:
		return "0.0"
	}
	return "null"
}
