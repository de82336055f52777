// Package salvage recovers JSON payloads from language model output that may be
// wrapped in prose, code fences or citation markup, or cut off before the end.
//
// The transformation order is fixed: tag strip, fence strip, span location,
// bracket repair, decode. A payload that cannot be recovered yields nothing
// rather than an error.
package salvage

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxStarts bounds how many opening brackets are tried before giving up.
const maxStarts = 64

var pseudoTagBlocks = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<citation\b[^>]*>.*?</citation>`),
	regexp.MustCompile(`(?is)<cite\b[^>]*>.*?</cite>`),
	regexp.MustCompile(`(?is)<source\b[^>]*>.*?</source>`),
	regexp.MustCompile(`(?is)<reference\b[^>]*>.*?</reference>`),
	regexp.MustCompile(`(?is)<thinking\b[^>]*>.*?</thinking>`),
}

var (
	strayTags    = regexp.MustCompile(`(?i)</?(?:citation|cite|source|reference)\b[^>]*/?>`)
	citeMarkers  = regexp.MustCompile(`(?i)\[cite_start\]|\[cite:[^\]]*\]`)
	fenceMarkers = regexp.MustCompile("```[A-Za-z0-9_+-]*")
)

// StripTags removes citation-style pseudo-tag blocks and stray markers.
func StripTags(s string) string {
	for _, re := range pseudoTagBlocks {
		s = re.ReplaceAllString(s, "")
	}
	s = strayTags.ReplaceAllString(s, "")
	return citeMarkers.ReplaceAllString(s, "")
}

// StripFences removes markdown code fence markers, keeping their content.
func StripFences(s string) string {
	return fenceMarkers.ReplaceAllString(s, "")
}

// Extract returns the first decodable JSON array or object in raw.
func Extract(raw string) (json.RawMessage, bool) {
	s := StripFences(StripTags(raw))

	tried := 0
	for i := 0; i < len(s) && tried < maxStarts; i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}
		tried++
		if candidate, ok := repairFrom(s[i:]); ok {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

// Records decodes the payload as a list of T. When the payload is an object,
// the list is read from its key field. Elements that fail to decode are skipped.
// A payload of any other shape yields nil.
func Records[T any](raw, key string) []T {
	out, _ := Decode[T](raw, key)
	return out
}

// Decode is Records that also reports how many elements were skipped.
func Decode[T any](raw, key string) (out []T, skipped int) {
	payload, ok := Extract(raw)
	if !ok {
		return nil, 0
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		if key == "" {
			return nil, 0
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err != nil {
			return nil, 0
		}
		field, ok := obj[key]
		if !ok {
			return nil, 0
		}
		if err := json.Unmarshal(field, &items); err != nil {
			return nil, 0
		}
	}

	out = make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

// repairFrom takes text starting at an opening bracket and returns a valid JSON span.
func repairFrom(s string) (string, bool) {
	sc := scan(s)
	if sc.end > 0 {
		span := s[:sc.end]
		return span, json.Valid([]byte(span))
	}

	// Truncated: close what is open, once.
	closed := s
	if sc.inString {
		closed += `"`
	}
	closed += closers(sc.stack)
	if json.Valid([]byte(closed)) {
		return closed, true
	}

	// Drop the trailing partial element of the outermost container.
	if sc.lastTopComma > 0 {
		trimmed := strings.TrimRight(s[:sc.lastTopComma], " \t\r\n") + closers(sc.stack[:1])
		if json.Valid([]byte(trimmed)) {
			return trimmed, true
		}
	}
	return "", false
}

type scanResult struct {
	end          int // index after the matching close, 0 if none
	stack        []byte
	inString     bool
	lastTopComma int
}

func scan(s string) scanResult {
	var r scanResult
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if r.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				r.inString = false
			}
			continue
		}
		switch c {
		case '"':
			r.inString = true
		case '[', '{':
			r.stack = append(r.stack, c)
		case ']', '}':
			if len(r.stack) == 0 {
				return r
			}
			r.stack = r.stack[:len(r.stack)-1]
			if len(r.stack) == 0 {
				r.end = i + 1
				return r
			}
		case ',':
			if len(r.stack) == 1 {
				r.lastTopComma = i
			}
		}
	}
	return r
}

func closers(stack []byte) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String()
}
