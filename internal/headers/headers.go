// Package headers converts between the raw header string carried by requests
// and an ordered list of name/value pairs.
package headers

import (
	"strings"
)

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// Parse splits a raw header string ("Name: value" per line) into pairs.
// Lines without a colon are kept as names with an empty value; blank lines
// are dropped. Order is preserved.
func Parse(raw string) []Header {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	out := make([]Header, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, _ := strings.Cut(line, ":")
		out = append(out, Header{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return out
}

// String joins pairs back into the raw header format.
func String(hs []Header) string {
	var b strings.Builder
	for i, h := range hs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
	}
	return b.String()
}

// Replace sets the value of the header called name. Names match case
// insensitively; the first match is replaced in place and later duplicates
// are removed. When no header matches, a new one is appended.
func Replace(hs []Header, name, value string) []Header {
	out := make([]Header, 0, len(hs)+1)
	found := false
	for _, h := range hs {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
			continue
		}
		if found {
			continue
		}
		found = true
		out = append(out, Header{Name: h.Name, Value: value})
	}
	if !found {
		out = append(out, Header{Name: name, Value: value})
	}
	return out
}

// Get returns the value of the first header called name.
func Get(hs []Header, name string) (string, bool) {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ReplaceValue is Replace on the raw header format.
func ReplaceValue(raw, name, value string) string {
	return String(Replace(Parse(raw), name, value))
}

// Mask replaces the value of every header whose name matches one of names
// with mask. Unlike ReplaceValue nothing is appended, and raw is returned
// unchanged when no header matches.
func Mask(raw, mask string, names ...string) string {
	hs := Parse(raw)
	masked := false
	for i, h := range hs {
		for _, name := range names {
			if name != "" && strings.EqualFold(h.Name, name) {
				hs[i].Value = mask
				masked = true
				break
			}
		}
	}
	if !masked {
		return raw
	}
	return String(hs)
}
