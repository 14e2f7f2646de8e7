package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Working notes cap. When exceeded the tail is kept: the newest
// observations matter most near finalization.
const maxNotesLen = 12000

// SetNotes replaces the working-notes buffer.
func (s *Session) SetNotes(notes any) {
	text := capNotes(normalizeNotes(CoerceNotes(notes)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingNotes = text
}

// AppendNotes appends to the working-notes buffer. Fragments carrying their
// own paragraph breaks are joined on a newline, plain phrases on a space.
func (s *Session) AppendNotes(notes any) {
	fragment := normalizeNotes(CoerceNotes(notes))
	if fragment == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workingNotes == "" {
		s.workingNotes = capNotes(fragment)
		return
	}

	joiner := " "
	if strings.Contains(fragment, "\n") || strings.Contains(s.workingNotes, "\n") {
		joiner = "\n"
	}
	s.workingNotes = capNotes(s.workingNotes + joiner + fragment)
}

// Notes returns the working-notes buffer.
func (s *Session) Notes() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingNotes
}

// CoerceNotes renders a tool-supplied notes payload to readable text. The
// model may send a string, an object, or a list; none of them should be
// rejected.
func CoerceNotes(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case []any:
		parts := make([]string, 0, len(n))
		for _, item := range n {
			if s := CoerceNotes(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := CoerceNotes(n[k]); s != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", k, s))
			}
		}
		return strings.Join(parts, "\n")
	case json.Number:
		return n.String()
	default:
		return fmt.Sprintf("%v", n)
	}
}

// normalizeNotes collapses intra-line whitespace while preserving paragraph
// breaks.
func normalizeNotes(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	paragraphs := strings.Split(text, "\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

// capNotes keeps the tail when the buffer exceeds the cap.
func capNotes(text string) string {
	if len(text) <= maxNotesLen {
		return text
	}
	return text[len(text)-maxNotesLen:]
}
