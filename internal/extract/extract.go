// Package extract recovers JSON-shaped blocks from free text produced by a
// language model. Strategies run in priority order and the first success
// wins; nothing here ever returns an error.
package extract

import (
	"encoding/json"
	"strings"
)

// Names reported by the built-in strategies.
const (
	StrategyLabeled = "labeled"
	StrategyFenced  = "fenced"
	StrategyGreedy  = "greedy"
)

// Strategy finds a block for label in text.
type Strategy interface {
	Name() string
	Find(label, text string) (any, bool)
}

// Extractor runs a chain of strategies.
type Extractor struct {
	strategies []Strategy
}

// New returns the default chain: labeled block, fenced blocks, greedy span.
func New() *Extractor {
	return &Extractor{strategies: []Strategy{LabeledBlock{}, FencedBlocks{}, Greedy{}}}
}

// NewWith builds an extractor from an explicit chain.
func NewWith(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Extract returns the first value any strategy recovers for label, and the
// name of the strategy that produced it.
func (e *Extractor) Extract(label, text string) (any, string, bool) {
	for _, s := range e.strategies {
		if v, ok := s.Find(label, text); ok {
			// A labeled block is already the section; only a single-key
			// envelope around it is peeled. Whole-document matches are
			// narrowed to the labeled key when present.
			_, labeled := s.(LabeledBlock)
			return unwrap(label, v, labeled), s.Name(), true
		}
	}
	return nil, "", false
}

// ExtractInto decodes the recovered value into out.
func (e *Extractor) ExtractInto(label, text string, out any) bool {
	v, _, ok := e.Extract(label, text)
	if !ok {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// unwrap returns obj[label] when the block is an envelope keyed by label.
func unwrap(label string, v any, singleKeyOnly bool) any {
	obj, ok := v.(map[string]any)
	if !ok || (singleKeyOnly && len(obj) != 1) {
		return v
	}
	if inner, ok := lookup(obj, label); ok {
		switch inner.(type) {
		case map[string]any, []any:
			return inner
		}
	}
	return v
}

func lookup(obj map[string]any, label string) (any, bool) {
	want := strings.ToLower(strings.TrimSpace(label))
	for k, v := range obj {
		if strings.ToLower(k) == want {
			return v, true
		}
	}
	return nil, false
}

/* ─── Strategies ─────────────────────────────────────────────────────── */

// LabeledBlock looks for "LABEL:" followed by an optional code fence and a
// balanced {...} or [...] block. Every occurrence of the label is tried.
type LabeledBlock struct{}

func (LabeledBlock) Name() string { return StrategyLabeled }

func (LabeledBlock) Find(label, text string) (any, bool) {
	if label == "" {
		return nil, false
	}
	upper := asciiUpper(text)
	marker := asciiUpper(label)
	from := 0
	for {
		idx := strings.Index(upper[from:], marker)
		if idx < 0 {
			return nil, false
		}
		pos := from + idx + len(marker)
		from = pos
		pos = skipSpaces(text, pos)
		// Tolerate "**MEALS**:" style emphasis.
		for pos < len(text) && (text[pos] == '*' || text[pos] == '_') {
			pos++
		}
		if pos >= len(text) || text[pos] != ':' {
			continue
		}
		pos = skipFence(text, skipSpaces(text, pos+1))
		open := firstOpen(text, pos)
		if open < 0 {
			return nil, false
		}
		end, ok := matchBalanced(text, open)
		if !ok {
			continue
		}
		if v, ok := parse(text[open : end+1]); ok {
			return v, true
		}
	}
}

// FencedBlocks parses every ```json fence (or untagged fence holding an
// object or array) and returns the first that decodes, preferring one that
// carries the label as a top-level key.
type FencedBlocks struct{}

func (FencedBlocks) Name() string { return StrategyFenced }

func (FencedBlocks) Find(label, text string) (any, bool) {
	var first any
	found := false
	for _, body := range fences(text) {
		v, ok := parse(body)
		if !ok {
			continue
		}
		if obj, isObj := v.(map[string]any); isObj && label != "" {
			if _, has := lookup(obj, label); has {
				return v, true
			}
		}
		if !found {
			first, found = v, true
		}
	}
	return first, found
}

// Greedy parses the span from the first '{' to the last '}' of the document.
type Greedy struct{}

func (Greedy) Name() string { return StrategyGreedy }

func (Greedy) Find(_ string, text string) (any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return parse(text[start : end+1])
}

/* ─── Scanning helpers ───────────────────────────────────────────────── */

// asciiUpper upper-cases ASCII letters only, keeping byte offsets aligned
// with the original text.
func asciiUpper(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// skipFence steps over an opening ``` marker and its language tag.
func skipFence(s string, i int) int {
	if !strings.HasPrefix(s[i:], "```") {
		return i
	}
	i += 3
	for i < len(s) && s[i] != '\n' && s[i] != '{' && s[i] != '[' {
		i++
	}
	return skipSpaces(s, i)
}

// firstOpen returns the index of the first '{' at or after i, or of '[' when
// an array starts before any object.
func firstOpen(s string, i int) int {
	brace := strings.IndexByte(s[i:], '{')
	bracket := strings.IndexByte(s[i:], '[')
	switch {
	case brace < 0 && bracket < 0:
		return -1
	case brace < 0:
		return i + bracket
	case bracket < 0 || brace < bracket:
		return i + brace
	default:
		// Only treat '[' as the start when nothing but whitespace precedes it,
		// so "[see below] {...}" still finds the object.
		if strings.TrimSpace(s[i:i+bracket]) == "" {
			return i + bracket
		}
		return i + brace
	}
}

// matchBalanced returns the index of the bracket closing s[open]. Brackets
// inside JSON strings are ignored.
func matchBalanced(s string, open int) (int, bool) {
	openCh := s[open]
	closeCh := byte('}')
	if openCh == '[' {
		closeCh = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// fences returns the bodies of structured-data code fences in order.
func fences(text string) []string {
	var out []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return out
		}
		rest = rest[start+3:]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return out
		}
		tag := strings.ToLower(strings.TrimSpace(rest[:nl]))
		end := strings.Index(rest[nl+1:], "```")
		if end < 0 {
			return out
		}
		body := strings.TrimSpace(rest[nl+1 : nl+1+end])
		rest = rest[nl+1+end+3:]

		switch {
		case tag == "json" || tag == "json5" || tag == "jsonc":
			out = append(out, body)
		case tag == "" && (strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[")):
			out = append(out, body)
		}
	}
}

/* ─── Decoding ───────────────────────────────────────────────────────── */

func parse(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return accept(v)
	}
	if err := json.Unmarshal([]byte(repair(s)), &v); err == nil {
		return accept(v)
	}
	return nil, false
}

func accept(v any) (any, bool) {
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

// repair fixes the two mistakes models make most: typographic quotes and
// trailing commas before a closing bracket.
func repair(s string) string {
	s = strings.NewReplacer("“", `"`, "”", `"`).Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
		}
		if ch == ',' {
			j := skipSpaces(s, i+1)
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

/* ─── Prose ──────────────────────────────────────────────────────────── */

// Strip removes every labeled block for the given labels and every
// structured-data fence, leaving the narrative text.
func Strip(text string, labels ...string) string {
	for _, label := range labels {
		text = stripLabeled(text, label)
	}
	text = stripFences(text)
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

func stripLabeled(text, label string) string {
	if label == "" {
		return text
	}
	marker := asciiUpper(label)
	from := 0
	for from < len(text) {
		idx := strings.Index(asciiUpper(text[from:]), marker)
		if idx < 0 {
			return text
		}
		start := from + idx
		from = start + len(marker)

		pos := skipSpaces(text, from)
		for pos < len(text) && (text[pos] == '*' || text[pos] == '_') {
			pos++
		}
		if pos >= len(text) || text[pos] != ':' {
			continue
		}
		pos = skipFence(text, skipSpaces(text, pos+1))
		open := firstOpen(text, pos)
		if open < 0 || strings.TrimSpace(text[pos:open]) != "" {
			continue
		}
		end, ok := matchBalanced(text, open)
		if !ok {
			continue
		}
		end++
		if rest := skipSpaces(text, end); strings.HasPrefix(text[rest:], "```") {
			end = rest + 3
		}
		for start > 0 && (text[start-1] == '*' || text[start-1] == '_' || text[start-1] == '#') {
			start--
		}
		text = text[:start] + text[end:]
		from = start
	}
	return text
}

// stripFences drops fences that fences() would treat as structured data.
func stripFences(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		after := rest[start+3:]
		nl := strings.IndexByte(after, '\n')
		if nl < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(after[nl+1:], "```")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		tag := strings.ToLower(strings.TrimSpace(after[:nl]))
		body := strings.TrimSpace(after[nl+1 : nl+1+end])
		block := rest[:start+3+nl+1+end+3]
		structured := tag == "json" || tag == "json5" || tag == "jsonc" ||
			(tag == "" && (strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[")))
		if structured {
			b.WriteString(rest[:start])
		} else {
			b.WriteString(block)
		}
		rest = rest[len(block):]
	}
}
