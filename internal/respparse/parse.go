// Package respparse pulls labeled sections out of free-form oracle replies
// and decodes their bracketed payloads.
package respparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// #region errors

// ErrFormat marks a reply that does not match the expected grammar.
var ErrFormat = errors.New("reply format")

// FormatError names the section that failed and why.
type FormatError struct {
	Section string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: section %q: %s", ErrFormat, e.Section, e.Reason)
}

// Is lets errors.Is(err, ErrFormat) match.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// #endregion errors

// #region section

// Section describes one "#Step N:" block whose payload follows Label.
type Section struct {
	Step  int
	Name  string
	Label string
	// End is a regexp fragment that terminates the payload span.
	End    string
	Schema *jsonschema.Schema

	payload  *regexp.Regexp
	analysis *regexp.Regexp
}

func (s *Section) compile() {
	head := fmt.Sprintf(`#Step %d:[\s\S]+?\n`, s.Step)
	s.payload = regexp.MustCompile(head + regexp.QuoteMeta(s.Label) + `:\s*([\s\S]*?)\s*` + s.End)
	s.analysis = regexp.MustCompile(head + `Analysis:\s*([\s\S]*?)\s*\n` + regexp.QuoteMeta(s.Label) + `:`)
}

// StepAnalysis is the rationale text the oracle wrote for one step.
type StepAnalysis struct {
	Step string `json:"step"`
	Text string `json:"text"`
}

// Payload is one decoded section.
type Payload struct {
	Label string
	Raw   string
	Value any
}

// Parsed holds every payload of an accepted reply, in section order.
type Parsed struct {
	Payloads []Payload
	Analysis []StepAnalysis
}

// Raw returns the cleaned JSON text of the i-th payload.
func (p Parsed) Raw(i int) string {
	if i < 0 || i >= len(p.Payloads) {
		return ""
	}
	return p.Payloads[i].Raw
}

// Decode unmarshals the i-th payload into v.
func (p Parsed) Decode(i int, v any) error {
	if i < 0 || i >= len(p.Payloads) {
		return fmt.Errorf("payload %d out of range", i)
	}
	return json.Unmarshal([]byte(p.Payloads[i].Raw), v)
}

// #endregion section

// #region layout

// Layout is an ordered set of sections that one reply must carry.
type Layout struct {
	Name     string
	Sections []Section
}

// NewLayout compiles the section matchers.
func NewLayout(name string, sections ...Section) Layout {
	for i := range sections {
		sections[i].compile()
	}
	return Layout{Name: name, Sections: sections}
}

// Parse accepts reply only if every section is present and decodes.
func (l Layout) Parse(reply string) (Parsed, error) {
	var out Parsed
	for _, s := range l.Sections {
		m := s.payload.FindStringSubmatch(reply)
		if m == nil {
			return Parsed{}, &FormatError{Section: s.Label, Reason: "missing"}
		}
		raw, err := bracketSpan(m[1])
		if err != nil {
			return Parsed{}, &FormatError{Section: s.Label, Reason: err.Error()}
		}
		raw = CleanJSON(raw)
		value, err := decode(raw, s.Schema)
		if err != nil {
			return Parsed{}, &FormatError{Section: s.Label, Reason: err.Error()}
		}
		out.Payloads = append(out.Payloads, Payload{Label: s.Label, Raw: raw, Value: value})
	}
	out.Analysis = l.Analysis(reply)
	return out, nil
}

// Analysis collects per-step rationale. Missing steps are skipped.
func (l Layout) Analysis(reply string) []StepAnalysis {
	var out []StepAnalysis
	for _, s := range l.Sections {
		if m := s.analysis.FindStringSubmatch(reply); m != nil {
			out = append(out, StepAnalysis{Step: s.Name, Text: m[1]})
		}
	}
	return out
}

// #endregion layout

// #region decoding

// bracketSpan returns text from the first '[' to the last ']'.
func bracketSpan(text string) (string, error) {
	start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
	if start == -1 || end == -1 || start >= end {
		return "", errors.New("no bracketed payload")
	}
	return text[start : end+1], nil
}

var trailingComma = regexp.MustCompile(`,(\s*[\]}])`)

// CleanJSON drops // comments outside strings and trailing commas, the two
// liberties oracles most often take with JSON.
func CleanJSON(text string) string {
	var sb strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			sb.WriteByte(c)
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
		if c == '"' {
			inString = true
		}
		if c == '/' && i+1 < len(text) && text[i+1] == '/' {
			for i < len(text) && text[i] != '\n' {
				i++
			}
			if i < len(text) {
				sb.WriteByte('\n')
			}
			continue
		}
		sb.WriteByte(c)
	}
	return trailingComma.ReplaceAllString(sb.String(), "$1")
}

func decode(raw string, schema *jsonschema.Schema) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(v); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return v, nil
}

// DecodeList decodes a bracketed list payload found anywhere in text.
func DecodeList(text string, schema *jsonschema.Schema) (string, any, error) {
	raw, err := bracketSpan(text)
	if err != nil {
		return "", nil, err
	}
	v, err := decode(raw, schema)
	if err != nil {
		return "", nil, err
	}
	return CleanJSON(raw), v, nil
}

// #endregion decoding
