package cssfeatures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// RawEntry is the source form of a table entry: a key spec and its value
// specs, alternatives still joined by [Separator].
type RawEntry struct {
	Key    string
	Values []string
}

// ParseTable builds a [SupportTable] from raw entries, preserving their order.
// Alternatives are split on [Separator] and trimmed. All problems are
// reported together as *[ValidationError] values combined with multierr.
func ParseTable(raw []RawEntry) (*SupportTable, error) {
	t := &SupportTable{Entries: make([]Entry, 0, len(raw))}
	for _, re := range raw {
		e := Entry{
			Key:    KeySpec{Alternatives: splitAlternatives(re.Key)},
			Values: make([]ValueSpec, 0, len(re.Values)),
		}
		for _, v := range re.Values {
			e.Values = append(e.Values, ValueSpec{Alternatives: splitAlternatives(v)})
		}
		t.Entries = append(t.Entries, e)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func splitAlternatives(s string) []string {
	parts := strings.Split(s, Separator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Validate checks that every entry is well formed.
// A nil or empty table is valid.
func (t *SupportTable) Validate() error {
	if t == nil {
		return nil
	}

	var errs error
	seen := make(map[string]int, len(t.Entries))
	for i, e := range t.Entries {
		key := e.Key.String()
		invalid := func(format string, args ...any) {
			errs = multierr.Append(errs, &ValidationError{Entry: i, Key: key, Reason: fmt.Sprintf(format, args...)})
		}

		if len(e.Key.Alternatives) == 0 || strings.TrimSpace(key) == "" {
			invalid("empty key spec")
			continue
		}
		for _, p := range e.Key.Alternatives {
			switch {
			case p == "":
				invalid("empty property alternative")
			case !isPropertyName(p):
				invalid("%q is not a CSS property name", p)
			}
		}
		if prev, ok := seen[key]; ok {
			invalid("duplicate key spec (first at entry %d)", prev)
		} else {
			seen[key] = i
		}

		if len(e.Values) == 0 {
			invalid("empty value spec list")
		}
		for j, vs := range e.Values {
			if len(vs.Alternatives) == 0 {
				invalid("value spec %d is empty", j)
				continue
			}
			for _, v := range vs.Alternatives {
				if v == "" {
					invalid("value spec %d (%q) has an empty alternative", j, vs.String())
					break
				}
			}
		}
	}
	return errs
}

// isPropertyName reports whether s lexes as exactly one CSS identifier
// (or custom property name).
func isPropertyName(s string) bool {
	l := css.NewLexer(parse.NewInputString(s))
	tt, _ := l.Next()
	if tt != css.IdentToken && tt != css.CustomPropertyNameToken {
		return false
	}
	tt, _ = l.Next()
	return tt == css.ErrorToken && l.Err() == io.EOF
}

// LoadTable decodes a support table from a YAML or JSON mapping of key
// specs to lists of value specs, e.g.
//
//	{"flex|-ms-flex": ["auto"], "display": ["flex|-webkit-flex"]}
//
// Document order is preserved.
func LoadTable(r io.Reader) (*SupportTable, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &SupportTable{}, nil
		}
		return nil, fmt.Errorf("decode support table: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ValidationError{Entry: -1, Reason: fmt.Sprintf("line %d: expected a mapping of key specs to value spec lists", root.Line)}
	}

	raw := make([]RawEntry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, &ValidationError{Entry: i / 2, Reason: fmt.Sprintf("line %d: key spec must be a string", k.Line)}
		}
		if v.Kind != yaml.SequenceNode {
			return nil, &ValidationError{Entry: i / 2, Key: k.Value, Reason: fmt.Sprintf("line %d: value specs must be a list", v.Line)}
		}
		re := RawEntry{Key: k.Value, Values: make([]string, 0, len(v.Content))}
		for _, item := range v.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, &ValidationError{Entry: i / 2, Key: k.Value, Reason: fmt.Sprintf("line %d: value spec must be a string", item.Line)}
			}
			re.Values = append(re.Values, item.Value)
		}
		raw = append(raw, re)
	}
	return ParseTable(raw)
}

// LoadTableFile reads a support table from path (see [LoadTable]).
func LoadTableFile(path string) (*SupportTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Raw converts the table back to its source form.
func (t *SupportTable) Raw() []RawEntry {
	raw := make([]RawEntry, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		e := t.Entries[i]
		re := RawEntry{Key: e.Key.String(), Values: make([]string, 0, len(e.Values))}
		for _, vs := range e.Values {
			re.Values = append(re.Values, vs.String())
		}
		raw = append(raw, re)
	}
	return raw
}

// MarshalYAML renders the table as an ordered mapping.
func (t *SupportTable) MarshalYAML() (any, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, re := range t.Raw() {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range re.Values {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: re.Key}, seq)
	}
	return m, nil
}

// MarshalJSON renders the table as an ordered JSON object.
func (t *SupportTable) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, re := range t.Raw() {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(re.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(re.Values)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// SupportsCondition renders an @supports condition equivalent to the table.
//
// The condition is a conjunction over entries, each a disjunction over key
// alternatives, each a conjunction over value specs, each a disjunction
// over literals. An empty table renders as the empty string.
func (t *SupportTable) SupportsCondition() string {
	entries := make([]string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		e := t.Entries[i]
		keys := make([]string, 0, len(e.Key.Alternatives))
		for _, p := range e.Key.Alternatives {
			values := make([]string, 0, len(e.Values))
			for _, vs := range e.Values {
				lits := make([]string, 0, len(vs.Alternatives))
				for _, v := range vs.Alternatives {
					lits = append(lits, "("+p+": "+v+")")
				}
				values = append(values, group(lits, " or "))
			}
			keys = append(keys, group(values, " and "))
		}
		entries = append(entries, group(keys, " or "))
	}
	return strings.Join(entries, " and ")
}

// group joins parts with op, parenthesizing only when there is more than one.
func group(parts []string, op string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, op) + ")"
}
