package cssfeatures

import (
	"slices"
	"strings"
)

// verbatim is the generic value bucket for values used as-is.
const verbatim = "/"

// Builder accumulates observed vendor-prefix expansions and emits the
// [SupportTable] a stylesheet compiler would ship alongside its prefixed
// fallback stylesheet.
//
// Output is deterministic: keys are sorted, values keep insertion order and
// are deduplicated.
type Builder struct {
	// properties maps a property to its generic values and their expansions.
	properties map[string]map[string][]string
	// alternatives maps a property to its prefixed names, e.g. hyphens -> -ms-hyphens.
	alternatives map[string][]string
	// globalProps are always kept prefixed and excluded from the table.
	globalProps map[string]struct{}
	// globalValues are generic values always kept prefixed, per property.
	globalValues map[string][]string

	// valueFunctions keeps the shortest value seen per function, e.g. calc.
	valueFunctions     map[string]string
	valueFunctionProps map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		properties:         map[string]map[string][]string{},
		alternatives:       map[string][]string{},
		globalProps:        map[string]struct{}{},
		globalValues:       map[string][]string{},
		valueFunctions:     map[string]string{},
		valueFunctionProps: map[string]string{},
	}
}

// AddGlobalProp marks a property (e.g. hyphens) whose prefixed forms are
// always kept; it is excluded from the table.
func (b *Builder) AddGlobalProp(name string) {
	b.globalProps[name] = struct{}{}
}

// AddGlobalPropValue marks a generic value of a property (e.g. display: flex)
// whose prefixed forms are always kept; it is excluded from the table.
func (b *Builder) AddGlobalPropValue(name, genericValue string) {
	b.globalValues[name] = appendUnique(b.globalValues[name], genericValue)
}

// AddAlternativePropertyName records alt as a prefixed form of name.
// It is a no-op when the two are equal.
func (b *Builder) AddAlternativePropertyName(name, alt string) {
	if name == alt {
		return
	}
	b.alternatives[name] = appendUnique(b.alternatives[name], alt)
}

// AddValueFunction records value as the expansion of a value function
// (e.g. calc) seen on property. The shortest value wins.
func (b *Builder) AddValueFunction(function, property, value string) {
	current, ok := b.valueFunctions[function]
	if !ok || len(value) < len(current) {
		b.valueFunctions[function] = value
		b.valueFunctionProps[function] = property
	}
}

// AddProperty records value as observed for name. When genericValue is
// not empty, value is one expansion of it (e.g. -webkit-flex for flex).
func (b *Builder) AddProperty(name, value, genericValue string) {
	if genericValue == "" {
		genericValue = verbatim
	}
	vals, ok := b.properties[name]
	if !ok {
		vals = map[string][]string{}
		b.properties[name] = vals
	}
	vals[genericValue] = appendUnique(vals[genericValue], value)
}

// Table emits the accumulated support table.
func (b *Builder) Table() (*SupportTable, error) {
	out := map[string][]string{}

	for _, name := range sortedKeys(b.properties) {
		if _, ok := b.globalProps[name]; ok {
			continue
		}
		key := name
		if alts := b.alternatives[name]; len(alts) > 0 {
			key = name + Separator + strings.Join(alts, Separator)
		}

		vals := b.properties[name]
		var joined []string
		for _, generic := range sortedKeys(vals) {
			if slices.Contains(b.globalValues[name], generic) {
				continue
			}
			values := vals[generic]
			if generic == verbatim {
				joined = append(joined, values[0])
				continue
			}
			alts := []string{generic}
			for _, v := range values {
				if v != generic {
					alts = append(alts, v)
				}
			}
			joined = append(joined, strings.Join(alts, Separator))
		}
		if len(joined) > 0 {
			out[key] = joined
		}
	}

	for _, fn := range sortedKeys(b.valueFunctions) {
		out[b.valueFunctionProps[fn]] = []string{b.valueFunctions[fn]}
	}

	raw := make([]RawEntry, 0, len(out))
	for _, key := range sortedKeys(out) {
		raw = append(raw, RawEntry{Key: key, Values: out[key]})
	}
	return ParseTable(raw)
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
