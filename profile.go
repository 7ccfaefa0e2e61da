package cssfeatures

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoProfile is returned when none of the given profile sources can be read.
var ErrNoProfile = errors.New("no capability profile found")

// AnyValue in a profile line marks every value of a property as supported.
const AnyValue = "*"

// Profile is a static capability profile: a recorded set of property/value
// pairs a host supports. It implements [CapabilityProbe].
type Profile struct {
	// pairs stores supported values per property; AnyValue matches everything.
	pairs map[string]map[string]struct{}
}

// NewProfile creates a Profile from the given supported pairs.
// The input is copied.
func NewProfile(supported ...Pair) *Profile {
	p := &Profile{pairs: map[string]map[string]struct{}{}}
	for _, s := range supported {
		p.add(s.Property, s.Value)
	}
	return p
}

func (p *Profile) add(property, value string) {
	vals, ok := p.pairs[property]
	if !ok {
		vals = map[string]struct{}{}
		p.pairs[property] = vals
	}
	vals[value] = struct{}{}
}

// Supports reports whether the profile lists property with value,
// or property with [AnyValue].
func (p *Profile) Supports(property, value string) (bool, error) {
	if p == nil {
		return false, nil
	}
	vals, ok := p.pairs[property]
	if !ok {
		return false, nil
	}
	if _, ok := vals[AnyValue]; ok {
		return true, nil
	}
	_, ok = vals[value]
	return ok, nil
}

// Len returns the number of supported pairs in the profile.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, vals := range p.pairs {
		n += len(vals)
	}
	return n
}

// profileSource describes a profile file location.
type profileSource struct {
	path       string
	compressed bool
}

// LoadProfile reads the first readable profile among paths.
// Paths ending in ".gz" are gunzipped.
func LoadProfile(paths ...string) (*Profile, error) {
	if len(paths) == 0 {
		return nil, ErrNoProfile
	}

	var lastErr error
	for _, path := range paths {
		p, err := parseProfileFrom(profileSource{path: path, compressed: strings.HasSuffix(path, ".gz")})
		if err == nil {
			return p, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrNoProfile, lastErr)
}

// parseProfileFrom reads and parses a profile from the given source.
func parseProfileFrom(src profileSource) (*Profile, error) {
	f, err := os.Open(src.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if src.compressed {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		reader = gr
	}

	return ParseProfile(reader)
}

// ParseProfile parses a capability profile from r.
//
// Each non-empty line is "property: value". Lines starting with '#' are
// comments. The value may be [AnyValue]. The diagnostic output of
// [Result.String] uses the same line format.
func ParseProfile(r io.Reader) (*Profile, error) {
	p := NewProfile()
	scanner := bufio.NewScanner(r)

	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		property, value, ok := strings.Cut(line, ":")
		property = strings.TrimSpace(property)
		value = strings.TrimSpace(value)
		if !ok || property == "" || value == "" {
			return nil, fmt.Errorf("profile line %d: expected \"property: value\", got %q", lineno, line)
		}
		p.add(property, value)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return p, nil
}
