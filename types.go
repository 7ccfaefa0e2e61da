package cssfeatures

import (
	"errors"
	"fmt"
	"strings"
)

// Separator delimits alternatives inside a key spec or a value spec,
// e.g. "flex|-ms-flex" or "inline-flex|-ms-inline-flexbox".
const Separator = "|"

// KeySpec is a set of alternative CSS property names.
// Any one of them being supported satisfies the key.
type KeySpec struct {
	Alternatives []string
}

// String joins the alternatives back with [Separator].
func (k KeySpec) String() string {
	return strings.Join(k.Alternatives, Separator)
}

// ValueSpec is a set of alternative literal values for one required assertion.
// Any one of them being supported satisfies the assertion.
type ValueSpec struct {
	Alternatives []string
}

// String joins the alternatives back with [Separator].
func (v ValueSpec) String() string {
	return strings.Join(v.Alternatives, Separator)
}

// Entry pairs a [KeySpec] with the value specs that must all be satisfied
// by a single property name of the key.
type Entry struct {
	Key    KeySpec
	Values []ValueSpec
}

// SupportTable is an ordered list of entries.
// Tables are built once (see [ParseTable], [LoadTable], [Builder]) and are
// not modified by [Evaluate].
type SupportTable struct {
	Entries []Entry
}

// Len returns the number of entries in the table.
func (t *SupportTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}

// Pair is a CSS property/value combination.
type Pair struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

func (p Pair) String() string {
	return p.Property + ": " + p.Value
}

// Result is the outcome of a single [Evaluate] call.
type Result struct {
	// FullySupported is true only if every table entry was satisfied.
	FullySupported bool `json:"fully_supported"`
	// Unsupported lists every probed-but-rejected pair, in probe order.
	Unsupported []Pair `json:"unsupported"`
	// Entries reports the verdict for each table entry, in table order.
	Entries []EntryResult `json:"entries"`
}

// EntryResult is the verdict for one table entry.
type EntryResult struct {
	Key       string `json:"key"`
	Supported bool   `json:"supported"`
	// Property is the key alternative that satisfied the entry, empty if none did.
	Property string `json:"property,omitempty"`
}

// NeedsFallback reports whether the caller should load the fallback stylesheet.
func (r *Result) NeedsFallback() bool {
	return r == nil || !r.FullySupported
}

// ErrNoCapabilityQuery is returned when the host has no native CSS
// capability query. Callers treat support as entirely absent.
var ErrNoCapabilityQuery = errors.New("host has no CSS capability query")

// ValidationError reports a malformed support table.
type ValidationError struct {
	// Entry is the position of the offending entry, -1 if not entry-specific.
	Entry  int
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("invalid support table: %s", e.Reason)
	}
	return fmt.Sprintf("invalid support table: entry %d (%q): %s", e.Entry, e.Key, e.Reason)
}

// ProbeError wraps a failure of the capability probe itself.
// Evaluation stops at the first one.
type ProbeError struct {
	Property string
	Value    string
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %s: %v", e.Property, e.Value, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
