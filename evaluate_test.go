package cssfeatures

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func mustParseTable(t *testing.T, raw ...RawEntry) *SupportTable {
	t.Helper()
	table, err := ParseTable(raw)
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	return table
}

// supportsOnly returns a probe that accepts exactly the given pairs.
func supportsOnly(pairs ...Pair) CapabilityProbe {
	return ProbeFunc(func(property, value string) (bool, error) {
		for _, p := range pairs {
			if p.Property == property && p.Value == value {
				return true, nil
			}
		}
		return false, nil
	})
}

func TestEvaluate_FullSupport(t *testing.T) {
	table := mustParseTable(t,
		RawEntry{Key: "flex|-ms-flex", Values: []string{"auto"}},
		RawEntry{Key: "display", Values: []string{"flex|-webkit-flex", "inline-flex|-ms-inline-flexbox"}},
	)

	probe := &CountingProbe{Probe: AllSupported}
	res, err := Evaluate(table, probe)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.FullySupported {
		t.Error("FullySupported = false, want true")
	}
	if len(res.Unsupported) != 0 {
		t.Errorf("Unsupported = %v, want empty", res.Unsupported)
	}

	// First key alternative and first literal satisfy everything.
	want := []Pair{
		{"flex", "auto"},
		{"display", "flex"},
		{"display", "inline-flex"},
	}
	if diff := cmp.Diff(want, probe.Calls()); diff != "" {
		t.Errorf("probe calls mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_NoSupport(t *testing.T) {
	table := mustParseTable(t,
		RawEntry{Key: "flex|-ms-flex", Values: []string{"auto"}},
		RawEntry{Key: "display", Values: []string{"flex|-webkit-flex", "block"}},
	)

	probe := &CountingProbe{Probe: NoSupport}
	res, err := Evaluate(table, probe)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.FullySupported {
		t.Error("FullySupported = true, want false")
	}

	// Every probed pair is reported, in probe order.
	if diff := cmp.Diff(probe.Calls(), res.Unsupported); diff != "" {
		t.Errorf("Unsupported mismatch with probe calls (-calls +unsupported):\n%s", diff)
	}
	want := []Pair{
		{"flex", "auto"},
		{"-ms-flex", "auto"},
		{"display", "flex"},
		{"display", "-webkit-flex"},
		{"display", "block"},
	}
	if diff := cmp.Diff(want, res.Unsupported); diff != "" {
		t.Errorf("Unsupported mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_KeyAlternation(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "flex|-ms-flex", Values: []string{"auto"}})

	res, err := Evaluate(table, supportsOnly(Pair{"-ms-flex", "auto"}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.FullySupported {
		t.Error("FullySupported = false, want true")
	}
	if diff := cmp.Diff([]Pair{{"flex", "auto"}}, res.Unsupported); diff != "" {
		t.Errorf("Unsupported mismatch (-want +got):\n%s", diff)
	}
	wantEntries := []EntryResult{{Key: "flex|-ms-flex", Supported: true, Property: "-ms-flex"}}
	if diff := cmp.Diff(wantEntries, res.Entries); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_ValueConjunction(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "display", Values: []string{"flex|-webkit-flex", "auto"}})

	res, err := Evaluate(table, supportsOnly(Pair{"display", "-webkit-flex"}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.FullySupported {
		t.Error("FullySupported = true, want false: second value spec is never satisfied")
	}
	want := []Pair{{"display", "flex"}, {"display", "auto"}}
	if diff := cmp.Diff(want, res.Unsupported); diff != "" {
		t.Errorf("Unsupported mismatch (-want +got):\n%s", diff)
	}
	if res.Entries[0].Supported || res.Entries[0].Property != "" {
		t.Errorf("Entries[0] = %+v, want unsupported without property", res.Entries[0])
	}
}

func TestEvaluate_ValueShortCircuit(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "display", Values: []string{"a|b|c"}})

	probe := &CountingProbe{Probe: supportsOnly(Pair{"display", "a"})}
	res, err := Evaluate(table, probe)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.FullySupported {
		t.Error("FullySupported = false, want true")
	}
	if len(res.Unsupported) != 0 {
		t.Errorf("Unsupported = %v, want empty", res.Unsupported)
	}
	if got := probe.Count(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}
}

func TestEvaluate_ValueAlternativesUseTheirOwnIndex(t *testing.T) {
	// Each literal of a value spec is probed as itself.
	table := mustParseTable(t, RawEntry{Key: "position", Values: []string{"sticky|-webkit-sticky"}})

	probe := &CountingProbe{Probe: NoSupport}
	if _, err := Evaluate(table, probe); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	want := []Pair{{"position", "sticky"}, {"position", "-webkit-sticky"}}
	if diff := cmp.Diff(want, probe.Calls()); diff != "" {
		t.Errorf("probe calls mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_EmptyTable(t *testing.T) {
	for name, table := range map[string]*SupportTable{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			probe := &CountingProbe{Probe: NoSupport}
			res, err := Evaluate(table, probe)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !res.FullySupported {
				t.Error("FullySupported = false, want true")
			}
			if len(res.Unsupported) != 0 {
				t.Errorf("Unsupported = %v, want empty", res.Unsupported)
			}
			if got := probe.Count(); got != 0 {
				t.Errorf("probe calls = %d, want 0", got)
			}
		})
	}
}

func TestEvaluate_InlineFlexScenario(t *testing.T) {
	table := mustParseTable(t, RawEntry{
		Key:    "inline-flex|-ms-inline-flexbox",
		Values: []string{"inline-flex|-ms-inline-flexbox"},
	})

	probe := ProbeFunc(func(property, value string) (bool, error) {
		return property == "-ms-inline-flexbox" || value == "-ms-inline-flexbox", nil
	})
	res, err := Evaluate(table, probe)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.FullySupported {
		t.Error("FullySupported = false, want true")
	}
	want := []Pair{{"inline-flex", "inline-flex"}}
	if diff := cmp.Diff(want, res.Unsupported); diff != "" {
		t.Errorf("Unsupported mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_ContinuesAfterUnsupportedEntry(t *testing.T) {
	table := mustParseTable(t,
		RawEntry{Key: "hyphens|-ms-hyphens", Values: []string{"auto"}},
		RawEntry{Key: "display", Values: []string{"flex"}},
	)

	probe := &CountingProbe{Probe: supportsOnly(Pair{"display", "flex"})}
	res, err := Evaluate(table, probe)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.FullySupported {
		t.Error("FullySupported = true, want false")
	}
	wantEntries := []EntryResult{
		{Key: "hyphens|-ms-hyphens", Supported: false},
		{Key: "display", Supported: true, Property: "display"},
	}
	if diff := cmp.Diff(wantEntries, res.Entries); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
	if got := probe.Count(); got != 3 {
		t.Errorf("probe calls = %d, want 3", got)
	}
}

func TestEvaluate_Deduplication(t *testing.T) {
	table := mustParseTable(t,
		RawEntry{Key: "display", Values: []string{"flex"}},
		RawEntry{Key: "display|-webkit-display", Values: []string{"flex"}},
	)

	t.Run("duplicates kept by default", func(t *testing.T) {
		res, err := Evaluate(table, NoSupport)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		want := []Pair{{"display", "flex"}, {"display", "flex"}, {"-webkit-display", "flex"}}
		if diff := cmp.Diff(want, res.Unsupported); diff != "" {
			t.Errorf("Unsupported mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("WithDeduplication", func(t *testing.T) {
		res, err := Evaluate(table, NoSupport, WithDeduplication())
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		want := []Pair{{"display", "flex"}, {"-webkit-display", "flex"}}
		if diff := cmp.Diff(want, res.Unsupported); diff != "" {
			t.Errorf("Unsupported mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestEvaluate_ProbeErrorPropagates(t *testing.T) {
	table := mustParseTable(t,
		RawEntry{Key: "display", Values: []string{"flex|-webkit-flex"}},
		RawEntry{Key: "hyphens", Values: []string{"auto"}},
	)

	boom := errors.New("capability query crashed")
	calls := 0
	probe := ProbeFunc(func(property, value string) (bool, error) {
		calls++
		if value == "-webkit-flex" {
			return false, boom
		}
		return false, nil
	})

	res, err := Evaluate(table, probe)
	if err == nil {
		t.Fatal("Evaluate() expected error")
	}
	if res != nil {
		t.Errorf("Evaluate() result = %+v, want nil on probe failure", res)
	}
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is(err, boom) = false for %v", err)
	}

	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.Fatalf("errors.As(*ProbeError) = false for %v", err)
	}
	if pe.Property != "display" || pe.Value != "-webkit-flex" {
		t.Errorf("ProbeError = %s: %s, want display: -webkit-flex", pe.Property, pe.Value)
	}
	if calls != 2 {
		t.Errorf("probe calls = %d, want 2 (no probing after failure)", calls)
	}
}

func TestEvaluate_RejectsMalformedTable(t *testing.T) {
	table := &SupportTable{Entries: []Entry{
		{Key: KeySpec{Alternatives: []string{"display"}}, Values: []ValueSpec{{Alternatives: []string{"flex"}}}},
		{Key: KeySpec{Alternatives: []string{""}}, Values: []ValueSpec{{Alternatives: []string{"auto"}}}},
	}}

	probe := &CountingProbe{Probe: AllSupported}
	_, err := Evaluate(table, probe)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Evaluate() error = %v, want *ValidationError", err)
	}
	if ve.Entry != 1 {
		t.Errorf("ValidationError.Entry = %d, want 1", ve.Entry)
	}
	if got := probe.Count(); got != 0 {
		t.Errorf("probe calls = %d, want 0 before validation passes", got)
	}
}

func TestEvaluate_NilProbe(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "display", Values: []string{"flex"}})

	_, err := Evaluate(table, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Evaluate() error = %v, want *ValidationError", err)
	}
}

func TestEvaluate_RejectsTypedNil(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "display", Values: []string{"flex"}})

	tests := []struct {
		name  string
		probe CapabilityProbe
	}{
		{"nil func", ProbeFunc(nil)},
		{"nil counting probe", (*CountingProbe)(nil)},
		{"counting probe wrapping nil", &CountingProbe{}},
		{"counting probe wrapping nil func", &CountingProbe{Probe: ProbeFunc(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(table, tt.probe)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Evaluate() error = %v, want *ValidationError", err)
			}
			if ve.Entry != -1 {
				t.Errorf("ValidationError.Entry = %d, want -1", ve.Entry)
			}
		})
	}

	// A nil *Profile answers every query with false and stays usable.
	res, err := Evaluate(table, (*Profile)(nil))
	if err != nil {
		t.Fatalf("Evaluate(nil *Profile) error = %v", err)
	}
	if res.FullySupported {
		t.Error("FullySupported = true with a nil profile")
	}
}

func TestEvaluate_UnsupportedIsNeverNil(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "display", Values: []string{"flex"}})

	res, err := Evaluate(table, AllSupported)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Unsupported == nil {
		t.Fatal("Unsupported = nil, want empty slice")
	}

	out, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"unsupported":[]`) {
		t.Errorf("JSON = %s, want an empty Unsupported array", out)
	}

	empty, err := Evaluate(&SupportTable{}, NoSupport)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Unsupported == nil {
		t.Error("Unsupported = nil for an empty table, want empty slice")
	}
}

func TestEvaluate_IndependentCalls(t *testing.T) {
	table := mustParseTable(t, RawEntry{Key: "display", Values: []string{"grid"}})

	first, err := Evaluate(table, NoSupport)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Evaluate(table, NoSupport)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated evaluation differs (-first +second):\n%s", diff)
	}

	first.Unsupported[0].Value = "mutated"
	if second.Unsupported[0].Value != "grid" {
		t.Error("results share diagnostic state across calls")
	}
}

func TestEvaluate_WithLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	table := mustParseTable(t,
		RawEntry{Key: "display", Values: []string{"flex"}},
		RawEntry{Key: "hyphens", Values: []string{"auto"}},
	)

	_, err := Evaluate(table, supportsOnly(Pair{"display", "flex"}), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}

	if got := logs.FilterMessage("entry supported").Len(); got != 1 {
		t.Errorf("entry supported logs = %d, want 1", got)
	}
	if got := logs.FilterMessage("entry not supported").Len(); got != 1 {
		t.Errorf("entry not supported logs = %d, want 1", got)
	}
	done := logs.FilterMessage("evaluation done").All()
	if len(done) != 1 {
		t.Fatalf("evaluation done logs = %d, want 1", len(done))
	}
	if got := fmt.Sprint(done[0].ContextMap()["fully_supported"]); got != "false" {
		t.Errorf("fully_supported field = %s, want false", got)
	}
}
