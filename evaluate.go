package cssfeatures

import (
	"go.uber.org/zap"
)

// evaluateConfig holds the configuration for an evaluation.
type evaluateConfig struct {
	logger      *zap.Logger
	deduplicate bool
}

// EvaluateOption configures [Evaluate].
type EvaluateOption func(*evaluateConfig)

// WithLogger sets the logger used for debug output during evaluation.
func WithLogger(l *zap.Logger) EvaluateOption {
	return func(c *evaluateConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDeduplication drops repeated unsupported pairs from the result,
// keeping the first occurrence. By default every failed probe is reported.
func WithDeduplication() EvaluateOption {
	return func(c *evaluateConfig) {
		c.deduplicate = true
	}
}

// Evaluate decides whether every entry of table is supported by probe.
//
// For each entry the key alternatives are tried in order. A key alternative
// satisfies the entry when, for every value spec, at least one of its
// literals is supported. Probing of a value spec stops at the first
// supported literal and probing of an entry stops at the first satisfying
// key alternative. Every probed-but-rejected pair is collected.
//
// An unsupported entry is not an error: it clears Result.FullySupported and
// evaluation continues. Malformed tables yield a *[ValidationError] before any
// probe call. A probe failure aborts evaluation with a *[ProbeError].
func Evaluate(table *SupportTable, probe CapabilityProbe, opts ...EvaluateOption) (*Result, error) {
	cfg := &evaluateConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	if table == nil {
		table = &SupportTable{}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if isNilProbe(probe) {
		return nil, &ValidationError{Entry: -1, Reason: "nil capability probe"}
	}

	acc := newAccumulator(cfg.deduplicate)
	res := &Result{
		FullySupported: true,
		Entries:        make([]EntryResult, 0, table.Len()),
	}

	for _, entry := range table.Entries {
		property, err := evaluateEntry(entry, probe, acc)
		if err != nil {
			return nil, err
		}

		er := EntryResult{Key: entry.Key.String(), Supported: property != "", Property: property}
		res.Entries = append(res.Entries, er)
		if !er.Supported {
			res.FullySupported = false
			cfg.logger.Debug("entry not supported", zap.String("key", er.Key))
			continue
		}
		cfg.logger.Debug("entry supported", zap.String("key", er.Key), zap.String("property", property))
	}

	res.Unsupported = acc.pairs
	cfg.logger.Debug("evaluation done",
		zap.Bool("fully_supported", res.FullySupported),
		zap.Int("entries", len(res.Entries)),
		zap.Int("unsupported", len(res.Unsupported)),
	)
	return res, nil
}

// isNilProbe also catches typed nils that would panic on first use.
func isNilProbe(probe CapabilityProbe) bool {
	switch p := probe.(type) {
	case nil:
		return true
	case ProbeFunc:
		return p == nil
	case *CountingProbe:
		return p == nil || isNilProbe(p.Probe)
	}
	return false
}

// evaluateEntry returns the first key alternative that satisfies all value
// specs of entry, or "" if none does.
func evaluateEntry(entry Entry, probe CapabilityProbe, acc *accumulator) (string, error) {
	for _, property := range entry.Key.Alternatives {
		all := true
		for _, vs := range entry.Values {
			ok, err := evaluateValue(property, vs, probe, acc)
			if err != nil {
				return "", err
			}
			if !ok {
				all = false
			}
		}
		if all {
			return property, nil
		}
	}
	return "", nil
}

// evaluateValue probes the literals of vs against property in order,
// stopping at the first supported one.
func evaluateValue(property string, vs ValueSpec, probe CapabilityProbe, acc *accumulator) (bool, error) {
	for _, value := range vs.Alternatives {
		ok, err := probe.Supports(property, value)
		if err != nil {
			return false, &ProbeError{Property: property, Value: value, Err: err}
		}
		if ok {
			return true, nil
		}
		acc.add(Pair{Property: property, Value: value})
	}
	return false, nil
}

// accumulator collects unsupported pairs for a single evaluation.
type accumulator struct {
	pairs []Pair
	seen  map[Pair]struct{}
}

func newAccumulator(deduplicate bool) *accumulator {
	acc := &accumulator{pairs: []Pair{}}
	if deduplicate {
		acc.seen = map[Pair]struct{}{}
	}
	return acc
}

func (a *accumulator) add(p Pair) {
	if a.seen != nil {
		if _, ok := a.seen[p]; ok {
			return
		}
		a.seen[p] = struct{}{}
	}
	a.pairs = append(a.pairs, p)
}
