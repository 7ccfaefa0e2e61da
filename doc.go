// Package cssfeatures decides whether a CSS host natively supports a table
// of property/value alternatives, so that a prefixed fallback stylesheet is
// loaded only when it is needed.
//
// A [SupportTable] maps key specs to value spec lists. A key spec such as
// "flex|-ms-flex" lists alternative property names; a value spec such as
// "inline-flex|-ms-inline-flexbox" lists alternative literals. Alternatives
// are separated by [Separator].
//
// An entry is supported when at least one property name of its key supports
// every value spec of the list, each through at least one of its literals.
// The table is supported when every entry is.
//
// # Evaluate
//
// Decide support against a capability probe and inspect the diagnostics:
//
//	table, err := cssfeatures.LoadTableFile("prefixes.json")
//	if err != nil {
//	    var ve *cssfeatures.ValidationError
//	    if errors.As(err, &ve) {
//	        log.Fatalf("bad table: %s", ve.Reason)
//	    }
//	    log.Fatal(err)
//	}
//	res, err := cssfeatures.Evaluate(table, probe)
//	if err != nil {
//	    log.Fatal(err) // the probe itself failed
//	}
//	if !res.FullySupported {
//	    fmt.Println(res) // "property: value" per line
//	}
//
// # Probes
//
// A [CapabilityProbe] is the host's native capability query. This package
// ships:
//   - [ProbeFunc] to adapt a function
//   - [NoSupport] for hosts without a capability query
//   - [Profile], a recorded capability profile loaded with [LoadProfile]
//   - [CountingProbe] to observe probe calls
//
// The browser sub-package provides a probe backed by a real browser.
// Callers check that the host has a capability query before evaluating and
// otherwise use [NoSupport].
//
// # Fallback
//
// When [Result.NeedsFallback] is true, [InjectFallback] adds the fallback
// stylesheet link to an HTML document.
//
// # Building tables
//
// [Builder] accumulates the vendor-prefix expansions a stylesheet compiler
// performed and emits the matching table.
package cssfeatures
