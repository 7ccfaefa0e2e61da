package cssfeatures

import (
	"fmt"
	"strings"
)

// String returns the diagnostic listing of unsupported pairs, one
// "property: value" per line. The format is for humans and may change.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	lines := make([]string, 0, len(r.Unsupported))
	for _, p := range r.Unsupported {
		lines = append(lines, p.String())
	}
	return strings.Join(lines, "\n")
}

// Summary returns a one-line verdict.
func (r *Result) Summary() string {
	if r == nil {
		return "not evaluated"
	}
	supported := 0
	for _, e := range r.Entries {
		if e.Supported {
			supported++
		}
	}
	if r.FullySupported {
		return fmt.Sprintf("all %d entries supported", len(r.Entries))
	}
	return fmt.Sprintf("%d of %d entries supported, %d unsupported pairs probed",
		supported, len(r.Entries), len(r.Unsupported))
}

// Report returns a human-readable summary of every entry verdict
// followed by the unsupported pairs.
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Verdict: %s\n", r.Summary())
	if r == nil {
		return b.String()
	}
	b.WriteString("\n")

	b.WriteString("Entries:\n")
	for _, e := range r.Entries {
		writeEntry(&b, e)
	}

	if len(r.Unsupported) > 0 {
		b.WriteString("\n")
		b.WriteString("Unsupported:\n")
		for _, p := range r.Unsupported {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}

	return b.String()
}

func writeEntry(b *strings.Builder, e EntryResult) {
	status := "no"
	if e.Supported {
		status = "yes"
	}
	if e.Supported && e.Property != "" {
		fmt.Fprintf(b, "  %s: %s (via %s)\n", e.Key, status, e.Property)
	} else {
		fmt.Fprintf(b, "  %s: %s\n", e.Key, status)
	}
}
