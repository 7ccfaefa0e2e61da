package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/leodido/cssfeatures"
	"github.com/leodido/cssfeatures/browser"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Build metadata injected via -ldflags "-X main.version=...".
// Plain `go build` leaves them empty and the version command omits them.
var (
	version = ""
	commit  = ""
	date    = ""
)

// errNotSupported signals a completed check whose verdict is negative.
var errNotSupported = errors.New("not fully supported")

func main() {
	var logLevel string
	var logger *zap.Logger

	root := &cobra.Command{
		Use:   "cssfeatures",
		Short: "CSS feature detection with prefixed fallbacks",
		Long: `cssfeatures decides whether a CSS host natively supports a table of
property/value alternatives (as produced alongside a prefixed stylesheet).

The host is a recorded capability profile or a real browser. When support is
incomplete the prefixed fallback stylesheet can be linked into an HTML page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			l, err := newLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "normal",
		fmt.Sprintf("Console log level (%s)", strings.Join(logLevels, ", ")))

	getLogger := func() *zap.Logger {
		if logger == nil {
			return zap.NewNop()
		}
		return logger
	}

	root.AddCommand(checkCmd(getLogger))
	root.AddCommand(tableCmd())
	root.AddCommand(injectCmd(getLogger))
	root.AddCommand(versionCmd())

	err := root.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		if !errors.Is(err, errNotSupported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// probeSource selects the capability probe used by check.
type probeSource int

const (
	probeProfile probeSource = iota
	probeBrowser
	probeNone
)

var probeSourceIDs = map[probeSource][]string{
	probeProfile: {"profile"},
	probeBrowser: {"browser"},
	probeNone:    {"none"},
}

func (s probeSource) String() string {
	if ids, ok := probeSourceIDs[s]; ok {
		return ids[0]
	}
	return fmt.Sprintf("probeSource(%d)", s)
}

func parseProbeSource(input string) (probeSource, error) {
	var s probeSource
	v := enumflag.New(&s, "source", probeSourceIDs, enumflag.EnumCaseInsensitive)
	if err := v.Set(strings.TrimSpace(input)); err != nil {
		return 0, fmt.Errorf("unknown probe source: %q (available: profile, browser, none)", input)
	}
	return s, nil
}

// CheckOptions defines flags for the check subcommand.
type CheckOptions struct {
	Table      string      `flag:"table" flagshort:"t" flagdescr:"Support table (JSON or YAML)" flagrequired:"true"`
	Probe      probeSource `flag:"probe" flagshort:"p" flagdescr:"Capability probe: profile, browser, none" flagcustom:"true"`
	Profile    string      `flag:"profile" flagdescr:"Capability profile file (.gz allowed), used with --probe=profile"`
	ControlURL string      `flag:"control-url" flagdescr:"DevTools URL of a running browser, used with --probe=browser"`
	BrowserBin string      `flag:"browser-bin" flagdescr:"Browser binary to launch, used with --probe=browser"`
	Dedupe     bool        `flag:"dedupe" flagdescr:"Report each unsupported pair once"`
	HTML       string      `flag:"html" flagdescr:"HTML document to link the fallback stylesheet into when support is incomplete"`
	Href       string      `flag:"href" flagdescr:"Fallback stylesheet href"`
	Out        string      `flag:"out" flagshort:"o" flagdescr:"Where to write the HTML document (default: in place)"`
	JSON       bool        `flag:"json" flagshort:"j" flagdescr:"Output in JSON format"`
}

func (o *CheckOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *CheckOptions) DefineProbe(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*probeSource)
	return enumflag.New(fieldPtr, "source", probeSourceIDs, enumflag.EnumCaseInsensitive), descr
}

func (o *CheckOptions) DecodeProbe(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}

	return parseProbeSource(s)
}

func checkCmd(logger func() *zap.Logger) *cobra.Command {
	opts := &CheckOptions{Href: cssfeatures.DefaultFallbackHref}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that a host supports every entry of a support table",
		Long: `Check that a host supports every entry of a support table.
Exits with code 0 if the table is fully supported, 1 otherwise.

Without a capability query (--probe=none, or a browser lacking CSS.supports)
nothing is considered supported.`,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			res, err := runCheck(c.Context(), opts, os.Stdout, logger())
			if err != nil {
				return err
			}
			if !res.FullySupported {
				return errNotSupported
			}
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, stdout io.Writer, logger *zap.Logger) (*cssfeatures.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	table, err := cssfeatures.LoadTableFile(opts.Table)
	if err != nil {
		return nil, err
	}
	logger.Debug("support table loaded", zap.String("path", opts.Table), zap.Int("entries", table.Len()))

	probe, closeProbe, err := openProbe(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	defer closeProbe()

	evalOpts := []cssfeatures.EvaluateOption{cssfeatures.WithLogger(logger)}
	if opts.Dedupe {
		evalOpts = append(evalOpts, cssfeatures.WithDeduplication())
	}
	res, err := cssfeatures.Evaluate(table, probe, evalOpts...)
	if err != nil {
		return nil, err
	}

	if len(res.Unsupported) > 0 {
		lines := make([]string, 0, len(res.Unsupported))
		for _, p := range res.Unsupported {
			lines = append(lines, p.String())
		}
		logger.Warn("host does not support CSS properties", zap.Strings("pairs", lines))
	}

	if opts.HTML != "" {
		injected, err := applyFallbackFile(opts.HTML, opts.Out, res, opts.Href)
		if err != nil {
			return nil, err
		}
		logger.Info("fallback stylesheet", zap.Bool("linked", injected), zap.String("href", opts.Href))
	}

	if opts.JSON {
		return res, printJSON(stdout, map[string]any{
			"ok":          res.FullySupported,
			"summary":     res.Summary(),
			"entries":     res.Entries,
			"unsupported": res.Unsupported,
		})
	}

	fmt.Fprint(stdout, res.Report())
	return res, nil
}

// openProbe builds the probe selected by opts. The returned func releases it.
func openProbe(ctx context.Context, opts *CheckOptions, logger *zap.Logger) (cssfeatures.CapabilityProbe, func(), error) {
	noop := func() {}

	switch opts.Probe {
	case probeProfile:
		if opts.Profile == "" {
			return nil, noop, fmt.Errorf("--profile is required with --probe=profile")
		}
		p, err := cssfeatures.LoadProfile(opts.Profile)
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("capability profile loaded", zap.String("path", opts.Profile), zap.Int("pairs", p.Len()))
		return p, noop, nil

	case probeBrowser:
		cfg := browser.DefaultConfig()
		cfg.ControlURL = opts.ControlURL
		if opts.BrowserBin != "" {
			cfg.Launch = []string{opts.BrowserBin}
		}
		bp, err := browser.Open(ctx, cfg, browser.WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}
		closer := func() {
			if err := bp.Close(); err != nil {
				logger.Debug("closing browser", zap.Error(err))
			}
		}
		probe, native, err := gateCapabilityQuery(bp, logger)
		if err != nil {
			closer()
			return nil, noop, err
		}
		if !native {
			closer()
			return probe, noop, nil
		}
		return probe, closer, nil

	case probeNone:
		return cssfeatures.NoSupport, noop, nil
	}

	return nil, noop, fmt.Errorf("unknown probe source %s", opts.Probe)
}

// capabilityHost is a probe that can tell whether its host has a native
// capability query at all.
type capabilityHost interface {
	cssfeatures.CapabilityProbe
	HasCapabilityQuery() (bool, error)
}

// gateCapabilityQuery returns host itself when it exposes CSS.supports and
// cssfeatures.NoSupport when it does not. native reports which one it is.
func gateCapabilityQuery(host capabilityHost, logger *zap.Logger) (probe cssfeatures.CapabilityProbe, native bool, err error) {
	ok, err := host.HasCapabilityQuery()
	if err != nil {
		return nil, false, fmt.Errorf("query CSS.supports availability: %w", err)
	}
	if !ok {
		logger.Warn("browser has no CSS.supports; treating every property as unsupported",
			zap.Error(cssfeatures.ErrNoCapabilityQuery))
		return cssfeatures.NoSupport, false, nil
	}
	return host, true, nil
}

// applyFallbackFile links href into the HTML file at path when res needs it.
// The result is written to out, or back to path when out is empty.
func applyFallbackFile(path, out string, res *cssfeatures.Result, href string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	var buf bytes.Buffer
	injected, err := cssfeatures.ApplyFallback(&buf, bytes.NewReader(src), res, href)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}

	if out == "" {
		out = path
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return false, err
	}
	return injected, nil
}

// TableOptions defines flags for the table subcommand.
type TableOptions struct {
	Table string `flag:"table" flagshort:"t" flagdescr:"Support table (JSON or YAML)" flagrequired:"true"`
	JSON  bool   `flag:"json" flagshort:"j" flagdescr:"Output in JSON format"`
}

func (o *TableOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func tableCmd() *cobra.Command {
	opts := &TableOptions{}

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Validate a support table and display it with its @supports condition",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			return runTable(opts, os.Stdout)
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func runTable(opts *TableOptions, stdout io.Writer) error {
	table, err := cssfeatures.LoadTableFile(opts.Table)
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(stdout, map[string]any{
			"entries":  table,
			"supports": table.SupportsCondition(),
		})
	}

	out, err := yaml.Marshal(table)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\n@supports %s\n", out, table.SupportsCondition())
	return nil
}

// InjectOptions defines flags for the inject subcommand.
type InjectOptions struct {
	HTML string `flag:"html" flagdescr:"HTML document" flagrequired:"true"`
	Href string `flag:"href" flagdescr:"Fallback stylesheet href"`
	Out  string `flag:"out" flagshort:"o" flagdescr:"Where to write the HTML document (default: in place)"`
}

func (o *InjectOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func injectCmd(logger func() *zap.Logger) *cobra.Command {
	opts := &InjectOptions{Href: cssfeatures.DefaultFallbackHref}

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Link the fallback stylesheet into an HTML document unconditionally",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			injected, err := applyFallbackFile(opts.HTML, opts.Out, nil, opts.Href)
			if err != nil {
				return err
			}
			logger().Info("fallback stylesheet", zap.Bool("linked", injected), zap.String("href", opts.Href))
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tool version",
		RunE: func(c *cobra.Command, args []string) error {
			if version != "" {
				fmt.Printf("cssfeatures %s", version)
				if commit != "" {
					fmt.Printf(" (%s)", commit)
				}
				if date != "" {
					fmt.Printf(" built %s", date)
				}
				fmt.Println()
			} else {
				fmt.Println("cssfeatures (dev)")
			}
			fmt.Printf("Separator: %q\n", cssfeatures.Separator)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
