// Command intentguard validates intent files against a configured gate:
// it loads a guard profile and pattern bundles, runs one intent through
// the gate, and prints the ValidationResult as JSON. Exit code 1 means
// the intent was rejected, 2 means a configuration or input error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/instabids/intentguard/pkg/bundle"
	"github.com/instabids/intentguard/pkg/config"
	"github.com/instabids/intentguard/pkg/guard"
	"github.com/instabids/intentguard/pkg/intent"
	"github.com/instabids/intentguard/pkg/observability"
	"github.com/instabids/intentguard/pkg/pattern"
	"github.com/instabids/intentguard/pkg/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("intentguard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	profilePath := fs.String("profile", "", "guard profile YAML (defaults to $GUARD_PROFILE)")
	bundleDir := fs.String("bundles", "", "pattern bundle directory (defaults to $PATTERN_BUNDLE_DIR)")
	domain := fs.String("domain", "", "current domain for the evaluation context")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: intentguard [flags] <intent.json>")
		return 2
	}

	cfg := config.Load()
	if *profilePath != "" {
		cfg.ProfilePath = *profilePath
	}
	if *bundleDir != "" {
		cfg.BundleDir = *bundleDir
	}
	setupLogger(cfg.LogLevel, stderr)

	g, err := buildGuard(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "intentguard: %v\n", err)
		return 2
	}

	in, err := readIntent(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "intentguard: %v\n", err)
		return 2
	}

	ec := &intent.Context{
		CurrentDomain: *domain,
		CallerID:      in.CallerID,
		CallerRoles:   in.CallerRoles,
	}
	if ec.CurrentDomain == "" {
		ec.CurrentDomain = in.SourceDomain
	}

	result, err := g.ValidateIntent(context.Background(), in, ec)
	if err != nil {
		fmt.Fprintf(stderr, "intentguard: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "intentguard: %v\n", err)
		return 2
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func buildGuard(cfg *config.Config) (*guard.Guard, error) {
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}

	opts := []guard.Option{
		guard.WithAuditLog(guard.NewAuditLog(nil)),
	}
	if cfg.DecisionDB != "" {
		ds, err := store.OpenSQLiteDecisionStore(cfg.DecisionDB)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guard.WithDecisionStore(ds))
	}
	if cfg.ThrottleRPS > 0 {
		opts = append(opts, guard.WithThrottle(guard.NewCallerThrottle(cfg.ThrottleRPS, int(cfg.ThrottleRPS)+1)))
	}
	if cfg.Telemetry {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := observability.New(context.Background(), obsCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guard.WithTelemetry(provider))
	}

	g, err := guard.New(guard.Config{
		Owner:    profile.Owner,
		Boundary: profile.Boundary,
		Roles:    profile.Roles,
	}, opts...)
	if err != nil {
		return nil, err
	}

	if err := loadBundles(g, cfg.BundleDir); err != nil {
		return nil, err
	}
	return g, nil
}

func loadBundles(g *guard.Guard, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	loader, err := bundle.NewLoader(dir)
	if err != nil {
		return err
	}
	if err := loader.LoadAll(); err != nil {
		return err
	}

	compiler, err := pattern.NewCELCompiler()
	if err != nil {
		return err
	}
	for _, b := range loader.List() {
		patterns, err := b.Build(compiler)
		if err != nil {
			return err
		}
		for _, p := range patterns {
			if err := g.RegisterPattern(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func readIntent(path string) (*intent.Intent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in intent.Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse intent %s: %w", path, err)
	}
	if in.CorrelationID == "" {
		stamped := intent.New(in.Name)
		in.CorrelationID = stamped.CorrelationID
		in.Timestamp = stamped.Timestamp
	}
	return &in, nil
}

func setupLogger(level string, w io.Writer) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}
