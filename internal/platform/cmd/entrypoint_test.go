package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type entrypointTestConfig struct {
	Port   int    `env:"ENTRYPOINT_TEST_PORT" envDefault:"8080"`
	DBPath string `env:"ENTRYPOINT_TEST_DB_PATH" envDefault:"data/test.db"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("ENTRYPOINT_TEST_PORT", "9000")
	t.Setenv("ENTRYPOINT_TEST_DB_PATH", "env/test.db")

	var cfg entrypointTestConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "db path")

	if err := ParseArgs(fs, []string{"-port", "9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected flag value for port, got %d", cfg.Port)
	}
	if cfg.DBPath != "env/test.db" {
		t.Fatalf("expected env default db path, got %q", cfg.DBPath)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected error for nil flag parser")
	}
}

func TestRunWithTelemetryRequiresServiceName(t *testing.T) {
	err := RunWithTelemetry(context.Background(), " ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	t.Setenv("TRYST_OTEL_ENDPOINT", "")

	want := errors.New("run failed")
	err := RunWithTelemetry(context.Background(), ServiceEngagements, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}
