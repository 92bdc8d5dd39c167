package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/weatherbot/core/bootstrap"
	coreconfig "github.com/m3rciful/weatherbot/core/config"
	"github.com/m3rciful/weatherbot/core/preferences"
)

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) Run(ctx context.Context) error { return f(ctx) }

func testOptions(run serviceFunc) (*Options, *string) {
	var loaded string
	return &Options{
		ConfigEnvVar: "WEATHERBOT_TEST_CONFIG",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			loaded = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap: func(context.Context, *coreconfig.Config) (*bootstrap.Result, error) {
			return &bootstrap.Result{Store: preferences.NewMemoryStore()}, nil
		},
		NewService: func(*coreconfig.Config, preferences.Store) (Service, error) {
			return run, nil
		},
		ShutdownLogger: func() error { return nil },
	}, &loaded
}

func TestRunResolvesConfigPath(t *testing.T) {
	opts, loaded := testOptions(func(context.Context) error { return nil })
	t.Setenv("WEATHERBOT_TEST_CONFIG", "")
	if err := Run(*opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *loaded != "config.yaml" {
		t.Fatalf("default path = %q", *loaded)
	}

	t.Setenv("WEATHERBOT_TEST_CONFIG", "/etc/weatherbot.yaml")
	if err := Run(*opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *loaded != "/etc/weatherbot.yaml" {
		t.Fatalf("env path = %q", *loaded)
	}
}

func TestRunPropagatesServiceFailure(t *testing.T) {
	fatal := errors.New("restart ceiling exceeded")
	opts, _ := testOptions(func(context.Context) error { return fatal })
	if err := Run(*opts); !errors.Is(err, fatal) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestRunStopsOnBootstrapFailure(t *testing.T) {
	ran := false
	opts, _ := testOptions(func(context.Context) error {
		ran = true
		return nil
	})
	opts.Bootstrap = func(context.Context, *coreconfig.Config) (*bootstrap.Result, error) {
		return nil, errors.New("db unreachable")
	}
	if err := Run(*opts); err == nil {
		t.Fatalf("expected bootstrap failure")
	}
	if ran {
		t.Fatalf("service must not run after bootstrap failure")
	}
}

func TestRunStopsOnConfigFailure(t *testing.T) {
	opts, _ := testOptions(func(context.Context) error { return nil })
	opts.LoadConfig = func(string) (*coreconfig.Config, error) {
		return nil, errors.New("telegram token is required")
	}
	if err := Run(*opts); err == nil {
		t.Fatalf("expected config failure")
	}
}
