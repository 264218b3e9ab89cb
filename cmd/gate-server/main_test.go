package main

import (
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/config"
)

func TestParseFlags_OverridesConfig(t *testing.T) {
	cfg := config.Config{HTTPAddr: ":8080", DBDriver: "sqlite", DBPath: "./data/gate.db"}

	opts, err := parseFlags(&cfg, []string{"--addr", ":9000", "--db-path", "/tmp/g.db", "--seed-dev", "--issue-token", "3", "--token-ttl", "1h"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.DBPath != "/tmp/g.db" || cfg.DBDriver != "sqlite" {
		t.Errorf("unexpected cfg %+v", cfg)
	}
	if !opts.seedDev || opts.issueToken != 3 || opts.tokenTTL != time.Hour {
		t.Errorf("unexpected opts %+v", opts)
	}
}

func TestParseFlags_DefaultsKeepEnvironment(t *testing.T) {
	cfg := config.Config{HTTPAddr: ":7070", GRPCAddr: ":7071"}

	opts, err := parseFlags(&cfg, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.HTTPAddr != ":7070" || cfg.GRPCAddr != ":7071" {
		t.Errorf("flags should not clobber env values: %+v", cfg)
	}
	if opts.seedDev || opts.issueToken != 0 || opts.tokenTTL != 24*time.Hour {
		t.Errorf("unexpected opts %+v", opts)
	}
}
