package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettingsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}
	return path
}

const minimalValidSettings = `
ckb_rpc = "http://127.0.0.1:8114"
decoders_cache_directory = "/tmp/decoders"
dobs_cache_directory = "/tmp/dobs"

[[available_spores]]
code_hash = "0xaa"
hash_type = "type"

[[available_clusters]]
code_hash = "0xbb"
hash_type = "type"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeSettingsFile(t, minimalValidSettings)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.IndexerRPC != s.CKBRPC {
		t.Errorf("IndexerRPC = %q, want it to default to CKBRPC %q", s.IndexerRPC, s.CKBRPC)
	}
	if s.ListenAddress != "127.0.0.1:8090" {
		t.Errorf("ListenAddress = %q, want 127.0.0.1:8090", s.ListenAddress)
	}
	if s.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", s.LogLevel)
	}
	if s.Dob1MaxCombination != 10 {
		t.Errorf("Dob1MaxCombination = %d, want 10", s.Dob1MaxCombination)
	}
	if s.Dob1MaxCacheSize != 50 {
		t.Errorf("Dob1MaxCacheSize = %d, want 50", s.Dob1MaxCacheSize)
	}
	if s.RequestTimeoutSec != 30 {
		t.Errorf("RequestTimeoutSec = %d, want 30", s.RequestTimeoutSec)
	}
}

func TestLoadPreservesExplicitIndexerRPC(t *testing.T) {
	path := writeSettingsFile(t, minimalValidSettings+"\nindexer_rpc = \"http://127.0.0.1:8116\"\n")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.IndexerRPC != "http://127.0.0.1:8116" {
		t.Errorf("IndexerRPC = %q, want explicit value preserved", s.IndexerRPC)
	}
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml")); err == nil {
		t.Fatal("expected an error for a missing settings file")
	}
}

func TestLoadMalformedFileIsFatal(t *testing.T) {
	path := writeSettingsFile(t, "this is not valid = = toml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a malformed settings file")
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	if _, err := Load(writeSettingsFile(t, "")); err == nil {
		t.Fatal("expected an error for a settings file missing all required fields")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	base := func() Settings {
		return Settings{
			CKBRPC:                 "http://node",
			DecodersCacheDirectory: "/tmp/decoders",
			DobsCacheDirectory:     "/tmp/dobs",
			AvailableSpores:        []AvailableScript{{CodeHash: "0xaa", HashType: "type"}},
			AvailableClusters:      []AvailableScript{{CodeHash: "0xbb", HashType: "type"}},
		}
	}

	if err := func() *Settings { s := base(); return &s }().Validate(); err != nil {
		t.Fatalf("expected a fully-populated Settings to validate, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"missing ckb_rpc", func(s *Settings) { s.CKBRPC = "" }},
		{"missing decoders_cache_directory", func(s *Settings) { s.DecodersCacheDirectory = "" }},
		{"missing dobs_cache_directory", func(s *Settings) { s.DobsCacheDirectory = "" }},
		{"empty available_spores", func(s *Settings) { s.AvailableSpores = nil }},
		{"empty available_clusters", func(s *Settings) { s.AvailableClusters = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base()
			tc.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Errorf("expected Validate to reject settings with %s", tc.name)
			}
		})
	}
}
