// Package config loads the server's Settings record from a TOML file.
// The loader itself is a collaborator external to the decode core (spec
// §6.2) — it owns no decode logic, only the on-disk → struct mapping —
// but the server cannot start without it, so it is implemented here using
// the teacher's already-vendored TOML library rather than the teacher's own
// hand-rolled parser in internal/skills/toml.go.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DecoderDeployment pins a pre-declared on-chain decoder deployment by
// its content hash, used by Descriptor resolution with location=code_hash.
type DecoderDeployment struct {
	CodeHash string `toml:"code_hash"`
	TxHash   string `toml:"tx_hash"`
	OutIndex uint32 `toml:"out_index"`
}

// AvailableScript is one entry of an available_spores/available_clusters
// allow-list: a (code_hash, hash_type) pair that legitimately produces a
// spore or cluster cell.
type AvailableScript struct {
	CodeHash string `toml:"code_hash"`
	HashType string `toml:"hash_type"`
}

// Settings is the fully-resolved configuration record (spec §3 Settings).
type Settings struct {
	ProtocolVersions []string `toml:"protocol_versions"`

	CKBRPC     string `toml:"ckb_rpc"`
	IndexerRPC string `toml:"indexer_rpc"`

	DecodersCacheDirectory string `toml:"decoders_cache_directory"`
	DobsCacheDirectory     string `toml:"dobs_cache_directory"`
	DobsCacheExpirationSec uint64 `toml:"dobs_cache_expiration_sec"`

	ImageFetcherURL map[string]string `toml:"image_fetcher_url"`

	Dob1MaxCombination int `toml:"dob1_max_combination"`
	Dob1MaxCacheSize   int `toml:"dob1_max_cache_size"`

	OnchainDecoderDeployment []DecoderDeployment `toml:"onchain_decoder_deployment"`

	AvailableSpores   []AvailableScript `toml:"available_spores"`
	AvailableClusters []AvailableScript `toml:"available_clusters"`

	// ListenAddress, RenderCacheSweepIntervalSec, LogLevel and
	// RequestTimeoutSec are additive to spec.md: the ambient stack a
	// running server needs that the distilled spec leaves implicit.
	ListenAddress               string `toml:"listen_address"`
	RenderCacheSweepIntervalSec int    `toml:"render_cache_sweep_interval_sec"`
	LogLevel                    string `toml:"log_level"`
	RequestTimeoutSec           int    `toml:"request_timeout_sec"`
}

// defaults fills in fields that spec.md documents as having a default
// rather than being mandatory.
func (s *Settings) defaults() {
	if s.IndexerRPC == "" {
		s.IndexerRPC = s.CKBRPC
	}
	if s.Dob1MaxCombination == 0 {
		s.Dob1MaxCombination = 10
	}
	if s.Dob1MaxCacheSize == 0 {
		s.Dob1MaxCacheSize = 50
	}
	if s.ListenAddress == "" {
		s.ListenAddress = "127.0.0.1:8090"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.RequestTimeoutSec == 0 {
		s.RequestTimeoutSec = 30
	}
}

// Load reads and parses a settings.toml file at path. A missing or
// malformed config file is fatal at startup, per spec §7's propagation
// policy ("Fatal at startup only: config-file absence or parse failure").
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file %q: %w", path, err)
	}

	var s Settings
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("parse settings file %q: %w", path, err)
	}

	s.defaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %q: %w", path, err)
	}
	return &s, nil
}

// Validate checks the minimal set of fields the server cannot run
// without. It does not attempt to validate hex strings or reachability;
// that is the responsibility of the components that consume them.
func (s *Settings) Validate() error {
	if s.CKBRPC == "" {
		return fmt.Errorf("ckb_rpc is required")
	}
	if s.DecodersCacheDirectory == "" {
		return fmt.Errorf("decoders_cache_directory is required")
	}
	if s.DobsCacheDirectory == "" {
		return fmt.Errorf("dobs_cache_directory is required")
	}
	if len(s.AvailableSpores) == 0 {
		return fmt.Errorf("available_spores must not be empty")
	}
	if len(s.AvailableClusters) == 0 {
		return fmt.Errorf("available_clusters must not be empty")
	}
	return nil
}
