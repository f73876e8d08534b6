package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	NetworkName string `toml:"NetworkName"`
	Env         string `toml:"Env"`
	// IndexerDSN selects the audit indexer database. Empty disables it.
	IndexerDSN string `toml:"IndexerDSN"`
	// AllowAutogenesis builds a devnet genesis when GenesisFile is empty and
	// the data dir holds no state.
	AllowAutogenesis bool `toml:"AllowAutogenesis"`

	Logging   Logging   `toml:"logging"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
	Auth      Auth      `toml:"auth"`
}

// Logging controls the process logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// RateLimit bounds query API requests per client.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	// TrustedProxies lists proxy addresses or CIDRs whose forwarding headers
	// identify the real client.
	TrustedProxies []string `toml:"TrustedProxies"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Auth enables the operator call API. The HMAC secret is read from the
// environment variable named by SecretEnv so it never lands in the file.
type Auth struct {
	Enabled   bool   `toml:"Enabled"`
	SecretEnv string `toml:"SecretEnv"`
	Issuer    string `toml:"Issuer"`
	Audience  string `toml:"Audience"`
	// TokenTTL bounds tokens minted by grantctl, e.g. "1h".
	TokenTTL string `toml:"TokenTTL"`
}

// DefaultSecretEnv holds the call API secret unless Auth.SecretEnv says
// otherwise.
const DefaultSecretEnv = "GRANTCHAIN_API_SECRET"

const (
	defaultNetworkName = "grantchain-local"
	defaultRPCAddress  = "127.0.0.1:8080"
	defaultDataDir     = "./grantchain-data"
	defaultRate        = 20
	defaultBurst       = 40
)

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		RPCAddress:       defaultRPCAddress,
		DataDir:          defaultDataDir,
		NetworkName:      defaultNetworkName,
		Env:              "local",
		AllowAutogenesis: true,
		Logging:          Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		RateLimit:        RateLimit{RequestsPerSecond: defaultRate, Burst: defaultBurst},
		Auth:             Auth{SecretEnv: DefaultSecretEnv, Issuer: defaultNetworkName, TokenTTL: "1h"},
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
