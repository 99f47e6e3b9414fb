// Package config loads wallet configuration.
//
// Values are layered by viper: built-in defaults, then an optional YAML
// file, then CHANWALLET_* environment variables, then bound command-line
// flags. The merged result is checked against an embedded CUE schema.
//
// Keys use dotted paths matching the YAML layout:
//
//	database:
//	  driver: sqlite3
//	  dsn: wallet.db
//	signer:
//	  private_key: 0x...
//	chain:
//	  id: 1
//	  rpc_url: http://localhost:8545
//	pool:
//	  size: 4
//	engine:
//	  max_steps: 64
//
// The environment variable for a key replaces dots with underscores:
// CHANWALLET_DATABASE_DSN sets database.dsn.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/engine"
	"github.com/roach88/chanwallet/internal/nitro"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CHANWALLET"

// Config is the full wallet configuration.
type Config struct {
	ParticipantID          string         `mapstructure:"participant_id" yaml:"participant_id" json:"participant_id,omitempty"`
	Destination            string         `mapstructure:"destination" yaml:"destination" json:"destination,omitempty"`
	Database               DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`
	Signer                 SignerConfig   `mapstructure:"signer" yaml:"signer" json:"signer"`
	Chain                  ChainConfig    `mapstructure:"chain" yaml:"chain" json:"chain"`
	Pool                   PoolConfig     `mapstructure:"pool" yaml:"pool" json:"pool"`
	Engine                 EngineConfig   `mapstructure:"engine" yaml:"engine" json:"engine"`
	DefaultFundingStrategy string         `mapstructure:"default_funding_strategy" yaml:"default_funding_strategy" json:"default_funding_strategy"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
}

// SignerConfig holds the wallet key.
type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key" yaml:"private_key" json:"private_key,omitempty"`
}

// ChainConfig selects the chain service. An empty RPCURL uses the
// in-memory chain.
type ChainConfig struct {
	ID     int64  `mapstructure:"id" yaml:"id" json:"id"`
	RPCURL string `mapstructure:"rpc_url" yaml:"rpc_url" json:"rpc_url,omitempty"`
}

// PoolConfig sizes the worker pool. Zero runs jobs inline.
type PoolConfig struct {
	Size int `mapstructure:"size" yaml:"size" json:"size"`
}

// EngineConfig bounds the execution loop.
type EngineConfig struct {
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps" json:"max_steps"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:               DatabaseConfig{Driver: "sqlite3", DSN: "chanwallet.db"},
		Chain:                  ChainConfig{ID: 1},
		Pool:                   PoolConfig{Size: 0},
		Engine:                 EngineConfig{MaxSteps: engine.DefaultMaxSteps},
		DefaultFundingStrategy: string(channel.Direct),
	}
}

// setDefaults registers every key so environment variables are seen by
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("participant_id", d.ParticipantID)
	v.SetDefault("destination", d.Destination)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("signer.private_key", d.Signer.PrivateKey)
	v.SetDefault("chain.id", d.Chain.ID)
	v.SetDefault("chain.rpc_url", d.Chain.RPCURL)
	v.SetDefault("pool.size", d.Pool.Size)
	v.SetDefault("engine.max_steps", d.Engine.MaxSteps)
	v.SetDefault("default_funding_strategy", d.DefaultFundingStrategy)
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"db":             "database.dsn",
	"driver":         "database.driver",
	"private-key":    "signer.private_key",
	"participant-id": "participant_id",
	"chain-id":       "chain.id",
	"rpc-url":        "chain.rpc_url",
	"pool-size":      "pool.size",
	"max-steps":      "engine.max_steps",
}

// BindFlags binds the flags of fs that appear in FlagKeys. Flags that are
// not defined on fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load builds the configuration from v. When path is set the file is first
// decoded strictly so unknown keys are reported instead of ignored.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := DecodeFile(path); err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DecodeFile decodes a YAML config file on its own, rejecting unknown
// fields. Missing fields are not filled with defaults.
func DecodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Field: path, Message: err.Error()}
	}
	return &cfg, nil
}

// NewSigner returns the signer for the configured private key.
func (c *Config) NewSigner() (*nitro.Signer, error) {
	if c.Signer.PrivateKey == "" {
		return nil, &ConfigError{Field: "signer.private_key", Message: "a private key is required"}
	}
	s, err := nitro.SignerFromHex(c.Signer.PrivateKey)
	if err != nil {
		return nil, &ConfigError{Field: "signer.private_key", Message: err.Error()}
	}
	return s, nil
}

// ChainID returns the configured chain id.
func (c *Config) ChainID() *big.Int {
	return big.NewInt(c.Chain.ID)
}

// FundingStrategy returns the default strategy for discovered channels.
func (c *Config) FundingStrategy() channel.FundingStrategy {
	return channel.FundingStrategy(c.DefaultFundingStrategy)
}

// Participant returns this wallet's participant entry for signer. The
// participant id defaults to the signing address and the destination to
// the address left-padded to 32 bytes.
func (c *Config) Participant(signer *nitro.Signer) channel.Participant {
	p := channel.Participant{
		ParticipantID:  c.ParticipantID,
		SigningAddress: signer.Address(),
		Destination:    common.BytesToHash(signer.Address().Bytes()),
	}
	if p.ParticipantID == "" {
		p.ParticipantID = strings.ToLower(signer.Address().Hex())
	}
	if c.Destination != "" {
		p.Destination = common.HexToHash(c.Destination)
	}
	return p
}
