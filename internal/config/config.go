package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
)

// Storage backends.
const (
	StorageMemory  = "memory"
	StorageBadger  = "badger"
	StorageS3      = "s3"
	StorageGateway = "gateway"
)

// Config holds the settings of the bucketctl client.
type Config struct {
	LedgerEndpointAddr string
	KeystorePath       string

	Storage        string
	BadgerPath     string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Prefix       string
	GatewayPinURL  string
	GatewayURL     string
	GatewayToken   string

	ResolverEndpoint string
	ResolverToken    string
	KeyDirPath       string

	TxTimeout           time.Duration
	HistoryFanOut       int
	OnlineCheckInterval time.Duration
	KeyDiscoveryRetry   time.Duration
	LogLevel            string
}

// LoadDefaults sets development defaults rooted at ~/.bucketkeeper.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".bucketkeeper")

	c.LedgerEndpointAddr = "127.0.0.1:50051"
	c.KeystorePath = filepath.Join(root, "identity.json")
	c.Storage = StorageBadger
	c.BadgerPath = filepath.Join(root, "blobs")
	c.S3Region = "us-east-1"
	c.S3Bucket = "bucketkeeper"
	c.ResolverEndpoint = "https://dev.uniresolver.io/1.0/identifiers"
	c.KeyDirPath = filepath.Join(root, "bucket-keys")
	c.TxTimeout = 60 * time.Second
	c.HistoryFanOut = 8
	c.OnlineCheckInterval = 10 * time.Second
	c.LogLevel = "warn"
}

// Validate checks the settings that have no usable zero value.
func (c *Config) Validate() error {
	if !slices.Contains([]string{StorageMemory, StorageBadger, StorageS3, StorageGateway}, c.Storage) {
		return fmt.Errorf("%w: unknown storage %q", common.ErrConfiguration, c.Storage)
	}
	if c.LedgerEndpointAddr == "" {
		return fmt.Errorf("%w: ledger endpoint is required", common.ErrConfiguration)
	}
	if c.TxTimeout <= 0 || c.OnlineCheckInterval <= 0 || c.HistoryFanOut <= 0 {
		return fmt.Errorf("%w: timeouts, intervals and fan-out must be positive", common.ErrConfiguration)
	}
	return nil
}

// Load builds a Config by applying defaults, then the JSON file named in
// args, then the flags found in args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
