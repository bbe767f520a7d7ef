package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/flagx"
	"github.com/dmitrijs2005/bucketkeeper/internal/timex"
)

// JsonConfig is the file form of Config. BlockInterval accepts "500ms" or
// integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc"`
	DatabaseDSN      string         `json:"database_dsn"`
	MetricsAddr      string         `json:"metrics_addr"`
	BlockInterval    timex.Duration `json:"block_interval"`
	RootAccount      string         `json:"root_account"`
	LogLevel         string         `json:"log_level"`
}

// parseJson overlays config with the file named by -c/-config. Empty
// fields in the file keep the earlier values.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFile(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}

	overlay(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.MetricsAddr, c.MetricsAddr)
	overlay(&config.RootAccount, c.RootAccount)
	overlay(&config.LogLevel, c.LogLevel)
	if c.BlockInterval.Duration > 0 {
		config.BlockInterval = c.BlockInterval.Duration
	}
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
