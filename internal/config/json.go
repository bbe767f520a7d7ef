package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/flagx"
	"github.com/dmitrijs2005/bucketkeeper/internal/timex"
)

// JsonConfig is the file form of Config. Absent fields keep their earlier
// values.
type JsonConfig struct {
	LedgerEndpointAddr  *string         `json:"ledger_endpoint_addr"`
	KeystorePath        *string         `json:"keystore_path"`
	Storage             *string         `json:"storage"`
	BadgerPath          *string         `json:"badger_path"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	S3AccessKey         *string         `json:"s3_access_key"`
	S3SecretKey         *string         `json:"s3_secret_key"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Prefix            *string         `json:"s3_prefix"`
	GatewayPinURL       *string         `json:"gateway_pin_url"`
	GatewayURL          *string         `json:"gateway_url"`
	GatewayToken        *string         `json:"gateway_token"`
	ResolverEndpoint    *string         `json:"resolver_endpoint"`
	ResolverToken       *string         `json:"resolver_token"`
	KeyDirPath          *string         `json:"key_dir_path"`
	TxTimeout           *timex.Duration `json:"tx_timeout"`
	HistoryFanOut       *int            `json:"history_fan_out"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	KeyDiscoveryRetry   *timex.Duration `json:"key_discovery_retry"`
	LogLevel            *string         `json:"log_level"`
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}

// parseJSON overlays cfg with the file named by -c/-config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrConfiguration, path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", common.ErrConfiguration, path, err)
	}

	set(&cfg.LedgerEndpointAddr, jc.LedgerEndpointAddr)
	set(&cfg.KeystorePath, jc.KeystorePath)
	set(&cfg.Storage, jc.Storage)
	set(&cfg.BadgerPath, jc.BadgerPath)
	set(&cfg.S3Region, jc.S3Region)
	set(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	set(&cfg.S3AccessKey, jc.S3AccessKey)
	set(&cfg.S3SecretKey, jc.S3SecretKey)
	set(&cfg.S3Bucket, jc.S3Bucket)
	set(&cfg.S3Prefix, jc.S3Prefix)
	set(&cfg.GatewayPinURL, jc.GatewayPinURL)
	set(&cfg.GatewayURL, jc.GatewayURL)
	set(&cfg.GatewayToken, jc.GatewayToken)
	set(&cfg.ResolverEndpoint, jc.ResolverEndpoint)
	set(&cfg.ResolverToken, jc.ResolverToken)
	set(&cfg.KeyDirPath, jc.KeyDirPath)
	setDuration(&cfg.TxTimeout, jc.TxTimeout)
	set(&cfg.HistoryFanOut, jc.HistoryFanOut)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.KeyDiscoveryRetry, jc.KeyDiscoveryRetry)
	set(&cfg.LogLevel, jc.LogLevel)
	return nil
}
