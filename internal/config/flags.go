package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/flagx"
)

// Flags lists the flags parseFlags consumes.
var Flags = []string{"-a", "-k", "-s", "-b", "-r", "-d", "-t", "-f", "-i", "-v"}

// parseFlags overlays cfg with the flags found in args. Durations are given
// in whole seconds.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("bucketctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.LedgerEndpointAddr, "a", cfg.LedgerEndpointAddr, "ledger node address and port")
	fs.StringVar(&cfg.KeystorePath, "k", cfg.KeystorePath, "keystore file")
	fs.StringVar(&cfg.Storage, "s", cfg.Storage, "storage backend")
	fs.StringVar(&cfg.BadgerPath, "b", cfg.BadgerPath, "badger directory")
	fs.StringVar(&cfg.ResolverEndpoint, "r", cfg.ResolverEndpoint, "DID resolver endpoint")
	fs.StringVar(&cfg.KeyDirPath, "d", cfg.KeyDirPath, "bucket key directory")
	txTimeout := fs.Int("t", int(cfg.TxTimeout.Seconds()), "transaction timeout (seconds)")
	fs.IntVar(&cfg.HistoryFanOut, "f", cfg.HistoryFanOut, "history fan-out")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online status check interval (seconds)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, Flags)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}

	cfg.TxTimeout = time.Duration(*txTimeout) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
	return nil
}
