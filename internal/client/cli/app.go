package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/bucketkeeper/internal/client"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/config"
	"github.com/dmitrijs2005/bucketkeeper/internal/keydir"
	"github.com/dmitrijs2005/bucketkeeper/internal/keystore"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/grpcledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"github.com/dmitrijs2005/bucketkeeper/internal/resolver"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage/badgerstore"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage/gateway"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage/memstore"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage/s3store"
	"github.com/go-jose/go-jose/v3"
)

// PassphraseEnv, when set, supplies the keystore passphrase without a prompt.
const PassphraseEnv = "BUCKETKEEPER_PASSPHRASE"

// Seams replaced in tests.
var (
	dialLedger = func(address string) ledger.DialFunc {
		return grpcledger.Dialer(address)
	}
	newResolver = func(cfg *config.Config) (resolver.Resolver, error) {
		return resolver.NewHTTP(resolver.HTTPConfig{Endpoint: cfg.ResolverEndpoint, Token: cfg.ResolverToken})
	}
	openStorage = newStorage
)

// App holds the configuration and the lazily connected client of one
// bucketctl invocation or shell session.
type App struct {
	config *config.Config
	logger logging.Logger
	in     *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	client   *client.Client
	identity *keystore.Identity
	closers  []func() error
}

func NewApp(c *config.Config, in io.Reader, out io.Writer) *App {
	return &App{
		config: c,
		logger: logging.NewTextLogger(os.Stderr, logging.ParseLevel(c.LogLevel)).With("module", "bucketctl"),
		in:     bufio.NewReader(in),
		out:    out,
	}
}

func (a *App) passphrase(prompt string) ([]byte, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return []byte(p), nil
	}
	return GetPassword(a.out, prompt)
}

// loadIdentity unlocks the keystore once per App.
func (a *App) loadIdentity() (*keystore.Identity, error) {
	if a.identity != nil {
		return a.identity, nil
	}
	pw, err := a.passphrase("Keystore passphrase")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pw)

	id, err := keystore.Load(a.config.KeystorePath, pw)
	if err != nil {
		return nil, err
	}
	a.identity = id
	return id, nil
}

// personalKey is the identity's key-agreement secret key.
func (a *App) personalKey() *jose.JSONWebKey {
	return &a.identity.Key
}

// newStorage builds the configured storage provider. Remote providers are
// wrapped with retries.
func newStorage(ctx context.Context, cfg *config.Config) (storage.Provider, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage {
	case config.StorageMemory:
		return memstore.New(), noop, nil
	case config.StorageBadger:
		s, err := badgerstore.Open(badgerstore.Config{Path: cfg.BadgerPath})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorageS3:
		s, err := s3store.New(ctx, s3store.Config{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage.WithRetry(s, storage.DefaultRetryPolicy), noop, nil
	case config.StorageGateway:
		s, err := gateway.New(gateway.Config{
			PinURL:     cfg.GatewayPinURL,
			GatewayURL: cfg.GatewayURL,
			Token:      cfg.GatewayToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage.WithRetry(s, storage.DefaultRetryPolicy), noop, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown storage %q", common.ErrConfiguration, cfg.Storage)
}

// Client returns the connected client, creating it on first use.
func (a *App) Client(ctx context.Context) (*client.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	id, err := a.loadIdentity()
	if err != nil {
		return nil, err
	}
	signer, err := ledger.NewKeyringSigner(id.AccountSeed)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStorage(ctx, a.config)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	res, err := newResolver(a.config)
	if err != nil {
		return nil, err
	}
	dir, err := keydir.NewFile(a.config.KeyDirPath)
	if err != nil {
		return nil, err
	}

	c, err := client.New(client.Config{
		Dial:                dialLedger(a.config.LedgerEndpointAddr),
		Storage:             store,
		Resolver:            res,
		BucketKeys:          dir,
		Signer:              signer,
		DID:                 id.DID,
		Logger:              a.logger,
		TxTimeout:           a.config.TxTimeout,
		HistoryFanOut:       a.config.HistoryFanOut,
		OnlineCheckInterval: a.config.OnlineCheckInterval,
		KeyDiscoveryRetry:   a.config.KeyDiscoveryRetry,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// Close disconnects the client and releases storage.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if a.client != nil {
		firstErr = a.client.Close()
		a.client = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
