package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keydir"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"github.com/dmitrijs2005/bucketkeeper/internal/resolver"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage"
	"github.com/dmitrijs2005/bucketkeeper/internal/txwatch"
)

const (
	DefaultHistoryFanOut       = 8
	DefaultOnlineCheckInterval = 10 * time.Second
	pingTimeout                = 3 * time.Second
	stateBuffer                = 16
)

// Config holds the collaborators of a Client.
type Config struct {
	Dial       ledger.DialFunc
	Storage    storage.Provider
	Resolver   resolver.Resolver
	BucketKeys keydir.Directory
	Signer     ledger.Signer

	// DID identifies the caller in the from field of sent messages.
	DID    string
	Logger logging.Logger

	// TxTimeout bounds the wait for a call confirmation.
	TxTimeout time.Duration
	// HistoryFanOut bounds concurrent message processing in
	// RetrieveBucketMessages.
	HistoryFanOut       int
	OnlineCheckInterval time.Duration
	// KeyDiscoveryRetry is the total time RetrieveBucketKeys keeps retrying
	// while the current key is not distributed yet. Zero disables retries.
	KeyDiscoveryRetry time.Duration
}

func (c *Config) validate() error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s is required", common.ErrConfiguration, name)
	}
	switch {
	case c.Dial == nil:
		return missing("ledger dialer")
	case c.Storage == nil:
		return missing("storage provider")
	case c.Resolver == nil:
		return missing("identity resolver")
	case c.BucketKeys == nil:
		return missing("bucket key directory")
	case c.Signer == nil:
		return missing("signer")
	}
	return nil
}

// ConnState is the observed state of the ledger connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOnline
	StateOffline
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is the bucket messaging client. Methods are safe for concurrent
// use once Connect has returned.
type Client struct {
	cfg Config
	log logging.Logger

	mu     sync.RWMutex
	conn   ledger.Ledger
	state  ConnState
	closed bool
	states chan ConnState

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New validates cfg and returns an unconnected client.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = txwatch.DefaultTimeout
	}
	if cfg.HistoryFanOut <= 0 {
		cfg.HistoryFanOut = DefaultHistoryFanOut
	}
	if cfg.OnlineCheckInterval <= 0 {
		cfg.OnlineCheckInterval = DefaultOnlineCheckInterval
	}

	return &Client{
		cfg:    cfg,
		log:    cfg.Logger.With("account", cfg.Signer.Address()),
		state:  StateOffline,
		states: make(chan ConnState, stateBuffer),
	}, nil
}

// Address is the caller's ledger account.
func (c *Client) Address() string {
	return c.cfg.Signer.Address()
}

// States delivers connection state changes. Slow consumers miss
// intermediate states; the channel is closed by Close.
func (c *Client) States() <-chan ConnState {
	return c.states
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// setState must be called with c.mu held.
func (c *Client) setState(s ConnState) {
	if c.state == s || c.closed {
		return
	}
	c.state = s
	select {
	case c.states <- s:
	default:
	}
}

// Connect dials the ledger and starts the online status watcher.
// Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: client closed", common.ErrNotConnected)
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateConnecting)
	c.mu.Unlock()

	conn, err := c.cfg.Dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.setState(StateOffline)
		return fmt.Errorf("%w: %v", common.ErrNotConnected, err)
	}
	if c.closed {
		_ = conn.Close()
		return fmt.Errorf("%w: client closed", common.ErrNotConnected)
	}
	c.conn = conn
	c.setState(StateOnline)

	watchCtx, stop := context.WithCancel(context.Background())
	c.stop = stop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.watchOnlineStatus(watchCtx, conn)
	}()

	c.log.Info(ctx, "connected to ledger")
	return nil
}

func (c *Client) watchOnlineStatus(ctx context.Context, conn ledger.Ledger) {
	ticker := time.NewTicker(c.cfg.OnlineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()

			c.mu.Lock()
			if err != nil {
				if c.state == StateOnline {
					c.log.Warn(ctx, "ledger unreachable", "error", err.Error())
				}
				c.setState(StateOffline)
			} else {
				if c.state != StateOnline {
					c.log.Info(ctx, "ledger reachable again")
				}
				c.setState(StateOnline)
			}
			c.mu.Unlock()

		case <-ctx.Done():
			return
		}
	}
}

// Close stops the watcher and closes the ledger connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	conn, stop := c.conn, c.stop
	c.conn = nil
	c.setState(StateClosed)
	c.closed = true
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.wg.Wait()
	close(c.states)

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) ledger() (ledger.Ledger, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, common.ErrNotConnected
	}
	return c.conn, nil
}

// submit sends call and waits for the event accepted by find and validate.
func submit[T any](ctx context.Context, c *Client, call ledger.Call,
	find txwatch.Finder, validate txwatch.Validator[T]) (txwatch.Result[T], error) {

	l, err := c.ledger()
	if err != nil {
		return txwatch.Result[T]{}, err
	}

	res, err := txwatch.SubmitAndWatch(ctx, l, c.cfg.Signer, call, find, validate,
		txwatch.Config{Timeout: c.cfg.TxTimeout, Logger: c.log})
	if err != nil {
		return res, fmt.Errorf("%s: %w", call.Method, err)
	}
	c.log.Info(ctx, "call committed", "method", string(call.Method), "tx_hash", res.TxHash, "block", res.BlockNumber)
	return res, nil
}

// confirm submits call and waits for an event named name that satisfies
// match. It returns the transaction hash.
func (c *Client) confirm(ctx context.Context, call ledger.Call, name ledger.EventName, match func(ledger.Event) bool) (string, error) {
	res, err := submit(ctx, c, call, txwatch.EventIs(name), func(e ledger.Event) (struct{}, bool) {
		return struct{}{}, match(e)
	})
	return res.TxHash, err
}
