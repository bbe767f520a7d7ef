// Package resolver maps identities (DIDs) to their public key-agreement
// keys.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/netx"
	"github.com/go-jose/go-jose/v3"
)

const (
	didLDJSON      = "application/did+ld+json"
	DefaultTimeout = 10 * time.Second
)

// Resolver resolves an identity to its public encryption key. It fails
// with common.ErrNotFound or common.ErrDeactivated.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*jose.JSONWebKey, error)
}

// HTTP resolves DIDs through a DID resolution HTTP binding such as a
// universal resolver: GET {endpoint}/{did}.
type HTTP struct {
	endpoint string
	token    string
	client   *http.Client
}

type HTTPConfig struct {
	Endpoint string
	// Token, when set, is sent as a bearer token.
	Token   string
	Timeout time.Duration
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("%w: resolver endpoint: %v", common.ErrConfiguration, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTP{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (h *HTTP) Resolve(ctx context.Context, did string) (*jose.JSONWebKey, error) {
	header := http.Header{}
	header.Set("Accept", didLDJSON)
	if h.token != "" {
		header.Set("Authorization", "Bearer "+h.token)
	}

	b, err := netx.Get(ctx, h.client, h.endpoint+"/"+url.PathEscape(did), header)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", did, err)
	}

	res, err := ParseResolution(b)
	if err != nil {
		return nil, err
	}
	return res.Key(did)
}

// Static resolves from a fixed table. It is safe for concurrent use.
type Static struct {
	mu   sync.RWMutex
	keys map[string]jose.JSONWebKey
}

func NewStatic() *Static {
	return &Static{keys: make(map[string]jose.JSONWebKey)}
}

// Add registers pub under did. The stored kid defaults to did.
func (s *Static) Add(did string, pub jose.JSONWebKey) {
	if pub.KeyID == "" {
		pub.KeyID = did
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[did] = pub
}

func (s *Static) Resolve(ctx context.Context, did string) (*jose.JSONWebKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[did]
	if !ok {
		return nil, fmt.Errorf("%w: did %s", common.ErrNotFound, did)
	}
	return &k, nil
}
