// Package gateway stores blobs through an IPFS pinning service: uploads
// go to a pinning API with bearer authentication, downloads come from a
// public HTTP gateway.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/netx"
)

const (
	DefaultPinURL     = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs"
	DefaultTimeout    = 30 * time.Second
)

type Config struct {
	PinURL     string
	GatewayURL string
	// Token is the pinning service JWT.
	Token   string
	Timeout time.Duration
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

type Store struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Store, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: pinning token is required", common.ErrConfiguration)
	}
	if cfg.PinURL == "" {
		cfg.PinURL = DefaultPinURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")

	return &Store{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (s *Store) Upload(ctx context.Context, data []byte) (string, error) {
	b, err := netx.PostFile(ctx, s.client, s.cfg.PinURL, s.cfg.Token, "blob.bin", data)
	if err != nil {
		return "", fmt.Errorf("pin upload: %w", err)
	}

	var resp pinResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return "", fmt.Errorf("pin upload: decode response: %w", err)
	}
	if resp.IpfsHash == "" {
		return "", fmt.Errorf("pin upload: response has no IpfsHash")
	}
	return resp.IpfsHash, nil
}

func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	b, err := netx.Get(ctx, s.client, s.cfg.GatewayURL+"/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway download %s: %w", id, err)
	}
	return b, nil
}
