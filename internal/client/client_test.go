package client

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keydir"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/memledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/resolver"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	chain *memledger.Chain
	store *memstore.Store
	dir   *keydir.Memory
	res   *resolver.Static
	root  *ledger.KeyringSigner
}

type actor struct {
	*Client
	did      string
	identity *keys.Pair
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	root, err := ledger.GenerateKeyringSigner(rand.Reader)
	require.NoError(t, err)
	return &testEnv{
		chain: memledger.New(root.Address()),
		store: memstore.New(),
		dir:   keydir.NewMemory(),
		res:   resolver.NewStatic(),
		root:  root,
	}
}

func (e *testEnv) config(signer ledger.Signer, did string) Config {
	return Config{
		Dial:       e.chain.Dialer(),
		Storage:    e.store,
		Resolver:   e.res,
		BucketKeys: e.dir,
		Signer:     signer,
		DID:        did,
		TxTimeout:  2 * time.Second,
	}
}

// newActor creates a connected client with a resolvable identity.
func (e *testEnv) newActor(t *testing.T, name string) *actor {
	t.Helper()
	signer, err := ledger.GenerateKeyringSigner(rand.Reader)
	require.NoError(t, err)
	return e.actorWith(t, name, signer)
}

func (e *testEnv) rootActor(t *testing.T) *actor {
	return e.actorWith(t, "root", e.root)
}

func (e *testEnv) actorWith(t *testing.T, name string, signer ledger.Signer) *actor {
	t.Helper()
	did := "did:example:" + name
	identity, err := keys.Generate(did + "#key-agreement-1")
	require.NoError(t, err)
	e.res.Add(did, identity.Public)

	c, err := New(e.config(signer, did))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	return &actor{Client: c, did: did, identity: identity}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	e := newEnv(t)
	full := e.config(e.root, "did:example:root")

	cases := map[string]func(*Config){
		"dial":     func(c *Config) { c.Dial = nil },
		"storage":  func(c *Config) { c.Storage = nil },
		"resolver": func(c *Config) { c.Resolver = nil },
		"keydir":   func(c *Config) { c.BucketKeys = nil },
		"signer":   func(c *Config) { c.Signer = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := full
			mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, common.ErrConfiguration)
		})
	}

	c, err := New(full)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryFanOut, c.cfg.HistoryFanOut)
	assert.Equal(t, DefaultOnlineCheckInterval, c.cfg.OnlineCheckInterval)
	assert.NotNil(t, c.cfg.Logger)
}

func TestClient_NotConnected(t *testing.T) {
	e := newEnv(t)
	c, err := New(e.config(e.root, "did:example:root"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.CreateNamespace(ctx, 1, nil)
	assert.ErrorIs(t, err, common.ErrNotConnected)
	_, err = c.RetrieveBucketMessages(ctx, 1, nil)
	assert.ErrorIs(t, err, common.ErrNotConnected)
	_, err = c.BucketPublicKey(ctx, 1, 1)
	assert.ErrorIs(t, err, common.ErrNotConnected)
}

func TestClient_ConnectFailsWhenOffline(t *testing.T) {
	e := newEnv(t)
	e.chain.SetOnline(false)
	c, err := New(e.config(e.root, "did:example:root"))
	require.NoError(t, err)

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, common.ErrNotConnected)
	assert.Equal(t, StateOffline, c.State())
	require.NoError(t, c.Close())
}

func waitState(t *testing.T, ch <-chan ConnState, want ConnState) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			require.True(t, ok, "state channel closed before %s", want)
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestClient_ConnectionStates(t *testing.T) {
	e := newEnv(t)
	cfg := e.config(e.root, "did:example:root")
	cfg.OnlineCheckInterval = 10 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c.States(), StateConnecting)
	waitState(t, c.States(), StateOnline)

	e.chain.SetOnline(false)
	waitState(t, c.States(), StateOffline)

	e.chain.SetOnline(true)
	waitState(t, c.States(), StateOnline)

	require.NoError(t, c.Close())
	waitState(t, c.States(), StateClosed)
	_, ok := <-c.States()
	assert.False(t, ok)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Connect(context.Background()), common.ErrNotConnected)
}

func TestClient_RolesAndGovernance(t *testing.T) {
	e := newEnv(t)
	manager := e.newActor(t, "manager")
	admin := e.newActor(t, "admin")
	other := e.newActor(t, "other")
	root := e.rootActor(t)
	ctx := context.Background()

	hash, err := manager.CreateNamespace(ctx, 10, []byte("ns"))
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = other.CreateNamespace(ctx, 10, nil)
	var ce *common.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "NamespaceAlreadyExists", ce.Name)
	assert.ErrorIs(t, err, common.ErrCallFailed)

	bucketID, _, err := manager.CreateBucket(ctx, 10, nil)
	require.NoError(t, err)

	_, _, err = other.CreateBucket(ctx, 10, nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "NoPermission", ce.Name)

	_, err = manager.AddManager(ctx, 10, other.Address())
	require.NoError(t, err)
	_, err = manager.RemoveManager(ctx, 10, other.Address())
	require.NoError(t, err)

	_, err = manager.AddAdmin(ctx, 10, bucketID, admin.Address())
	require.NoError(t, err)
	_, err = admin.AddContributor(ctx, 10, bucketID, other.Address())
	require.NoError(t, err)
	_, err = admin.RemoveContributor(ctx, 10, bucketID, other.Address())
	require.NoError(t, err)
	_, err = admin.CreateTag(ctx, bucketID, "chat")
	require.NoError(t, err)

	_, err = admin.SetBucketPublicKey(ctx, 10, bucketID, 1)
	require.NoError(t, err)
	_, err = admin.PauseBucketWrites(ctx, 10, bucketID)
	require.NoError(t, err)

	_, err = manager.RemoveAdmin(ctx, 10, bucketID, admin.Address())
	require.NoError(t, err)
	_, err = admin.PauseBucketWrites(ctx, 10, bucketID)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "NoPermission", ce.Name)

	_, err = manager.RemoveBucket(ctx, 10, bucketID)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "BadOrigin", ce.Name)

	_, err = root.RemoveBucket(ctx, 10, bucketID)
	require.NoError(t, err)
	_, err = root.RemoveNamespace(ctx, 10)
	require.NoError(t, err)

	_, err = manager.AddManager(ctx, 10, admin.Address())
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "NamespaceNotFound", ce.Name)
}
