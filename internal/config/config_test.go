package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.LedgerEndpointAddr)
	assert.Equal(t, StorageBadger, c.Storage)
	assert.Equal(t, 60*time.Second, c.TxTimeout)
	assert.Equal(t, 8, c.HistoryFanOut)
	assert.Equal(t, 10*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, "identity.json", filepath.Base(c.KeystorePath))
	require.NoError(t, c.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"ledger_endpoint_addr": "json:1",
		"storage": "s3",
		"s3_bucket": "from-json",
		"s3_access_key": "AK",
		"tx_timeout": "30s",
		"online_check_interval": 2000000000,
		"history_fan_out": 4
	}`), 0o600))

	got, err := Load([]string{"history", "1", "-c", path, "-a", "flag:2", "-t", "5"})
	require.NoError(t, err)

	want := &Config{}
	want.LoadDefaults()
	want.LedgerEndpointAddr = "flag:2"
	want.Storage = StorageS3
	want.S3Bucket = "from-json"
	want.S3AccessKey = "AK"
	want.TxTimeout = 5 * time.Second
	want.OnlineCheckInterval = 2 * time.Second
	want.HistoryFanOut = 4

	assert.Empty(t, cmp.Diff(want, got))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]string{"-s", "floppy"})
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = Load([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorIs(t, err, common.ErrConfiguration)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tx_timeout": true}`), 0o600))
	_, err = Load([]string{"-c", bad})
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = Load([]string{"-t", "soon"})
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = Load([]string{"-f", "0"})
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
