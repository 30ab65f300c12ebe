package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jupiterdash/pkg/config"
	"jupiterdash/pkg/models"
	"jupiterdash/pkg/rpc"
	"jupiterdash/pkg/wallet"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		result := map[string]string{
			"eth_chainId":     "0x1",
			"eth_blockNumber": "0x10",
		}[req.Method]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunTest_JSON(t *testing.T) {
	node := newNode(t)
	cfg := config.Default()
	cfg.RPCURL = node.URL

	var out bytes.Buffer
	code := runTest(context.Background(), &out, "/tmp/cfg.json", cfg, true)
	assert.Equal(t, 0, code)

	var report models.TestReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.ValidStructure)
	assert.Equal(t, "ok", report.RPC.Status)
	assert.Equal(t, int64(1), report.RPC.ChainID)
	assert.Equal(t, uint64(16), report.RPC.BlockNumber)
	assert.Equal(t, config.WalletNone, report.WalletMode)
}

func TestRunTest_InvalidConfig(t *testing.T) {
	node := newNode(t)
	cfg := config.Default()
	cfg.RPCURL = node.URL
	cfg.Wallet.Mode = "browser"
	cfg.Transfer.To = "nope"

	var out bytes.Buffer
	code := runTest(context.Background(), &out, "/tmp/cfg.json", cfg, false)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "unknown wallet.mode")
	assert.Contains(t, out.String(), "invalid transfer recipient")
	assert.Contains(t, out.String(), "OK (ChainID: 1")
}

func TestRunTest_Unreachable(t *testing.T) {
	node := newNode(t)
	cfg := config.Default()
	cfg.RPCURL = node.URL
	node.Close()

	var out bytes.Buffer
	code := runTest(context.Background(), &out, "/tmp/cfg.json", cfg, true)
	assert.Equal(t, 1, code)

	var report models.TestReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "error", report.RPC.Status)
	assert.NotEmpty(t, report.RPC.Error)
}

func TestNewProvider(t *testing.T) {
	node := newNode(t)
	client, err := rpc.Dial(context.Background(), node.URL, rpc.DefaultTimeout)
	require.NoError(t, err)
	defer client.Close()

	cfg := config.Default()
	p, closeFn, err := newProvider(context.Background(), cfg, client, nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	closeFn()

	cfg.Wallet = config.WalletConfig{Mode: config.WalletKeystore, KeystoreDir: t.TempDir()}
	p, closeFn, err = newProvider(context.Background(), cfg, client, wallet.NewStaticPrompter(""))
	require.NoError(t, err)
	assert.IsType(t, &wallet.KeystoreProvider{}, p)
	closeFn()

	cfg.Wallet = config.WalletConfig{Mode: config.WalletRemote, SignerURL: node.URL}
	p, closeFn, err = newProvider(context.Background(), cfg, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &wallet.RemoteProvider{}, p)
	closeFn()
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, initConfig(path, false))

	cfg, err := config.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRPCURL, cfg.RPCURL)

	err = initConfig(path, false)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already exists"))
}

func TestInitConfig_ForceBacksUpAndRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	custom := config.Default()
	custom.Symbol = "GLMR"
	require.NoError(t, config.SaveConfig(custom, path))

	require.NoError(t, initConfig(path, true))
	cfg, err := config.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSymbol, cfg.Symbol)

	backups, err := filepath.Glob(path + ".*.bak")
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	require.NoError(t, config.RestoreLastBackup(path))
	cfg, err = config.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GLMR", cfg.Symbol)
}

func TestAPIPort(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 0, apiPort(cfg, 0))
	assert.Equal(t, 9000, apiPort(cfg, 9000))

	cfg.Server.Port = 8181
	assert.Equal(t, 8181, apiPort(cfg, 0))
	assert.Equal(t, 9000, apiPort(cfg, 9000))
}

func TestNewLogger_File(t *testing.T) {
	cfg := config.Default()
	cfg.Log = config.LogConfig{Level: "debug", File: filepath.Join(t.TempDir(), "dash.log")}

	logger, closer, err := newLogger(cfg, false)
	require.NoError(t, err)
	logger.Info().Str("rpc", "x").Msg("hello")
	require.NoError(t, closer.Close())
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}
