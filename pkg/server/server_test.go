package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"jupiterdash/pkg/app"
	"jupiterdash/pkg/models"
	"jupiterdash/pkg/wallet"
	"jupiterdash/pkg/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

type stubProvider struct {
	sendErr error
}

func (p stubProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if method == wallet.MethodSendTransaction {
		if p.sendErr != nil {
			return nil, p.sendErr
		}
		return json.RawMessage(`"0x00000000000000000000000000000000000000000000000000000000000000aa"`), nil
	}
	return json.RawMessage(`["` + owner + `"]`), nil
}

type stubChain struct{}

func (stubChain) BlockNumber(context.Context) (string, error) { return "0x10", nil }
func (stubChain) GasPrice(context.Context) (string, error)    { return "0x3B9ACA00", nil }
func (stubChain) Balance(context.Context, common.Address) (string, error) {
	return "0x0", nil
}

type memClipboard struct{}

func (memClipboard) WriteAll(string) error { return nil }

func newTestServer(t *testing.T, provider wallet.Provider) (*Server, *watcher.Watcher, *httptest.Server) {
	t.Helper()
	connector := wallet.NewConnector(provider, wallet.DefaultTransfer, zerolog.Nop())
	w := watcher.NewWatcher(stubChain{}, connector, watcher.Options{Interval: time.Hour}, zerolog.Nop())
	actions := app.NewActions(connector, w, memClipboard{}, zerolog.Nop())
	s := NewServer(actions, w, Options{QRSize: 128}, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, w, ts
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandleStatus(t *testing.T) {
	_, w, ts := newTestServer(t, nil)
	require.NoError(t, w.RunCycle(context.Background()))

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap models.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, models.StatusOK, snap.Status)
	assert.Equal(t, uint64(16), snap.BlockNumber)
	assert.Equal(t, "1.000", snap.GasPriceGwei)
	assert.False(t, snap.Connected)
}

func TestHandleQR(t *testing.T) {
	_, _, ts := newTestServer(t, stubProvider{})

	resp, err := http.Get(ts.URL + "/api/qr.png")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/api/connect").StatusCode)

	resp, err = http.Get(ts.URL + "/api/qr.png")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestHandleConnect(t *testing.T) {
	t.Run("no wallet", func(t *testing.T) {
		_, _, ts := newTestServer(t, nil)
		resp := post(t, ts.URL+"/api/connect")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body["error"], "no wallet")
	})

	t.Run("connected", func(t *testing.T) {
		_, w, ts := newTestServer(t, stubProvider{})
		resp := post(t, ts.URL+"/api/connect")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, common.HexToAddress(owner).Hex(), body["address"])

		require.NoError(t, w.RunCycle(context.Background()))
		assert.True(t, w.Snapshot().Connected)
	})
}

func TestHandleSend(t *testing.T) {
	t.Run("submitted", func(t *testing.T) {
		_, _, ts := newTestServer(t, stubProvider{})
		resp := post(t, ts.URL+"/api/send")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var res models.TransferResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, common.HexToHash("0xaa").Hex(), res.Hash)
		assert.Empty(t, res.Error)
	})

	t.Run("rejected", func(t *testing.T) {
		_, _, ts := newTestServer(t, stubProvider{
			sendErr: &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "denied"},
		})
		resp := post(t, ts.URL+"/api/send")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var res models.TransferResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Empty(t, res.Hash)
		assert.Contains(t, res.Error, "denied")
	})
}

func TestHandleRefresh(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusAccepted, post(t, ts.URL+"/api/refresh").StatusCode)

	resp, err := http.Get(ts.URL + "/api/refresh")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jupiterdash_cycle_duration_seconds")
}

func TestCORS(t *testing.T) {
	connector := wallet.NewConnector(nil, wallet.DefaultTransfer, zerolog.Nop())
	w := watcher.NewWatcher(stubChain{}, connector, watcher.Options{}, zerolog.Nop())
	s := NewServer(app.NewActions(connector, w, memClipboard{}, zerolog.Nop()), w,
		Options{AllowedOrigins: []string{"http://localhost:3000"}}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleWS(t *testing.T) {
	s, w, ts := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.listenToWatcher(ctx, w.Subscribe())

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	var msg map[string]interface{}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "initial", msg["type"])

	require.NoError(t, w.RunCycle(context.Background()))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, string(watcher.EventSnapshotUpdated), msg["type"])
}

type countingProvider struct {
	stubProvider
	sends atomic.Int32
}

func (p *countingProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if method == wallet.MethodSendTransaction {
		p.sends.Add(1)
	}
	return p.stubProvider.Request(ctx, method, params...)
}

func newGuardedServer(t *testing.T, provider wallet.Provider) *httptest.Server {
	t.Helper()
	connector := wallet.NewConnector(provider, wallet.DefaultTransfer, zerolog.Nop())
	w := watcher.NewWatcher(stubChain{}, connector, watcher.Options{Interval: time.Hour}, zerolog.Nop())
	s := NewServer(app.NewActions(connector, w, memClipboard{}, zerolog.Nop()), w,
		Options{AllowedOrigins: []string{"http://localhost:3000"}}, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doPost(t *testing.T, url, origin, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader("{}"))
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestActions_ForeignOriginRejected(t *testing.T) {
	provider := &countingProvider{}
	ts := newGuardedServer(t, provider)

	for _, ct := range []string{"text/plain", "application/json"} {
		for _, path := range []string{"/api/send", "/api/connect", "/api/refresh"} {
			resp := doPost(t, ts.URL+path, "http://evil.example", ct)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode, "%s %s", path, ct)
			assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
		}
	}
	assert.Equal(t, int32(0), provider.sends.Load())
}

func TestActions_RequireJSON(t *testing.T) {
	provider := &countingProvider{}
	ts := newGuardedServer(t, provider)

	resp := doPost(t, ts.URL+"/api/send", "", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	resp = doPost(t, ts.URL+"/api/send", "http://localhost:3000", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, int32(0), provider.sends.Load())
}

func TestActions_AllowedOrigins(t *testing.T) {
	provider := &countingProvider{}
	ts := newGuardedServer(t, provider)

	resp := doPost(t, ts.URL+"/api/send", "http://localhost:3000", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = doPost(t, ts.URL+"/api/send", ts.URL, "application/json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doPost(t, ts.URL+"/api/send", "", "application/json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int32(3), provider.sends.Load())
}

func TestHandleWS_ForeignOriginRejected(t *testing.T) {
	ts := newGuardedServer(t, nil)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	_ = ws.Close()
}

func TestListenAddrDefaultsToLoopback(t *testing.T) {
	connector := wallet.NewConnector(nil, wallet.DefaultTransfer, zerolog.Nop())
	w := watcher.NewWatcher(stubChain{}, connector, watcher.Options{}, zerolog.Nop())
	actions := app.NewActions(connector, w, memClipboard{}, zerolog.Nop())

	assert.Equal(t, "127.0.0.1:8080", NewServer(actions, w, Options{}, zerolog.Nop()).Addr())
	assert.Equal(t, "0.0.0.0:9000", NewServer(actions, w, Options{Host: "0.0.0.0", Port: 9000}, zerolog.Nop()).Addr())
}
