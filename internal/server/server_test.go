package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/flight/internal/config"
	"github.com/conneroisu/flight/internal/decoder"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/wire"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8120},
		Render: config.RenderConfig{Mode: "streaming", MaxDepth: 100},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), resolver.NewRegistry(), nil)
	require.NoError(t, err)

	s.RegisterPage("index", func(_ context.Context, props *node.Props) (*node.Node, error) {
		greeting := "hello"
		if v, ok := props.Get("greeting"); ok {
			if str, isString := v.(string); isString {
				greeting = str
			}
		}
		return node.Host("div", node.NewProps(), node.Text(greeting)), nil
	})

	s.RegisterPage("deferred", func(context.Context, *node.Props) (*node.Node, error) {
		async := node.Component(node.Async("Late",
			func(ctx context.Context, _ *node.Props) (*node.Node, error) {
				select {
				case <-time.After(5 * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return node.Text("late content"), nil
			}), nil)
		return node.Boundary(node.Text("waiting"), async), nil
	})

	return s
}

func TestRenderServesHTMLByDefault(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "<div>hello</div>", string(body))
}

func TestRenderServesRowStreamOnAccept(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/?greeting=hi", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", wire.ContentType)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, wire.ContentType, resp.Header.Get("Content-Type"))

	d := decoder.New(decoder.Options{})
	require.NoError(t, d.Consume(resp.Body))

	html, err := d.HTML()
	require.NoError(t, err)
	assert.Equal(t, "<div>hi</div>", html)
}

func TestRenderByPageName(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/render/deferred", nil)
	req.Header.Set("Accept", wire.ContentType)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "waiting")
	assert.Contains(t, string(body), "late content")
}

func TestRenderUnknownPageIs404(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/render/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postStream(t *testing.T, url string, request streamRequest, token []byte) *http.Response {
	t.Helper()
	body, err := json.Marshal(request)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url+"/stream", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if len(token) > 0 {
		req.Header.Set(ResumeTokenHeader, base64.StdEncoding.EncodeToString(token))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

func responseToken(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	encoded := resp.Header.Get(ResumeTokenHeader)
	require.NotEmpty(t, encoded)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	return raw
}

func TestStreamRendersAndIssuesToken(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp := postStream(t, ts.URL, streamRequest{
		ComponentID: "index",
		Props:       map[string]interface{}{"greeting": "streamed"},
	}, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	d := decoder.New(decoder.Options{})
	require.NoError(t, d.Consume(resp.Body))
	html, err := d.HTML()
	require.NoError(t, err)
	assert.Equal(t, "<div>streamed</div>", html)

	token, err := decodeResumeToken(responseToken(t, resp))
	require.NoError(t, err)
	assert.NotEmpty(t, token.StreamID)
	assert.Equal(t, 1, token.Rows)
}

func TestStreamResumeSkipsDeliveredRows(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	first := postStream(t, ts.URL, streamRequest{ComponentID: "deferred"}, nil)
	firstBody, err := io.ReadAll(first.Body)
	first.Body.Close()
	require.NoError(t, err)
	require.NotEmpty(t, firstBody)
	token := responseToken(t, first)

	// The token acknowledges the whole stream, so a resume delivers
	// nothing new but still answers with a fresh token.
	second := postStream(t, ts.URL, streamRequest{ComponentID: "deferred"}, token)
	secondBody, err := io.ReadAll(second.Body)
	second.Body.Close()
	require.NoError(t, err)
	assert.Empty(t, secondBody)
	assert.NotEmpty(t, second.Header.Get(ResumeTokenHeader))
}

func TestStreamUnknownComponentIs404(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp := postStream(t, ts.URL, streamRequest{ComponentID: "nope"}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamMalformedTokenIs400(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	body := bytes.NewReader([]byte(`{"component_id":"index"}`))
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/stream", body)
	req.Header.Set(ResumeTokenHeader, "!!! not base64 !!!")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketStreamsRows(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws?page=deferred"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	d := decoder.New(decoder.Options{})
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		d.FeedLine(string(data))
	}

	html, err := d.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "late content")
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/ws", nil)
	req.Header.Set("Origin", "http://evil.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketAllowsConfiguredOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"http://app.example.com"}
	s, err := New(cfg, resolver.NewRegistry(), nil)
	require.NoError(t, err)
	s.RegisterPage("index", func(context.Context, *node.Props) (*node.Node, error) {
		return node.Text("ok"), nil
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://app.example.com")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "http://other.example.com")
	assert.False(t, s.checkOrigin(req))
}

func TestHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(2), payload["pages"])
}

func TestStreamCacheEvictsOldest(t *testing.T) {
	cache := newStreamCache(2)
	cache.put("a", []wire.Row{{ID: 0}})
	cache.put("b", []wire.Row{{ID: 0}})
	cache.put("c", []wire.Row{{ID: 0}})

	_, ok := cache.get("a")
	assert.False(t, ok)
	_, ok = cache.get("b")
	assert.True(t, ok)
	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestResumeTokenRoundTrip(t *testing.T) {
	token := resumeToken{StreamID: "abc", Rows: 7}
	raw, err := encodeResumeToken(token)
	require.NoError(t, err)

	back, err := decodeResumeToken(raw)
	require.NoError(t, err)
	assert.Equal(t, token, back)
}
