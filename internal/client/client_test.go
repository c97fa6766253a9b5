package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/flight/internal/decoder"
)

const sampleStream = `0:["$","div","0",{"children":"hello"}]` + "\n"

func newClient(t *testing.T, endpoints ...string) *Client {
	t.Helper()
	c, err := New(Options{
		Endpoints: endpoints,
		Retries:   1,
		Backoff:   time.Millisecond,
	})
	require.NoError(t, err)

	return c
}

func TestNewRequiresEndpoints(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestFetchDecodesStream(t *testing.T) {
	var gotAccept atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", AcceptRowStream)
		io.WriteString(w, sampleStream)
	}))
	defer server.Close()

	d, err := newClient(t, server.URL).Fetch(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, AcceptRowStream, gotAccept.Load())

	html, err := d.HTML()
	require.NoError(t, err)
	assert.Equal(t, "<div>hello</div>", html)
}

func TestFetchFallsBackToNextEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, sampleStream)
	}))
	defer alive.Close()

	d, err := newClient(t, dead.URL, alive.URL).Fetch(context.Background(), "/")
	require.NoError(t, err)

	tree := d.Tree()
	require.NotNil(t, tree)
	assert.Equal(t, "div", tree.Tag)
}

func TestFetchRetriesBoundedThenFails(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Fetch(context.Background(), "/")
	require.Error(t, err)
	// One pass plus one retry.
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "no such component", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Fetch(context.Background(), "/missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestStreamSendsRequestAndReturnsResumeToken(t *testing.T) {
	token := []byte{0x81, 0xa1, 0x73, 0x01}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stream", r.URL.Path)

		var request StreamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "dashboard", request.ComponentID)
		assert.Equal(t, "k8s", request.Props["cluster"])

		w.Header().Set(ResumeTokenHeader, base64.StdEncoding.EncodeToString(token))
		io.WriteString(w, sampleStream)
	}))
	defer server.Close()

	d := decoder.New(decoder.Options{})
	next, err := newClient(t, server.URL).Stream(context.Background(), StreamRequest{
		ComponentID: "dashboard",
		Props:       map[string]interface{}{"cluster": "k8s"},
	}, d)
	require.NoError(t, err)

	assert.Equal(t, token, next)
	require.NotNil(t, d.Tree())
}

func TestStreamForwardsResumeToken(t *testing.T) {
	token := []byte("opaque")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := base64.StdEncoding.DecodeString(r.Header.Get(ResumeTokenHeader))
		require.NoError(t, err)
		assert.Equal(t, token, got)
		io.WriteString(w, sampleStream)
	}))
	defer server.Close()

	d := decoder.New(decoder.Options{})
	_, err := newClient(t, server.URL).Stream(context.Background(), StreamRequest{
		ComponentID: "dashboard",
		ResumeToken: token,
	}, d)
	require.NoError(t, err)
}

func TestSubscribeFeedsRowsUntilClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)

		ctx := r.Context()
		require.NoError(t, conn.Write(ctx, websocket.MessageText,
			[]byte(`1:["$","p","1",{"children":"loading"}]`)))
		require.NoError(t, conn.Write(ctx, websocket.MessageText,
			[]byte(`0:["$","$Sb","0",{"fallback":"$1","children":"$@2"}]`+"\n"+
				`2:["$","p","2",{"children":"ready"}]`)))
		conn.Close(websocket.StatusNormalClosure, "stream complete")
	}))
	defer server.Close()

	d := decoder.New(decoder.Options{})
	err := newClient(t, server.URL).Subscribe(context.Background(), d)
	require.NoError(t, err)

	html, err := d.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "ready")
}
