package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello"))
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(WithHTTPClient(srv.Client()), WithMaxBytes(32))

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = f.Fetch(context.Background(), srv.URL+"/big")
	assert.ErrorContains(t, err, "exceeds 32 bytes")
}

func TestHTTPFetcher_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher().Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
