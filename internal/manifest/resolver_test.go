package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
	"sources": [
		{"url": "ipfs://QmA", "filename": "A.fc"},
		{"url": "ipfs://QmB", "filename": "B.fc", "isEntrypoint": true},
		{"url": "ipfs://QmC", "filename": "C.fc"}
	],
	"compiler": "func",
	"compilerSettings": {"funcVersion": "0.4.4"},
	"verificationDate": "2023-05-01T10:00:00Z"
}`

// mapFetcher serves documents from memory. Delays make fetches complete in
// a chosen order.
type mapFetcher struct {
	docs   map[string]string
	delays map[string]time.Duration
	fail   map[string]error

	mu      sync.Mutex
	fetched []string
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if d := f.delays[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: 404 Not Found", url)
	}
	return []byte(doc), nil
}

func (f *mapFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func passThrough(uri string, _ bool) string { return uri }

func sampleFetcher() *mapFetcher {
	return &mapFetcher{
		docs: map[string]string{
			"ipfs://Qmabc": sampleManifest,
			"ipfs://QmA":   "a",
			"ipfs://QmB":   "b",
			"ipfs://QmC":   "c",
		},
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(sampleFetcher())

	res, err := r.Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"B.fc", "C.fc", "A.fc"}, names(res.Files))
	assert.Equal(t, "b", res.Files[0].Content)
	assert.True(t, res.Files[0].IsEntrypoint)
	assert.Equal(t, CompilerFunc, res.Compiler)
	assert.JSONEq(t, `{"funcVersion": "0.4.4"}`, string(res.CompilerSettings))
	assert.Equal(t, "0.4.4", res.CompilerVersion())
	assert.Equal(t, "ipfs://Qmabc", res.ManifestURL)
	assert.Equal(t, 2023, res.VerificationDate.Year())
}

func TestResolve_ISODateForms(t *testing.T) {
	for _, date := range []string{"2023-05-01", "2023-05-01T10:00:00", "2023-05-01T10:00:00.000+0000"} {
		t.Run(date, func(t *testing.T) {
			f := sampleFetcher()
			f.docs["ipfs://Qmabc"] = strings.Replace(sampleManifest, "2023-05-01T10:00:00Z", date, 1)

			res, err := NewResolver(f).Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
			require.NoError(t, err)
			assert.Len(t, res.Files, 3)
			assert.Equal(t, time.May, res.VerificationDate.Month())
			assert.Equal(t, 1, res.VerificationDate.Day())
		})
	}
}

func TestResolve_OrderIndependentOfCompletion(t *testing.T) {
	f := sampleFetcher()
	f.delays = map[string]time.Duration{
		"ipfs://QmA": 30 * time.Millisecond,
		"ipfs://QmB": 20 * time.Millisecond,
	}

	res, err := NewResolver(f).Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"B.fc", "C.fc", "A.fc"}, names(res.Files))
	assert.Equal(t, []string{"b", "c", "a"}, []string{res.Files[0].Content, res.Files[1].Content, res.Files[2].Content})
}

func TestResolve_AllOrNothing(t *testing.T) {
	f := sampleFetcher()
	boom := errors.New("connection reset")
	f.fail = map[string]error{"ipfs://QmC": boom}

	res, err := NewResolver(f).Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "C.fc")
}

func TestResolve_ManifestFetchFails(t *testing.T) {
	f := sampleFetcher()
	delete(f.docs, "ipfs://Qmabc")

	_, err := NewResolver(f).Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, []string{"ipfs://Qmabc"}, f.urls())
}

func TestResolve_InvalidManifest(t *testing.T) {
	f := sampleFetcher()
	f.docs["ipfs://Qmabc"] = `{"sources": []}`

	_, err := NewResolver(f).Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
	assert.ErrorIs(t, err, ErrManifest)
}

func TestResolve_RewriteSeam(t *testing.T) {
	plain, err := NewResolver(sampleFetcher()).Resolve(context.Background(), "ipfs://Qmabc", passThrough, false)
	require.NoError(t, err)

	mirror := &mapFetcher{docs: map[string]string{}}
	for k, v := range sampleFetcher().docs {
		mirror.docs["https://mirror.local/"+strings.TrimPrefix(k, "ipfs://")] = v
	}
	rewrite := PathGatewayRewriter("https://mirror.local/", "https://unused/")

	mirrored, err := NewResolver(mirror).Resolve(context.Background(), "ipfs://Qmabc", rewrite, false)
	require.NoError(t, err)

	assert.Equal(t, plain.Files, mirrored.Files)
	assert.Equal(t, plain.Compiler, mirrored.Compiler)
	assert.Equal(t, plain.CompilerSettings, mirrored.CompilerSettings)
	assert.Equal(t, plain.VerificationDate, mirrored.VerificationDate)
	assert.Equal(t, "https://mirror.local/Qmabc", mirrored.ManifestURL)
	assert.ElementsMatch(t, []string{
		"https://mirror.local/Qmabc",
		"https://mirror.local/QmA",
		"https://mirror.local/QmB",
		"https://mirror.local/QmC",
	}, mirror.urls())
}

func TestResolve_CancellationPropagates(t *testing.T) {
	f := sampleFetcher()
	f.delays = map[string]time.Duration{"ipfs://QmA": time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewResolver(f).Resolve(ctx, "ipfs://Qmabc", passThrough, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve_OverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ipfs/Qmabc", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleManifest)
	})
	for _, name := range []string{"A", "B", "C"} {
		mux.HandleFunc("/ipfs/Qm"+name, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, ";; %s", name)
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rewrite := PathGatewayRewriter(srv.URL+"/ipfs/", srv.URL+"/testnet/")
	res, err := NewResolver(NewHTTPFetcher()).Resolve(context.Background(), "ipfs://Qmabc", rewrite, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"B.fc", "C.fc", "A.fc"}, names(res.Files))
	assert.Equal(t, ";; B", res.Files[0].Content)
	assert.Equal(t, srv.URL+"/ipfs/Qmabc", res.ManifestURL)
}
