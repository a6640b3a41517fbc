package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="/l/?uddg=https%3A%2F%2Fwww.obd-codes.com%2Fp0301">P0301 Cylinder 1 Misfire</a>
  <div class="result__snippet">Code P0301 indicates a misfire  detected on cylinder 1.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/forum/p0301">Forum thread about P0301</a>
  <div class="result__snippet">Random forum discussion.</div>
</div>
<div class="result">
  <a class="result__a" href="https://repairpal.com/p0301">RepairPal on P0301</a>
  <div class="result__snippet">Diagnosis and repair costs.</div>
</div>
</body></html>`

func TestSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := NewWithConfig(SearcherConfig{
		BaseURL:   srv.URL,
		RateLimit: 100,
	})

	results, err := s.Search(context.Background(), "P0301 misfire")
	require.NoError(t, err)

	assert.Equal(t, "P0301 misfire", gotQuery)
	require.Len(t, results, 3)

	assert.Equal(t, "P0301 Cylinder 1 Misfire", results[0].Title)
	assert.Equal(t, "https://www.obd-codes.com/p0301", results[0].URL)
	assert.Equal(t, "Code P0301 indicates a misfire detected on cylinder 1.", results[0].Snippet)
	assert.True(t, results[0].Trusted)

	assert.False(t, results[1].Trusted)
	assert.True(t, results[2].Trusted)
}

func TestSearch_MaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := NewWithConfig(SearcherConfig{
		BaseURL:    srv.URL,
		MaxResults: 1,
		RateLimit:  100,
	})

	results, err := s.Search(context.Background(), "P0301")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewWithConfig(SearcherConfig{BaseURL: srv.URL, RateLimit: 100})

	_, err := s.Search(context.Background(), "P0301")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestResolveRedirect(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/l/?uddg=https%3A%2F%2Frepairpal.com%2Fp0300", "https://repairpal.com/p0300"},
		{"https://example.com/direct", "https://example.com/direct"},
		{"/relative/no-redirect", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveRedirect(tt.href), tt.href)
	}
}

func TestIsTrusted(t *testing.T) {
	assert.True(t, IsTrusted("https://www.nhtsa.gov/recalls"))
	assert.True(t, IsTrusted("https://obd-codes.com/p0301"))
	assert.False(t, IsTrusted("https://example.com/p0301"))
	assert.False(t, IsTrusted("https://not-obd-codes.com.evil.io/"))
}
