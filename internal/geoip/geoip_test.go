package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDownloadWritesAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mmdb-bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	require.NoError(t, download(context.Background(), path, srv.URL))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "mmdb-bytes", string(data))

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestDownloadRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	require.Error(t, download(context.Background(), path, srv.URL))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestEnsureDBSkipsFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "country.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("cached"), 0o600))

	// an unreachable URL proves no download was attempted
	require.NoError(t, EnsureDB(path, "http://127.0.0.1:0/never", time.Hour))
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	require.Equal(t, "", p.GetCountryCode("8.8.8.8"))
	require.NoError(t, p.Close())
}
