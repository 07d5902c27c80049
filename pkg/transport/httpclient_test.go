package transport

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDecodesGzip(t *testing.T) {
	body := []byte(`{"ok":true}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write(body)
		gz.Close()
	}))
	defer server.Close()

	got, err := Get(server.URL)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestGetDecodesBrotli(t *testing.T) {
	body := []byte("hello brotli")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write(body)
		bw.Close()
	}))
	defer server.Close()

	got, err := Get(server.URL)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestGetNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := Get(server.URL)
	assert.Error(t, err)
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"arsenal","rating":1510}`)
	}))
	defer server.Close()

	var target struct {
		Name   string  `json:"name"`
		Rating float64 `json:"rating"`
	}
	require.NoError(t, GetJSON(server.URL, &target))
	assert.Equal(t, "arsenal", target.Name)
	assert.Equal(t, 1510.0, target.Rating)
}

func TestNewGzipReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("payload"))
	gz.Close()

	reader, err := NewGzipReader(io.NopCloser(&buf))
	require.NoError(t, err)
	defer reader.Close()

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}
