package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundleloader/internal/loader"
)

func TestGatewayFetchArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bundle/widget.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`define([], function () { return 1; });`))
	})
	mux.HandleFunc("/bundle/broken.js", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewGatewayClient(srv.Client(), nil)

	data, err := client.FetchArtifact(context.Background(), srv.URL+"/bundle/widget.js")
	require.NoError(t, err)
	assert.Equal(t, `define([], function () { return 1; });`, string(data))

	_, err = client.FetchArtifact(context.Background(), srv.URL+"/bundle/broken.js")
	var status *loader.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusBadGateway, status.Code)
	assert.Equal(t, "upstream down", status.Body)

	_, err = client.FetchArtifact(context.Background(), "")
	assert.ErrorContains(t, err, "url is empty")
}

func TestPlaceholderFetchArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.js"), []byte("source"), 0o644))
	client := NewPlaceholderClient(dir, nil)

	data, err := client.FetchArtifact(context.Background(), "https://cdn/bundle/widget.js?v=3")
	require.NoError(t, err)
	assert.Equal(t, "source", string(data))

	_, err = client.FetchArtifact(context.Background(), "https://cdn/bundle/other.js")
	var status *loader.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.Code)
}
