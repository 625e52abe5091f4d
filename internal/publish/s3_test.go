package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedPut struct {
	path        string
	contentType string
	body        string
}

func newFakeS3(t *testing.T) (*httptest.Server, func() []recordedPut) {
	var mu sync.Mutex
	var puts []recordedPut
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(body)})
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedPut {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedPut(nil), puts...)
	}
}

func TestNewS3_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewS3(S3Config{AccessKey: "a", SecretKey: "b"})
	require.ErrorContains(t, err, "bucket")

	_, err = NewS3(S3Config{Bucket: "runs"})
	require.ErrorContains(t, err, "access key")
}

func TestS3_Key(t *testing.T) {
	t.Parallel()

	p, err := NewS3(S3Config{Bucket: "b", Prefix: "/regimes/daily/", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	require.Equal(t, "regimes/daily/x.json", p.Key("/tmp/out/x.json"))

	p, err = NewS3(S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	require.Equal(t, "x.json", p.Key("x.json"))
}

func TestS3_Publish(t *testing.T) {
	t.Parallel()

	srv, puts := newFakeS3(t)
	dir := t.TempDir()
	nbPath := filepath.Join(dir, "regime_analysis_executed_20240101_000000.ipynb")
	resPath := filepath.Join(dir, "regime_analysis_results_20240101_000000.json")
	require.NoError(t, os.WriteFile(nbPath, []byte(`{"cells": []}`), 0644))
	require.NoError(t, os.WriteFile(resPath, []byte(`{}`), 0644))

	p, err := NewS3(S3Config{
		Bucket:    "artifacts",
		Prefix:    "runs",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	keys, err := p.Publish(context.Background(), nbPath, resPath)
	require.NoError(t, err)
	require.Equal(t, []string{
		"runs/regime_analysis_executed_20240101_000000.ipynb",
		"runs/regime_analysis_results_20240101_000000.json",
	}, keys)

	got := puts()
	require.Len(t, got, 2)
	require.Equal(t, "/artifacts/runs/regime_analysis_executed_20240101_000000.ipynb", got[0].path)
	require.Equal(t, "application/x-ipynb+json", got[0].contentType)
	require.Contains(t, got[0].body, `{"cells": []}`)
	require.Equal(t, "application/json", got[1].contentType)
}

func TestS3_Publish_MissingFile(t *testing.T) {
	t.Parallel()

	srv, puts := newFakeS3(t)
	p, err := NewS3(S3Config{Bucket: "b", Endpoint: srv.URL, AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorContains(t, err, "failed to open artifact")
	require.Empty(t, puts())
}

func TestContentType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application/x-ipynb+json", contentType("a.IPYNB"))
	require.Equal(t, "application/json", contentType("a.json"))
	require.Equal(t, "application/octet-stream", contentType("a.unknownext"))
}
