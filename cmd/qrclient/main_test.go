package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/scan", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"QR session created","data":{"id":31,"table_id":12,"table_number":"12","status":"ACTIVE"}}`))
	})
	mux.HandleFunc("/sessions/31/validate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"valid":true,"data":{"id":31,"status":"ACTIVE"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScanStatusClear(t *testing.T) {
	srv := fakeBackend(t)
	store := filepath.Join(t.TempDir(), "client.db")

	out, err := run(t, "--api", srv.URL, "--store", store, "scan", "http://localhost:3000/?table=12&session=AbCdEfGh12")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"id": 31`)
	assert.Contains(t, out, "Continue at http://localhost:3000/")

	out, err = run(t, "--api", srv.URL, "--store", store, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"status": "ACTIVE"`)

	out, err = run(t, "--api", srv.URL, "--store", store, "validate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Outcome: restored")

	out, err = run(t, "--api", srv.URL, "--store", store, "scan", "http://localhost:3000/?table=12&session=AbCdEfGh12")
	require.NoError(t, err, out)
	assert.Contains(t, out, "already open")

	_, err = run(t, "--api", srv.URL, "--store", store, "clear")
	require.NoError(t, err)

	_, err = run(t, "--api", srv.URL, "--store", store, "status")
	assert.ErrorIs(t, err, errNoSession)
}

func TestScanRejectsURLWithoutParams(t *testing.T) {
	store := filepath.Join(t.TempDir(), "client.db")
	_, err := run(t, "--api", "http://127.0.0.1:1", "--store", store, "scan", "http://localhost:3000/menu")
	assert.Error(t, err)
}
