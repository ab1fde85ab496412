package universe

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMasterList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obj_data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFiltersTradableSymbols(t *testing.T) {
	path := writeMasterList(t, `[
		{"nse_code": "RELIANCE", "nse_available": "True"},
		{"nse_code": "DELISTED", "nse_available": "False"},
		{"nse_code": "TCS", "nse_available": "true"},
		{"nse_code": "", "nse_available": "True"},
		{"nse_code": "NOFLAG"}
	]`)

	l := NewLoader(path, "", "")
	symbols, err := l.Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, symbols)
}

func TestLoadMissingFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.json"), "", "")
	_, err := l.Load()
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeMasterList(t, `{"not": "an array"}`)
	l := NewLoader(path, "", "")
	_, err := l.Load()
	assert.Error(t, err)
}

func TestDownloadIfMissingSkipsExistingFile(t *testing.T) {
	path := writeMasterList(t, `[]`)

	// no fileID configured: would fail if a download were attempted
	l := NewLoader(path, "", "")
	assert.NoError(t, l.DownloadIfMissing())
}

func TestDownloadIfMissingWritesFile(t *testing.T) {
	payload := `[{"nse_code": "INFY", "nse_available": "True"}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "file123", r.URL.Query().Get("id"))
		w.Write([]byte(payload))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "data", "obj_data.json")
	l := NewLoader(path, "file123", server.URL)

	require.NoError(t, l.DownloadIfMissing())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	symbols, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY"}, symbols)
}

func TestDownloadIfMissingEchoesConfirmToken(t *testing.T) {
	payload := `[{"nse_code": "SBIN", "nse_available": "True"}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "tok42" {
			w.Write([]byte(payload))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "download_warning_x9z", Value: "tok42"})
		w.Write([]byte("<html>virus scan warning</html>"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "obj_data.json")
	l := NewLoader(path, "file123", server.URL)

	require.NoError(t, l.DownloadIfMissing())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestDownloadIfMissingRejectsNonArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>quota exceeded</html>`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "obj_data.json")
	l := NewLoader(path, "file123", server.URL)

	err := l.DownloadIfMissing()
	require.Error(t, err)
	// nothing gets committed on a bad payload
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadIfMissingNoFileID(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "obj_data.json"), "", "")
	assert.Error(t, l.DownloadIfMissing())
}
