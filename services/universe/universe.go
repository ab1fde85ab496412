package universe

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading_signals_backend/models"
)

// Loader reads the symbol master list: a JSON array of instrument
// descriptors refreshed out of band and mirrored to a local file.
type Loader struct {
	filePath   string
	fileID     string
	baseURL    string
	httpClient *http.Client
}

func NewLoader(filePath, fileID, baseURL string) *Loader {
	jar, _ := cookiejar.New(nil)
	return &Loader{
		filePath: filePath,
		fileID:   fileID,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
			Jar:     jar,
		},
	}
}

// Load reads the master list and returns only tradable symbols, loaded
// once per scan
func (l *Loader) Load() ([]string, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol master list: %w", err)
	}

	var descriptors []models.SymbolDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("failed to parse symbol master list: %w", err)
	}

	symbols := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if !d.Tradable() || d.NSECode == "" {
			continue
		}
		symbols = append(symbols, d.NSECode)
	}

	log.Printf("Loaded %d tradable symbols (of %d records)", len(symbols), len(descriptors))
	return symbols, nil
}

// DownloadIfMissing fetches the master list from remote storage when the
// local mirror is absent. Drive-style hosts answer large files with a
// download_warning cookie whose value must be echoed back as a confirm
// token.
func (l *Loader) DownloadIfMissing() error {
	if _, err := os.Stat(l.filePath); err == nil {
		return nil
	}
	if l.fileID == "" {
		return fmt.Errorf("symbol master list %s missing and SYMBOL_FILE_ID not set", l.filePath)
	}

	log.Printf("Downloading symbol master list to %s", l.filePath)

	body, err := l.download(l.fileID, "")
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read master list download: %w", err)
	}

	// Quick validation before committing the file
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("downloaded master list is not a JSON array: %w", err)
	}

	if dir := filepath.Dir(l.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if err := os.WriteFile(l.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write master list: %w", err)
	}

	log.Printf("Downloaded symbol master list: %d records", len(records))
	return nil
}

func (l *Loader) download(fileID, confirm string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, l.baseURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("id", fileID)
	if confirm != "" {
		q.Set("confirm", confirm)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("master list download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("master list download failed: status %d", resp.StatusCode)
	}

	if confirm == "" {
		if token := confirmToken(resp.Cookies()); token != "" {
			resp.Body.Close()
			return l.download(fileID, token)
		}
	}
	return resp.Body, nil
}

func confirmToken(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, "download_warning") {
			return c.Value
		}
	}
	return ""
}
