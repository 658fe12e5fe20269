package sentinel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SyncResult is the response from POST /api/v1/sync/external.
type SyncResult struct {
	ReferenceTime float64 `json:"reference_time"`
	OffsetUS      float64 `json:"offset_us"`
	Quality       float64 `json:"quality"`
}

// Actor triggers resyncs via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TriggerResync asks the lattice to sync against its external reference
// clock. The daemon reads its own reference time; the sentinel never
// supplies one.
func (a *Actor) TriggerResync() (*SyncResult, error) {
	req, err := http.NewRequest("POST", a.BaseURL+"/api/v1/sync/external", strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST sync: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result SyncResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
