// Package sentinel implements the autonomous resync steward. It observes
// the lattice over the public API, estimates reference-clock drift from the
// offsets it sees, and triggers external time syncs through the admin
// control plane when quality degrades or the drift-derived interval
// elapses. The engine core never schedules its own resyncs — that judgment
// lives out here, behind the same narrow interface any operator would use.
package sentinel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot holds all data collected during one observation cycle.
type Snapshot struct {
	Status     LatticeStatus `json:"status"`
	Quality    QualityData   `json:"quality"`
	ObservedAt time.Time     `json:"observed_at"`
}

// LatticeStatus mirrors GET /api/v1/status.
type LatticeStatus struct {
	Name        string  `json:"name"`
	Tick        uint64  `json:"tick"`
	Speed       float64 `json:"speed"`
	Running     bool    `json:"running"`
	LocalTime   float64 `json:"local_time"`
	SyncTime    float64 `json:"sync_time"`
	OffsetUS    float64 `json:"offset_us"`
	SinceSync   float64 `json:"since_sync"`
	Quality     float64 `json:"quality"`
	Anchors     int     `json:"anchors"`
	Patterns    int     `json:"patterns"`
	Oscillators int     `json:"oscillators"`
}

// QualityData mirrors GET /api/v1/sync/quality.
type QualityData struct {
	Quality   float64 `json:"quality"`
	OffsetUS  float64 `json:"offset_us"`
	SinceSync float64 `json:"since_sync"`
	SyncTime  float64 `json:"sync_time"`
}

// Observer collects lattice state via the public API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Observe performs one observation cycle.
func (o *Observer) Observe() (*Snapshot, error) {
	snap := &Snapshot{ObservedAt: time.Now()}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON("/api/v1/sync/quality", &snap.Quality); err != nil {
		return nil, fmt.Errorf("fetch quality: %w", err)
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
