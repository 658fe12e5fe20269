// Command sentinel runs the autonomous resync steward for the lattice.
// It observes sync state over the public API, estimates reference-clock
// drift, and triggers external time syncs via the admin API whenever
// quality degrades or the drift-derived interval elapses.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/prime-lattice/internal/sentinel"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("LATTICE_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("LATTICE_ADMIN_KEY")
	pollSec := envIntOrDefault("SENTINEL_INTERVAL", 10)

	if adminKey == "" {
		slog.Error("LATTICE_ADMIN_KEY is required")
		os.Exit(1)
	}

	poll := time.Duration(pollSec) * time.Second

	slog.Info("Lattice Sentinel starting",
		"api_url", apiURL,
		"poll", poll,
	)

	observer := sentinel.NewObserver(apiURL)
	actor := sentinel.NewActor(apiURL, adminKey)
	scheduler := sentinel.NewScheduler(poll)

	// Wait for the lattice API before the first cycle. systemd After= only
	// ensures process start, not HTTP readiness.
	slog.Info("waiting for lattice API...")
	waitForAPI(apiURL)

	// Run first cycle immediately.
	runCycle(observer, actor, scheduler)

	// Timer loop.
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(observer, actor, scheduler)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Sentinel stopped.")
			return
		}
	}
}

// runCycle executes one observe → decide → act cycle.
func runCycle(observer *sentinel.Observer, actor *sentinel.Actor, scheduler *sentinel.Scheduler) {
	snap, err := observer.Observe()
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	slog.Info("observation complete",
		"tick", humanize.Comma(int64(snap.Status.Tick)),
		"quality", fmt.Sprintf("%.4f", snap.Quality.Quality),
		"offset_us", fmt.Sprintf("%+.1f", snap.Quality.OffsetUS),
		"since_sync", fmt.Sprintf("%.1fs", snap.Quality.SinceSync),
	)

	decision := scheduler.Decide(snap)
	if !decision.Resync {
		slog.Info("no resync needed",
			"drift_ppm", fmt.Sprintf("%.2f", decision.DriftPPM),
			"next_interval", decision.NextInterval,
		)
		return
	}

	slog.Info("triggering resync",
		"reason", decision.Reason,
		"drift_ppm", fmt.Sprintf("%.2f", decision.DriftPPM),
	)

	result, err := actor.TriggerResync()
	if err != nil {
		slog.Error("resync failed", "error", err)
		return
	}
	scheduler.MarkResync()

	slog.Info("resync complete",
		"offset_us", fmt.Sprintf("%+.1f", result.OffsetUS),
		"quality", fmt.Sprintf("%.4f", result.Quality),
	)
}

// waitForAPI polls the status endpoint until it answers.
func waitForAPI(baseURL string) {
	client := &http.Client{Timeout: 5 * time.Second}
	for {
		resp, err := client.Get(baseURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(3 * time.Second)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
