// Command latticed runs the prime-resonance synchronization daemon: it
// seeds the resonance field from the genesis anchor inventory, phase-locks
// the per-prime oscillator family to the reference, and serves the
// observation API.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/talgya/prime-lattice/internal/api"
	"github.com/talgya/prime-lattice/internal/clock"
	"github.com/talgya/prime-lattice/internal/engine"
	"github.com/talgya/prime-lattice/internal/genesis"
	"github.com/talgya/prime-lattice/internal/persistence"
	"github.com/talgya/prime-lattice/internal/phaselock"
	"github.com/talgya/prime-lattice/internal/resonance"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Prime Lattice — Resonance Synchronization Engine")

	// Configuration from environment.
	dbPath := envOrDefault("LATTICE_DB_PATH", "data/lattice.db")
	apiPort := envIntOrDefault("LATTICE_API_PORT", 8080)
	driftPPM := envFloatOrDefault("LATTICE_DRIFT_PPM", 50.0)
	jitterUS := envFloatOrDefault("LATTICE_JITTER_US", 200.0)
	clampHz := envFloatOrDefault("LATTICE_FREQ_CLAMP_HZ", 0) // 0 = unbounded integrator
	seed := int64(envIntOrDefault("LATTICE_SEED", 42))

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll("data", 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Genesis & Resonance Field ─────────────────────────────────────
	inventory := genesis.BuildInventory()
	slog.Info("genesis inventory assembled",
		"network_id", inventory.NetworkID,
		"digest", inventory.Digest[:12],
		"anchors", len(inventory.Anchors),
	)

	field := resonance.NewField()
	if err := field.Initialize(inventory.Anchors); err != nil {
		slog.Error("field initialization failed", "error", err)
		os.Exit(1)
	}

	if err := db.SaveAnchors(field.Anchors()); err != nil {
		slog.Error("anchor save failed", "error", err)
	}

	// Re-create persisted patterns against the fresh field. Strength is
	// recomputed from the same anchors, so the snapshots come back equal.
	if stored, err := db.LoadPatternNames(); err == nil {
		for name, members := range stored {
			if _, err := field.CreatePattern(name, members); err != nil {
				slog.Warn("stored pattern skipped", "pattern", name, "error", err)
			}
		}
	}

	// ── Synchronization Controller ────────────────────────────────────
	primes := field.PrimeInventory()
	slog.Info("prime inventory", "primes", fmt.Sprint(primes))

	ctrl := phaselock.NewController(primes, phaselock.CanonicalFrequencies(), phaselock.Config{
		ClampFrequency: clampHz,
	})

	if db.HasState() {
		slog.Info("found saved oscillator state, restoring...")
		if err := db.RestoreOscillators(ctrl); err != nil {
			slog.Error("oscillator restore failed", "error", err)
		}
	}

	// ── External Reference Clock ──────────────────────────────────────
	ref := clock.NewReference(seed, driftPPM, jitterUS)
	slog.Info("reference clock online",
		"drift_ppm", driftPPM,
		"jitter_us", jitterUS,
		"optimal_interval", phaselock.OptimalSyncInterval(driftPPM),
	)

	// Initial sync so the controller starts on the reference timescale.
	ctrl.SyncWithExternal(ref.Now())

	// ── Engine ────────────────────────────────────────────────────────
	var mu sync.RWMutex

	eng := engine.NewEngine()
	dt := eng.Dt()

	var pending []persistence.Sample

	eng.OnTick = func(tick uint64) {
		mu.Lock()
		ctrl.Tick(dt)
		mu.Unlock()
	}
	eng.OnSecond = func(tick uint64) {
		mu.RLock()
		sample := persistence.Sample{
			Tick:     tick,
			SimTime:  ctrl.LocalTime(),
			OffsetUS: ctrl.Offset() * 1e6,
			Quality:  ctrl.SyncQuality(),
		}
		mu.RUnlock()
		pending = append(pending, sample)
	}
	eng.OnMinute = func(tick uint64) {
		if err := db.AppendSamples(pending); err != nil {
			slog.Error("sample save failed", "error", err)
		} else {
			pending = pending[:0]
		}

		mu.RLock()
		err := db.SaveOscillators(ctrl)
		mu.RUnlock()
		if err != nil {
			slog.Error("oscillator save failed", "error", err)
		}
		if err := db.SaveMeta("last_tick", strconv.FormatUint(tick, 10)); err != nil {
			slog.Error("meta save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("LATTICE_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("LATTICE_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Field:    field,
		Ctrl:     ctrl,
		Eng:      eng,
		DB:       db,
		Clock:    ref,
		Port:     apiPort,
		AdminKey: adminKey,
		Mu:       &mu,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nLattice is live: %d anchors, %d oscillators locked to prime %d.\n",
		len(field.Anchors()), len(ctrl.Master().Oscillators()), phaselock.ReferencePrime)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println("Starting engine... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	mu.RLock()
	if err := db.SaveOscillators(ctrl); err != nil {
		slog.Error("final save failed", "error", err)
	}
	mu.RUnlock()
	if err := db.AppendSamples(pending); err != nil {
		slog.Error("final sample save failed", "error", err)
	}

	fmt.Println("Engine stopped. Lattice state saved.")
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

func envFloatOrDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
