// Package persistence provides SQLite-based lattice state storage: the
// genesis anchor batch, stored patterns, oscillator state (frequency drift
// is monotonic and must survive a restart), and the sync telemetry ring.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/prime-lattice/internal/phaselock"
	"github.com/talgya/prime-lattice/internal/resonance"
)

// DB wraps a SQLite connection for lattice state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS anchors (
		name TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		prime1 INTEGER NOT NULL,
		prime2 INTEGER NOT NULL,
		prime3 INTEGER NOT NULL,
		entropy REAL NOT NULL,
		center_x REAL NOT NULL,
		center_y REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patterns (
		name TEXT PRIMARY KEY,
		anchors_json TEXT NOT NULL,
		strength REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS oscillators (
		loop TEXT NOT NULL,
		prime INTEGER NOT NULL,
		is_reference INTEGER NOT NULL,
		frequency REAL NOT NULL,
		phase REAL NOT NULL,
		amplitude REAL NOT NULL,
		PRIMARY KEY (loop, prime)
	);

	CREATE TABLE IF NOT EXISTS sync_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		offset_us REAL NOT NULL,
		quality REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lattice_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_tick ON sync_samples(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// HasState reports whether a prior run left oscillator state behind.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM oscillators"); err != nil {
		return false
	}
	return count > 0
}

// SaveAnchors writes the anchor batch (full replace).
func (db *DB) SaveAnchors(anchors []*resonance.Anchor) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM anchors"); err != nil {
		return err
	}

	for _, a := range anchors {
		_, err := tx.Exec(`INSERT INTO anchors
			(name, role, prime1, prime2, prime3, entropy, center_x, center_y)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.Name, a.Role, a.Primes[0], a.Primes[1], a.Primes[2],
			a.Entropy, a.Center[0], a.Center[1],
		)
		if err != nil {
			return fmt.Errorf("insert anchor %q: %w", a.Name, err)
		}
	}

	return tx.Commit()
}

// SavePatterns writes all stored patterns (full replace). Member lists go
// in as JSON side-columns; strength is a snapshot and is stored as-is.
func (db *DB) SavePatterns(patterns []*resonance.Pattern) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM patterns"); err != nil {
		return err
	}

	for _, p := range patterns {
		namesJSON, _ := json.Marshal(p.AnchorNames())
		_, err := tx.Exec(
			"INSERT INTO patterns (name, anchors_json, strength) VALUES (?, ?, ?)",
			p.Name, string(namesJSON), p.Strength,
		)
		if err != nil {
			return fmt.Errorf("insert pattern %q: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

// LoadPatternNames returns stored pattern name → member names, for
// re-creating patterns against a freshly initialized field.
func (db *DB) LoadPatternNames() (map[string][]string, error) {
	rows, err := db.conn.Queryx("SELECT name, anchors_json FROM patterns")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var name, namesJSON string
		if err := rows.Scan(&name, &namesJSON); err != nil {
			return nil, err
		}
		var members []string
		if err := json.Unmarshal([]byte(namesJSON), &members); err != nil {
			return nil, fmt.Errorf("pattern %q members: %w", name, err)
		}
		out[name] = members
	}
	return out, rows.Err()
}

// SaveOscillators writes the full oscillator state of every loop.
func (db *DB) SaveOscillators(ctrl *phaselock.Controller) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM oscillators"); err != nil {
		return err
	}

	for name, loop := range ctrl.Loops {
		for _, o := range loop.Oscillators() {
			isRef := 0
			if o.Prime == loop.Reference.Prime {
				isRef = 1
			}
			_, err := tx.Exec(`INSERT INTO oscillators
				(loop, prime, is_reference, frequency, phase, amplitude)
				VALUES (?, ?, ?, ?, ?, ?)`,
				name, o.Prime, isRef, o.Frequency, o.Phase, o.Amplitude,
			)
			if err != nil {
				return fmt.Errorf("insert oscillator %s/%d: %w", name, o.Prime, err)
			}
		}
	}

	return tx.Commit()
}

// RestoreOscillators applies saved frequency/phase/amplitude onto a freshly
// constructed controller. Oscillators present in the database but absent
// from the controller (inventory changed between runs) are skipped.
func (db *DB) RestoreOscillators(ctrl *phaselock.Controller) error {
	rows, err := db.conn.Queryx(
		"SELECT loop, prime, frequency, phase, amplitude FROM oscillators")
	if err != nil {
		return err
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var loopName string
		var prime int
		var frequency, phase, amplitude float64
		if err := rows.Scan(&loopName, &prime, &frequency, &phase, &amplitude); err != nil {
			return err
		}

		loop, ok := ctrl.Loops[loopName]
		if !ok {
			continue
		}
		o, ok := loop.Oscillator(prime)
		if !ok {
			continue
		}
		o.Frequency = frequency
		o.Phase = phase
		o.Amplitude = amplitude
		restored++
	}

	slog.Info("oscillator state restored", "oscillators", restored)
	return rows.Err()
}

// Sample is one telemetry observation of the running controller.
type Sample struct {
	Tick     uint64  `db:"tick" json:"tick"`
	SimTime  float64 `db:"sim_time" json:"sim_time"`
	OffsetUS float64 `db:"offset_us" json:"offset_us"`
	Quality  float64 `db:"quality" json:"quality"`
}

// AppendSamples appends telemetry samples.
func (db *DB) AppendSamples(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range samples {
		_, err := tx.Exec(
			"INSERT INTO sync_samples (tick, sim_time, offset_us, quality) VALUES (?, ?, ?, ?)",
			s.Tick, s.SimTime, s.OffsetUS, s.Quality,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentSamples returns the most recent N telemetry samples, newest first.
func (db *DB) RecentSamples(limit int) ([]Sample, error) {
	var samples []Sample
	err := db.conn.Select(&samples,
		"SELECT tick, sim_time, offset_us, quality FROM sync_samples ORDER BY id DESC LIMIT ?",
		limit,
	)
	return samples, err
}

// SaveMeta stores a key-value pair in lattice metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO lattice_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM lattice_meta WHERE key = ?", key)
	return value, err
}
