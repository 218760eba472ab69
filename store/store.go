// Package store keeps height maps in a local sqlite database and serves
// them with the same operations as a remote backend.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mats19/pcb-bridge/bridge"
	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS height_maps (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	source     TEXT NOT NULL,
	width      REAL NOT NULL,
	height     REAL NOT NULL,
	points_x   INTEGER NOT NULL,
	points_y   INTEGER NOT NULL,
	points     TEXT NOT NULL,
	viz_gcode  TEXT NOT NULL,
	min_z      REAL NOT NULL,
	max_z      REAL NOT NULL,
	delta_z    REAL NOT NULL,
	cleared    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS height_maps_created_at ON height_maps (created_at);
`

const (
	SourceProbe     = "probe"
	SourceSimulated = "simulated"
)

// Record is one saved height map.
type Record struct {
	ID        string
	CreatedAt time.Time
	Source    string
	Config    machine.GridConfig
	Points    []coord.Point
	VizGCode  string
	Stats     machine.Stats
}

// Store is a bridge.Backend on sqlite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ bridge.Backend = &Store{}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`PRAGMA busy_timeout = 5000`)
	if err == nil {
		_, err = db.Exec(schema)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Insert saves a height map and returns its id.
func (s *Store) Insert(ctx context.Context, source string, cfg machine.GridConfig, points []coord.Point) (*Record, error) {
	viz, err := Wireframe(cfg, points)
	if err != nil {
		return nil, err
	}
	stats, _ := machine.ComputeStats(points)
	data, err := json.Marshal(points)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        uuid.New().String(),
		CreatedAt: s.now(),
		Source:    source,
		Config:    cfg,
		Points:    points,
		VizGCode:  viz,
		Stats:     stats,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO height_maps (
			id, created_at, source, width, height, points_x, points_y,
			points, viz_gcode, min_z, max_z, delta_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UnixNano(), source,
		cfg.Width, cfg.Height, cfg.PointsX, cfg.PointsY,
		string(data), viz, stats.MinZ, stats.MaxZ, stats.DeltaZ,
	)
	if err != nil {
		return nil, fmt.Errorf("insert height map: %w", err)
	}
	return rec, nil
}

// LatestRecord returns the newest height map that was not reset, or nil.
func (s *Store) LatestRecord(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, width, height, points_x, points_y,
			points, viz_gcode, min_z, max_z, delta_z
		FROM height_maps
		WHERE cleared = 0
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`)

	var rec Record
	var created int64
	var data string
	err := row.Scan(
		&rec.ID, &created, &rec.Source,
		&rec.Config.Width, &rec.Config.Height, &rec.Config.PointsX, &rec.Config.PointsY,
		&data, &rec.VizGCode, &rec.Stats.MinZ, &rec.Stats.MaxZ, &rec.Stats.DeltaZ,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created)
	err = json.Unmarshal([]byte(data), &rec.Points)
	if err != nil {
		return nil, fmt.Errorf("decode points of %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *Store) Latest(ctx context.Context) (*bridge.Snapshot, error) {
	rec, err := s.LatestRecord(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &bridge.Snapshot{Status: bridge.StatusNone}, nil
	}
	return &bridge.Snapshot{
		Status:   bridge.StatusSuccess,
		Config:   &rec.Config,
		Points:   rec.Points,
		VizGCode: rec.VizGCode,
	}, nil
}

// Reset hides every saved height map from Latest. Rows are kept.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE height_maps SET cleared = 1 WHERE cleared = 0`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Save implements machine.Persister.
func (s *Store) Save(ctx context.Context, cfg machine.GridConfig, points []coord.Point) (string, error) {
	rec, err := s.Insert(ctx, SourceProbe, cfg, points)
	if err != nil {
		return "", err
	}
	return rec.VizGCode, nil
}

// Simulate stores a synthetic height map as the latest one.
func (s *Store) Simulate(ctx context.Context, cfg machine.GridConfig) (*bridge.Simulation, error) {
	points, err := SimulateSurface(cfg)
	if err != nil {
		return nil, err
	}
	rec, err := s.Insert(ctx, SourceSimulated, cfg, points)
	if err != nil {
		return nil, err
	}
	return &bridge.Simulation{Points: rec.Points, VizGCode: rec.VizGCode}, nil
}
