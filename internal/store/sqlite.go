package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	params     TEXT NOT NULL,
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tiles (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	tile_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, tile_id)
);

CREATE TABLE IF NOT EXISTS sites (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	site_id  TEXT NOT NULL,
	block_id TEXT NOT NULL,
	rank     INTEGER NOT NULL,
	record   TEXT NOT NULL,
	geom     BLOB NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE TABLE IF NOT EXISTS validation_sites (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	site_id TEXT NOT NULL,
	area_id TEXT NOT NULL,
	tile_id TEXT NOT NULL,
	density INTEGER NOT NULL,
	geom    BLOB NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE TABLE IF NOT EXISTS area_samples (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	area_id    TEXT NOT NULL,
	population INTEGER NOT NULL,
	requested  INTEGER NOT NULL,
	kept       INTEGER NOT NULL,
	discarded  INTEGER NOT NULL,
	shortfall  INTEGER NOT NULL,
	PRIMARY KEY (run_id, area_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_tiles_status ON tiles(run_id, status);
CREATE INDEX IF NOT EXISTS idx_sites_run_id ON sites(run_id);
CREATE INDEX IF NOT EXISTS idx_validation_sites_run_id ON validation_sites(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), string(model.RunStatusQueued), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Kind:      kind,
		Status:    model.RunStatusQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), cause, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, params, result, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, kind, status, params, result, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phase result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

func (s *SQLiteStore) UpsertTile(ctx context.Context, runID string, tile model.TileResult) error {
	detailJSON, err := json.Marshal(tile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tiles (run_id, tile_id, status, detail, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, tile_id) DO UPDATE SET status = excluded.status,
		   detail = excluded.detail, updated_at = excluded.updated_at`,
		runID, tile.TileID, string(tile.Status), string(detailJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert tile %s", tile.TileID)
}

func (s *SQLiteStore) ListTiles(ctx context.Context, runID string) ([]model.TileResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT detail FROM tiles WHERE run_id = ? ORDER BY tile_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list tiles for run %s", runID)
	}
	defer rows.Close()

	var tiles []model.TileResult
	for rows.Next() {
		var detailJSON string
		if err := rows.Scan(&detailJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tile")
		}
		var t model.TileResult
		if err := json.Unmarshal([]byte(detailJSON), &t); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tile")
		}
		tiles = append(tiles, t)
	}
	return tiles, eris.Wrap(rows.Err(), "sqlite: list tiles iterate")
}

func (s *SQLiteStore) ReplaceSites(ctx context.Context, runID string, sites []model.Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace sites")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear sites for run %s", runID)
	}
	for _, site := range sites {
		recordJSON, geomBlob, err := encodeSite(site)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sites (run_id, site_id, block_id, rank, record, geom) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, site.ID, site.BlockID, site.Rank, recordJSON, geomBlob,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert site %s", site.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace sites")
}

func (s *SQLiteStore) ListSites(ctx context.Context, runID string) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, rank, record, geom FROM sites WHERE run_id = ? ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list sites for run %s", runID)
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var (
			site       model.Site
			recordJSON string
			geomBlob   []byte
		)
		if err := rows.Scan(&site.BlockID, &site.Rank, &recordJSON, &geomBlob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site")
		}
		if err := decodeSite(&site, recordJSON, geomBlob); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: list sites iterate")
}

func (s *SQLiteStore) ReplaceValidation(ctx context.Context, runID string, sites []model.ValidationSite, samples []model.AreaSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace validation")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM validation_sites WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear validation sites for run %s", runID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM area_samples WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear area samples for run %s", runID)
	}

	for _, site := range sites {
		geomBlob, err := vector.MarshalGeom(site.Geom)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode validation site %s", site.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO validation_sites (run_id, site_id, area_id, tile_id, density, geom) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, site.ID, site.AreaID, site.TileID, site.Density, geomBlob,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert validation site %s", site.ID)
		}
	}
	for _, sm := range samples {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO area_samples (run_id, area_id, population, requested, kept, discarded, shortfall)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, sm.AreaID, sm.Population, sm.Requested, sm.Kept, sm.Discarded, sm.Shortfall,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert area sample %s", sm.AreaID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace validation")
}

func (s *SQLiteStore) ListValidationSites(ctx context.Context, runID string) ([]model.ValidationSite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, area_id, tile_id, density, geom FROM validation_sites WHERE run_id = ? ORDER BY site_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list validation sites for run %s", runID)
	}
	defer rows.Close()

	var sites []model.ValidationSite
	for rows.Next() {
		var (
			site     model.ValidationSite
			geomBlob []byte
		)
		if err := rows.Scan(&site.ID, &site.AreaID, &site.TileID, &site.Density, &geomBlob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation site")
		}
		site.Geom, err = vector.UnmarshalPolygon(geomBlob)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode validation site %s", site.ID)
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: list validation sites iterate")
}

func (s *SQLiteStore) ListAreaSamples(ctx context.Context, runID string) ([]model.AreaSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT area_id, population, requested, kept, discarded, shortfall FROM area_samples
		 WHERE run_id = ? ORDER BY area_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list area samples for run %s", runID)
	}
	defer rows.Close()

	var samples []model.AreaSample
	for rows.Next() {
		var sm model.AreaSample
		if err := rows.Scan(&sm.AreaID, &sm.Population, &sm.Requested, &sm.Kept, &sm.Discarded, &sm.Shortfall); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area sample")
		}
		samples = append(samples, sm)
	}
	return samples, eris.Wrap(rows.Err(), "sqlite: list area samples iterate")
}

// helpers

func encodeSite(site model.Site) (string, []byte, error) {
	recordJSON, err := json.Marshal(site)
	if err != nil {
		return "", nil, eris.Wrapf(err, "store: marshal site %s", site.ID)
	}
	geomBlob, err := vector.MarshalGeom(site.Geom)
	if err != nil {
		return "", nil, eris.Wrapf(err, "store: encode site %s", site.ID)
	}
	return string(recordJSON), geomBlob, nil
}

func decodeSite(site *model.Site, recordJSON string, geomBlob []byte) error {
	if err := json.Unmarshal([]byte(recordJSON), site); err != nil {
		return eris.Wrap(err, "store: unmarshal site")
	}
	g, err := vector.UnmarshalPolygon(geomBlob)
	if err != nil {
		return eris.Wrapf(err, "store: decode site %s", site.ID)
	}
	site.Geom = g
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		paramsJSON string
		resultJSON sql.NullString
		errMsg     sql.NullString
	)

	err := row.Scan(&r.ID, &r.Kind, &r.Status, &paramsJSON, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return &r, nil
}
