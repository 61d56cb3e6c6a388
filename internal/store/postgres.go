package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cruiseplan/siteselect/internal/db"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, kind, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"finish_run":        `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"fail_run":          `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, kind, status, params, result, error, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_phase":      `INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_phase":    `UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
	"upsert_tile":       `INSERT INTO tiles (run_id, tile_id, status, detail, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (run_id, tile_id) DO UPDATE SET status = $3, detail = $4, updated_at = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems
// that need direct query access (e.g., reporting).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	params     JSONB NOT NULL,
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tiles (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	tile_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	detail     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, tile_id)
);

CREATE TABLE IF NOT EXISTS sites (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	site_id  TEXT NOT NULL,
	block_id TEXT NOT NULL,
	rank     INTEGER NOT NULL,
	record   JSONB NOT NULL,
	geom     BYTEA NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE TABLE IF NOT EXISTS validation_sites (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	site_id TEXT NOT NULL,
	area_id TEXT NOT NULL,
	tile_id TEXT NOT NULL,
	density INTEGER NOT NULL,
	geom    BYTEA NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE TABLE IF NOT EXISTS area_samples (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	area_id    TEXT NOT NULL,
	population INTEGER NOT NULL,
	requested  INTEGER NOT NULL,
	kept       INTEGER NOT NULL,
	discarded  INTEGER NOT NULL,
	shortfall  BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, area_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_tiles_status ON tiles(run_id, status);
CREATE INDEX IF NOT EXISTS idx_sites_run_id ON sites(run_id);
CREATE INDEX IF NOT EXISTS idx_validation_sites_run_id ON validation_sites(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(kind), string(model.RunStatusQueued), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), cause, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var paramsJSON []byte
	var resultNull *[]byte
	var errNull *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, status, params, result, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Kind, &r.Status, &paramsJSON, &resultNull, &errNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("run not found")
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal params")
	}
	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if errNull != nil {
		r.Error = *errNull
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, kind, status, params, result, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var paramsJSON []byte
		var resultNull *[]byte
		var errNull *string

		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &paramsJSON, &resultNull, &errNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal params")
		}
		if resultNull != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		if errNull != nil {
			r.Error = *errNull
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase not found: %s", phaseID)
	}
	return nil
}

func (s *PostgresStore) UpsertTile(ctx context.Context, runID string, tile model.TileResult) error {
	detailJSON, err := json.Marshal(tile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tile")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tiles (run_id, tile_id, status, detail, updated_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (run_id, tile_id) DO UPDATE SET status = $3, detail = $4, updated_at = $5`,
		runID, tile.TileID, string(tile.Status), detailJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert tile %s", tile.TileID)
}

func (s *PostgresStore) ListTiles(ctx context.Context, runID string) ([]model.TileResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT detail FROM tiles WHERE run_id = $1 ORDER BY tile_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list tiles for run %s", runID)
	}
	defer rows.Close()

	var tiles []model.TileResult
	for rows.Next() {
		var detailJSON []byte
		if err := rows.Scan(&detailJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tile")
		}
		var t model.TileResult
		if err := json.Unmarshal(detailJSON, &t); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal tile")
		}
		tiles = append(tiles, t)
	}
	return tiles, eris.Wrap(rows.Err(), "postgres: list tiles iterate")
}

func (s *PostgresStore) ReplaceSites(ctx context.Context, runID string, sites []model.Site) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear sites for run %s", runID)
	}

	rows := make([][]any, 0, len(sites))
	for _, site := range sites {
		recordJSON, geomBlob, err := encodeSite(site)
		if err != nil {
			return err
		}
		rows = append(rows, []any{runID, site.ID, site.BlockID, site.Rank, recordJSON, geomBlob})
	}

	_, err := db.CopyFrom(ctx, s.pool, "sites",
		[]string{"run_id", "site_id", "block_id", "rank", "record", "geom"}, rows)
	return eris.Wrapf(err, "postgres: replace sites for run %s", runID)
}

func (s *PostgresStore) ListSites(ctx context.Context, runID string) ([]model.Site, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT block_id, rank, record, geom FROM sites WHERE run_id = $1 ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list sites for run %s", runID)
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
			return nil, eris.Wrap(err, "postgres: scan site")
		}
		if err := decodeSite(&site, recordJSON, geomBlob); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: list sites iterate")
}

// ReplaceValidation replaces the validation plots for a run and upserts the
// per-area tallies. Plot ids can shift between reruns so the plot rows are
// replaced outright; area tallies are keyed by (run_id, area_id) and updated
// in place.
func (s *PostgresStore) ReplaceValidation(ctx context.Context, runID string, sites []model.ValidationSite, samples []model.AreaSample) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM validation_sites WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear validation sites for run %s", runID)
	}

	siteRows := make([][]any, 0, len(sites))
	for _, site := range sites {
		geomBlob, err := vector.MarshalGeom(site.Geom)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode validation site %s", site.ID)
		}
		siteRows = append(siteRows, []any{runID, site.ID, site.AreaID, site.TileID, site.Density, geomBlob})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "validation_sites",
		[]string{"run_id", "site_id", "area_id", "tile_id", "density", "geom"}, siteRows); err != nil {
		return eris.Wrapf(err, "postgres: replace validation sites for run %s", runID)
	}

	sampleRows := make([][]any, 0, len(samples))
	for _, sm := range samples {
		sampleRows = append(sampleRows, []any{runID, sm.AreaID, sm.Population, sm.Requested, sm.Kept, sm.Discarded, sm.Shortfall})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "area_samples",
		Columns:      []string{"run_id", "area_id", "population", "requested", "kept", "discarded", "shortfall"},
		ConflictKeys: []string{"run_id", "area_id"},
	}, sampleRows)
	return eris.Wrapf(err, "postgres: upsert area samples for run %s", runID)
}

func (s *PostgresStore) ListValidationSites(ctx context.Context, runID string) ([]model.ValidationSite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_id, area_id, tile_id, density, geom FROM validation_sites WHERE run_id = $1 ORDER BY site_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list validation sites for run %s", runID)
	}
	defer rows.Close()

	var sites []model.ValidationSite
	for rows.Next() {
		var (
			site     model.ValidationSite
			geomBlob []byte
		)
		if err := rows.Scan(&site.ID, &site.AreaID, &site.TileID, &site.Density, &geomBlob); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation site")
		}
		site.Geom, err = vector.UnmarshalPolygon(geomBlob)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode validation site %s", site.ID)
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: list validation sites iterate")
}

func (s *PostgresStore) ListAreaSamples(ctx context.Context, runID string) ([]model.AreaSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT area_id, population, requested, kept, discarded, shortfall FROM area_samples WHERE run_id = $1 ORDER BY area_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list area samples for run %s", runID)
	}
	defer rows.Close()

	var samples []model.AreaSample
	for rows.Next() {
		var sm model.AreaSample
		if err := rows.Scan(&sm.AreaID, &sm.Population, &sm.Requested, &sm.Kept, &sm.Discarded, &sm.Shortfall); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area sample")
		}
		samples = append(samples, sm)
	}
	return samples, eris.Wrap(rows.Err(), "postgres: list area samples iterate")
}
