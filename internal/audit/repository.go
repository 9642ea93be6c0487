// Package audit implements the Audit Repository (C9): it persists
// transcriptions, audits, and the user's "road" (scenario/report/building)
// in one logical transaction per analysis request, and serves grouped
// corpora for RAG index building.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voxpersona/internal/apperr"
)

// AnalysisContext mirrors spec.md's AnalysisContext entity: built
// interactively by Session State, immutable once confirmed.
type AnalysisContext struct {
	AudioNumber  string
	Date         time.Time
	Employee     string
	Client       string // empty means null
	Place        string
	BuildingType string
	Zone         string // empty means null
	City         string // empty means null
	Mode         string // "design" | "interview"
}

// ReportGroup is one grouped corpus returned by GroupedReports, ready for
// RAG ingestion: the raw text of every prior Audit whose UserRoad row has
// this scenario and report type. The texts carry no dimension labels;
// employee, place, city and the other dimensions are not joined in.
type ReportGroup struct {
	ScenarioID   int64
	ReportTypeID int64
	Texts        []string
}

// Repository is the C9 contract.
type Repository interface {
	// UpsertTranscription reuses the existing row if source_name matches,
	// otherwise inserts a new one.
	UpsertTranscription(ctx context.Context, sourceName, text string) (transcriptionID int64, err error)

	// TranscriptionBySourceName reports the stored text for sourceName, if
	// any, so the Transcriber Facade (C6) can skip re-running ASR and role
	// assignment for a source it has already processed.
	TranscriptionBySourceName(ctx context.Context, sourceName string) (text string, found bool, err error)

	// Execute persists the final text, the input transcription, and a
	// UserRoad row in one transaction. Partial writes are never visible.
	Execute(ctx context.Context, ctxData AnalysisContext, sourceName, transcriptionText, auditText string, scenarioID, reportTypeID, buildingTypeID int64) (auditID int64, err error)

	// GroupedReports returns the text of all prior Audits, grouped by the
	// scenario and report type of their UserRoad row, for RAG ingestion.
	// Dimension values are not joined in. A nil scenario or report type
	// matches all.
	GroupedReports(ctx context.Context, scenarioID, reportTypeID *int64) ([]ReportGroup, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
	bus  EventPublisher
}

// EventPublisher is the minimal surface the repository needs of the event
// bus (C9 supplement): publish is best-effort and never blocks a commit.
type EventPublisher interface {
	PublishAuditCompleted(ctx context.Context, auditID, scenarioID, reportTypeID, buildingTypeID int64)
}

// noopPublisher is used when no event bus is configured.
type noopPublisher struct{}

func (noopPublisher) PublishAuditCompleted(context.Context, int64, int64, int64, int64) {}

// New constructs a Postgres-backed Repository and best-effort bootstraps
// its schema. bus may be nil, in which case events are dropped.
func New(ctx context.Context, pool *pgxpool.Pool, bus EventPublisher) Repository {
	if bus == nil {
		bus = noopPublisher{}
	}
	bootstrap(ctx, pool)
	return &pgRepository{pool: pool, bus: bus}
}

func bootstrap(ctx context.Context, pool *pgxpool.Pool) {
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS transcription (
  id BIGSERIAL PRIMARY KEY,
  text TEXT NOT NULL,
  source_name TEXT UNIQUE NOT NULL,
  sequence_no BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS employee (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS client (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS place (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  building_type BIGINT NOT NULL,
  UNIQUE(name, building_type)
);
CREATE TABLE IF NOT EXISTS city (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS zone (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL);
CREATE TABLE IF NOT EXISTS audit (
  id BIGSERIAL PRIMARY KEY,
  text TEXT NOT NULL,
  transcription_id BIGINT NOT NULL REFERENCES transcription(id),
  employee_id BIGINT NOT NULL REFERENCES employee(id),
  client_id BIGINT REFERENCES client(id),
  place_id BIGINT NOT NULL REFERENCES place(id),
  date TIMESTAMPTZ NOT NULL,
  city_id BIGINT REFERENCES city(id)
);
CREATE TABLE IF NOT EXISTS user_road (
  audit_id BIGINT NOT NULL REFERENCES audit(id),
  scenario_id BIGINT NOT NULL,
  report_type_id BIGINT NOT NULL,
  building_id BIGINT NOT NULL
);
`)
}

func (r *pgRepository) UpsertTranscription(ctx context.Context, sourceName, text string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO transcription(text, source_name) VALUES ($1, $2)
ON CONFLICT (source_name) DO UPDATE SET source_name = EXCLUDED.source_name
RETURNING id
`, text, sourceName).Scan(&id)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "upsert transcription", err)
	}
	return id, nil
}

func (r *pgRepository) TranscriptionBySourceName(ctx context.Context, sourceName string) (string, bool, error) {
	var text string
	err := r.pool.QueryRow(ctx, `SELECT text FROM transcription WHERE source_name = $1`, sourceName).Scan(&text)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.Internal, "select transcription by source_name", err)
	}
	return text, true, nil
}

// getOrCreate implements the get-or-create idiom for a dimension table
// with a UNIQUE(name) constraint: select first and, on a miss, insert with
// ON CONFLICT (name) DO UPDATE ... RETURNING id, so a concurrent insert of
// the same name yields the existing row's id and callers converge on it.
func getOrCreate(ctx context.Context, tx pgx.Tx, table, name string) (int64, error) {
	if name == "" {
		return 0, nil
	}
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}

	err = tx.QueryRow(ctx, `
INSERT INTO `+table+`(name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// getOrCreatePlace implements the same get-or-create idiom for the
// (name, building_type) composite key.
func getOrCreatePlace(ctx context.Context, tx pgx.Tx, name string, buildingTypeID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM place WHERE name = $1 AND building_type = $2`, name, buildingTypeID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	err = tx.QueryRow(ctx, `
INSERT INTO place(name, building_type) VALUES ($1, $2)
ON CONFLICT (name, building_type) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`, name, buildingTypeID).Scan(&id)
	return id, err
}

func (r *pgRepository) Execute(ctx context.Context, ctxData AnalysisContext, sourceName, transcriptionText, auditText string, scenarioID, reportTypeID, buildingTypeID int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var transcriptionID int64
	err = tx.QueryRow(ctx, `
INSERT INTO transcription(text, source_name) VALUES ($1, $2)
ON CONFLICT (source_name) DO UPDATE SET source_name = EXCLUDED.source_name
RETURNING id
`, transcriptionText, sourceName).Scan(&transcriptionID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "upsert transcription in tx", err)
	}

	employeeID, err := getOrCreate(ctx, tx, "employee", ctxData.Employee)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "get-or-create employee", err)
	}
	var clientID *int64
	if ctxData.Client != "" {
		id, err := getOrCreate(ctx, tx, "client", ctxData.Client)
		if err != nil {
			return 0, apperr.Wrap(apperr.Internal, "get-or-create client", err)
		}
		clientID = &id
	}
	placeID, err := getOrCreatePlace(ctx, tx, ctxData.Place, buildingTypeID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "get-or-create place", err)
	}
	var cityID *int64
	if ctxData.City != "" {
		id, err := getOrCreate(ctx, tx, "city", ctxData.City)
		if err != nil {
			return 0, apperr.Wrap(apperr.Internal, "get-or-create city", err)
		}
		cityID = &id
	}

	var auditID int64
	err = tx.QueryRow(ctx, `
INSERT INTO audit(text, transcription_id, employee_id, client_id, place_id, date, city_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, auditText, transcriptionID, employeeID, clientID, placeID, ctxData.Date, cityID).Scan(&auditID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "insert audit", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO user_road(audit_id, scenario_id, report_type_id, building_id) VALUES ($1, $2, $3, $4)
`, auditID, scenarioID, reportTypeID, buildingTypeID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "insert user_road", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "commit transaction", err)
	}

	r.bus.PublishAuditCompleted(ctx, auditID, scenarioID, reportTypeID, buildingTypeID)
	return auditID, nil
}

func (r *pgRepository) GroupedReports(ctx context.Context, scenarioID, reportTypeID *int64) ([]ReportGroup, error) {
	rows, err := r.pool.Query(ctx, `
SELECT ur.scenario_id, ur.report_type_id, a.text
FROM user_road ur
JOIN audit a ON a.id = ur.audit_id
WHERE ($1::BIGINT IS NULL OR ur.scenario_id = $1)
  AND ($2::BIGINT IS NULL OR ur.report_type_id = $2)
ORDER BY ur.scenario_id, ur.report_type_id
`, scenarioID, reportTypeID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "grouped reports query", err)
	}
	defer rows.Close()

	groups := map[[2]int64]*ReportGroup{}
	var order [][2]int64
	for rows.Next() {
		var sID, rID int64
		var text string
		if err := rows.Scan(&sID, &rID, &text); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan grouped report row", err)
		}
		key := [2]int64{sID, rID}
		g, ok := groups[key]
		if !ok {
			g = &ReportGroup{ScenarioID: sID, ReportTypeID: rID}
			groups[key] = g
			order = append(order, key)
		}
		g.Texts = append(g.Texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate grouped report rows", err)
	}

	out := make([]ReportGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out, nil
}
