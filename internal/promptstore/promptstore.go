// Package promptstore resolves prompt sets by (scenario, report_type,
// building_type) and a small set of named system prompts used outside the
// planned chains. The runtime treats the store as read-only; seeding is
// external tooling.
package promptstore

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"voxpersona/internal/apperr"
)

// Stage is one step of a resolved prompt chain.
type Stage struct {
	PromptID int64
	Text     string
	RunPart  int
	IsJSON   bool
}

// Store resolves prompt chains and named system prompts.
type Store interface {
	// ResolvePrompts returns the ordered stage list for a triple: sorted by
	// run_part ascending, then prompt id ascending. Fails with
	// apperr.InvalidReference when the triple has no prompts.
	ResolvePrompts(ctx context.Context, scenarioID, reportTypeID, buildingTypeID int64) ([]Stage, error)

	// ResolveNamed returns a flat, single-stage system prompt by name (e.g.
	// "assign_roles", "classify"). These are not keyed by the triple.
	ResolveNamed(ctx context.Context, name string) (string, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// New constructs a Postgres-backed prompt store and best-effort bootstraps
// its schema, matching the pattern used by the other Postgres backends.
func New(ctx context.Context, pool *pgxpool.Pool) Store {
	bootstrap(ctx, pool)
	return &pgStore{pool: pool}
}

func bootstrap(ctx context.Context, pool *pgxpool.Pool) {
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS scenario (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS report_type (
  id BIGSERIAL PRIMARY KEY,
  description TEXT NOT NULL,
  scenario_id BIGINT NOT NULL REFERENCES scenario(id)
);
CREATE TABLE IF NOT EXISTS building_type (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS prompt (
  id BIGSERIAL PRIMARY KEY,
  text TEXT NOT NULL,
  run_part INT NOT NULL DEFAULT 1,
  is_json BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS prompt_building_report (
  prompt_id BIGINT NOT NULL REFERENCES prompt(id),
  building_id BIGINT NOT NULL REFERENCES building_type(id),
  report_type_id BIGINT NOT NULL REFERENCES report_type(id)
);
CREATE TABLE IF NOT EXISTS named_prompt (
  name TEXT PRIMARY KEY,
  text TEXT NOT NULL
);
`)
}

func (s *pgStore) ResolvePrompts(ctx context.Context, scenarioID, reportTypeID, buildingTypeID int64) ([]Stage, error) {
	rows, err := s.pool.Query(ctx, `
SELECT p.id, p.text, p.run_part, p.is_json
FROM prompt p
JOIN prompt_building_report pbr ON pbr.prompt_id = p.id
JOIN report_type rt ON rt.id = pbr.report_type_id
WHERE pbr.report_type_id = $1 AND pbr.building_id = $2 AND rt.scenario_id = $3
`, reportTypeID, buildingTypeID, scenarioID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "resolve prompts query", err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var st Stage
		if err := rows.Scan(&st.PromptID, &st.Text, &st.RunPart, &st.IsJSON); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan prompt row", err)
		}
		stages = append(stages, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate prompt rows", err)
	}
	if len(stages) == 0 {
		return nil, apperr.New(apperr.InvalidReference, "no prompts for scenario/report/building triple")
	}

	sortStages(stages)
	return stages, nil
}

// sortStages applies the stable tie-break order: run_part ascending, then
// prompt id ascending.
func sortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].RunPart != stages[j].RunPart {
			return stages[i].RunPart < stages[j].RunPart
		}
		return stages[i].PromptID < stages[j].PromptID
	})
}

func (s *pgStore) ResolveNamed(ctx context.Context, name string) (string, error) {
	var text string
	err := s.pool.QueryRow(ctx, `SELECT text FROM named_prompt WHERE name = $1`, name).Scan(&text)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidReference, "named prompt not found: "+name, err)
	}
	return text, nil
}
