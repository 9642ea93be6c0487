// Package analysis wires the Prompt Store (C1), Report Planner (C5),
// Transcriber Facade (C6), and Audit Repository (C9) into the single
// Execute call Session State (C10) invokes once a user reaches ready
// (spec.md §2's control-flow paragraph, §4.10).
package analysis

import (
	"context"

	"voxpersona/internal/audit"
	"voxpersona/internal/chain"
	"voxpersona/internal/credentials"
	"voxpersona/internal/planner"
	"voxpersona/internal/promptstore"
	"voxpersona/internal/session"
	"voxpersona/internal/transcriber"
)

// Service implements session.Executor.
type Service struct {
	Prompts     promptstore.Store
	Transcriber *transcriber.Facade
	Caller      chain.Caller
	Repo        audit.Repository

	// Pool is consulted only to decide whether a two_phase_merge_json plan
	// runs part_1/part_2 in parallel (spec.md §4.5: "if two credentials are
	// available"). It is never acquired from directly here.
	Pool *credentials.Pool
}

// Execute transcribes (or reuses) the session's audio, resolves and runs
// the prompt chain for the chosen scenario/report_type/building_type, and
// persists the result through the Audit Repository in one transaction.
func (s *Service) Execute(ctx context.Context, ctxData audit.AnalysisContext, sel session.Selection) (int64, string, error) {
	mode := transcriber.ModeDesign
	if ctxData.Mode == string(transcriber.ModeInterview) {
		mode = transcriber.ModeInterview
	}

	transcriptionText, err := s.Transcriber.TranscribeAndLabel(ctx, sel.SourceName, mode)
	if err != nil {
		return 0, "", err
	}

	stages, err := s.Prompts.ResolvePrompts(ctx, sel.ScenarioID, sel.ReportTypeID, sel.BuildingTypeID)
	if err != nil {
		return 0, "", err
	}

	plan := planner.BuildPlan(stages)
	finalText, err := planner.Execute(ctx, plan, transcriptionText, s.Caller, s.twoCredentialsAvailable())
	if err != nil {
		return 0, "", err
	}

	auditID, err := s.Repo.Execute(ctx, ctxData, sel.SourceName, transcriptionText, finalText, sel.ScenarioID, sel.ReportTypeID, sel.BuildingTypeID)
	if err != nil {
		return 0, "", err
	}
	return auditID, finalText, nil
}

func (s *Service) twoCredentialsAvailable() bool {
	return s.Pool != nil && s.Pool.Size() >= 2
}
