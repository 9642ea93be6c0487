// Package session implements Session State (C10): a per-user collection
// and confirmation state machine that decides when enough context has
// been gathered to hand off to the Report Planner (C5). Spec marks this as
// "interface only" — the hard part is C1-C9; Store exists to remove the
// module-level dictionaries ("authorised users", "processed texts",
// "user_states") the original design used in their place with a single
// explicit capability instead of a process-wide singleton.
package session

import (
	"context"
	"sync"

	"voxpersona/internal/apperr"
	"voxpersona/internal/audit"
)

// Step is one state in the per-user collection/confirmation machine.
type Step string

const (
	StepCollectingAudioMeta    Step = "collecting_audio_meta"
	StepConfirming             Step = "confirming"
	StepAwaitingReportChoice   Step = "awaiting_report_choice"
	StepAwaitingBuildingChoice Step = "awaiting_building_choice"
	StepReady                  Step = "ready"
	StepDialog                 Step = "dialog"
)

// Selection holds the report/building identifiers collected before ready,
// alongside the free-form AnalysisContext fields.
type Selection struct {
	ScenarioID     int64
	ReportTypeID   int64
	BuildingTypeID int64
	SourceName     string // the transcription source_name to execute against
}

// State is one user's SessionState: {user_id, step, context_partial,
// deep_search, previous_step}.
type State struct {
	UserID       string
	Step         Step
	Context      audit.AnalysisContext
	Selection    Selection
	DeepSearch   bool
	PreviousStep *Step
}

func (s *State) advance(next Step) {
	prev := s.Step
	s.PreviousStep = &prev
	s.Step = next
}

// Executor is the narrow surface Store needs of the Report Planner +
// Audit Repository pipeline: given a confirmed context and selection, run
// the resolved prompt chain and persist the result in one transaction.
type Executor interface {
	Execute(ctx context.Context, ctxData audit.AnalysisContext, sel Selection) (auditID int64, finalText string, err error)
}

// Store owns every user's SessionState behind a single mutex. Concurrent
// messages from one user must already be serialised by the front-end layer
// (spec.md §5); Store only protects the map itself against concurrent
// access from different users.
type Store struct {
	mu       sync.Mutex
	states   map[string]*State
	executor Executor
}

// New constructs an empty Store. Process-lifetime only: spec.md §9 leaves
// persistence of session state across restarts out of scope.
func New(executor Executor) *Store {
	return &Store{states: make(map[string]*State), executor: executor}
}

// Get returns the current state for userID, creating a fresh
// collecting_audio_meta state on first use.
func (s *Store) Get(userID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID)
}

func (s *Store) getLocked(userID string) *State {
	st, ok := s.states[userID]
	if !ok {
		st = &State{UserID: userID, Step: StepCollectingAudioMeta}
		s.states[userID] = st
	}
	return st
}

// SetAudioMeta records the interactively-collected AnalysisContext fields
// and moves the user from collecting_audio_meta to confirming.
func (s *Store) SetAudioMeta(userID string, ctxData audit.AnalysisContext) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(userID)
	if st.Step != StepCollectingAudioMeta {
		return nil, apperr.New(apperr.Internal, "set audio meta outside collecting_audio_meta step")
	}
	st.Context = ctxData
	st.advance(StepConfirming)
	return st, nil
}

// Confirm moves confirming -> awaiting_report_choice. A false confirmed
// sends the user back to collecting_audio_meta to re-enter their metadata.
func (s *Store) Confirm(userID string, confirmed bool) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(userID)
	if st.Step != StepConfirming {
		return nil, apperr.New(apperr.Internal, "confirm outside confirming step")
	}
	if confirmed {
		st.advance(StepAwaitingReportChoice)
	} else {
		st.advance(StepCollectingAudioMeta)
	}
	return st, nil
}

// ChooseReport records the scenario/report_type choice and advances to
// awaiting_building_choice.
func (s *Store) ChooseReport(userID string, scenarioID, reportTypeID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(userID)
	if st.Step != StepAwaitingReportChoice {
		return nil, apperr.New(apperr.Internal, "choose report outside awaiting_report_choice step")
	}
	st.Selection.ScenarioID = scenarioID
	st.Selection.ReportTypeID = reportTypeID
	st.advance(StepAwaitingBuildingChoice)
	return st, nil
}

// ChooseBuilding records the building_type choice and the transcription
// source to execute against, then advances to ready.
func (s *Store) ChooseBuilding(userID string, buildingTypeID int64, sourceName string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(userID)
	if st.Step != StepAwaitingBuildingChoice {
		return nil, apperr.New(apperr.Internal, "choose building outside awaiting_building_choice step")
	}
	st.Selection.BuildingTypeID = buildingTypeID
	st.Selection.SourceName = sourceName
	st.advance(StepReady)
	return st, nil
}

// RunReady calls the Executor with a snapshot of the collected context
// once the user has reached ready, then returns the user to
// collecting_audio_meta (spec.md §4.10: "on success, returns to a neutral
// state"). The snapshot is copied out before Execute runs so a concurrent
// read of State via Get never observes a partially reset session.
func (s *Store) RunReady(ctx context.Context, userID string) (int64, string, error) {
	s.mu.Lock()
	st, ok := s.states[userID]
	if !ok || st.Step != StepReady {
		s.mu.Unlock()
		return 0, "", apperr.New(apperr.Internal, "run ready outside ready step")
	}
	ctxSnapshot := st.Context
	selSnapshot := st.Selection
	s.mu.Unlock()

	auditID, text, err := s.executor.Execute(ctx, ctxSnapshot, selSnapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[userID]; ok && st.Step == StepReady {
		*st = State{UserID: userID, Step: StepCollectingAudioMeta}
	}
	return auditID, text, err
}

// EnterDialog moves a user into the dialog step (used once a confirmed
// context exists but the user is asking ad hoc questions instead of
// running a report) and records the deep_search preference.
func (s *Store) EnterDialog(userID string, deepSearch bool) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(userID)
	st.DeepSearch = deepSearch
	st.advance(StepDialog)
	return st
}

// ExitDialog returns a user from dialog to their previous step, or to
// collecting_audio_meta if none was recorded.
func (s *Store) ExitDialog(userID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(userID)
	if st.PreviousStep != nil {
		st.Step = *st.PreviousStep
		st.PreviousStep = nil
	} else {
		st.Step = StepCollectingAudioMeta
	}
	return st
}
