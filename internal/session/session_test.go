package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/apperr"
	"voxpersona/internal/audit"
)

type fakeExecutor struct {
	calls int
	ctx   audit.AnalysisContext
	sel   Selection
}

func (f *fakeExecutor) Execute(_ context.Context, ctxData audit.AnalysisContext, sel Selection) (int64, string, error) {
	f.calls++
	f.ctx = ctxData
	f.sel = sel
	return 42, "final report text", nil
}

func TestFullHappyPathReachesReadyAndResetsAfterExecute(t *testing.T) {
	exec := &fakeExecutor{}
	store := New(exec)

	_, err := store.SetAudioMeta("u1", audit.AnalysisContext{Employee: "Jane", Place: "Grand Hotel", Date: time.Now(), Mode: "interview"})
	require.NoError(t, err)
	assert.Equal(t, StepConfirming, store.Get("u1").Step)

	_, err = store.Confirm("u1", true)
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingReportChoice, store.Get("u1").Step)

	_, err = store.ChooseReport("u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingBuildingChoice, store.Get("u1").Step)

	_, err = store.ChooseBuilding("u1", 3, "audio-1")
	require.NoError(t, err)
	assert.Equal(t, StepReady, store.Get("u1").Step)

	auditID, text, err := store.RunReady(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), auditID)
	assert.Equal(t, "final report text", text)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, "Jane", exec.ctx.Employee)
	assert.Equal(t, int64(3), exec.sel.BuildingTypeID)

	assert.Equal(t, StepCollectingAudioMeta, store.Get("u1").Step, "a successful Execute returns to a neutral state")
}

func TestConfirmFalseReturnsToCollectingAudioMeta(t *testing.T) {
	store := New(&fakeExecutor{})
	_, err := store.SetAudioMeta("u1", audit.AnalysisContext{})
	require.NoError(t, err)

	_, err = store.Confirm("u1", false)
	require.NoError(t, err)
	assert.Equal(t, StepCollectingAudioMeta, store.Get("u1").Step)
}

func TestOutOfOrderTransitionIsRejected(t *testing.T) {
	store := New(&fakeExecutor{})
	_, err := store.ChooseReport("u1", 1, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestRunReadyOutsideReadyStepIsRejected(t *testing.T) {
	store := New(&fakeExecutor{})
	_, _, err := store.RunReady(context.Background(), "u1")
	require.Error(t, err)
}

func TestEnterAndExitDialogRestoresPreviousStep(t *testing.T) {
	store := New(&fakeExecutor{})
	_, err := store.SetAudioMeta("u1", audit.AnalysisContext{})
	require.NoError(t, err)
	require.NoError(t, assertStep(store, "u1", StepConfirming))

	st := store.EnterDialog("u1", true)
	assert.Equal(t, StepDialog, st.Step)
	assert.True(t, st.DeepSearch)

	back := store.ExitDialog("u1")
	assert.Equal(t, StepConfirming, back.Step)
}

func TestSessionsAreIndependentPerUser(t *testing.T) {
	store := New(&fakeExecutor{})
	_, err := store.SetAudioMeta("u1", audit.AnalysisContext{})
	require.NoError(t, err)
	assert.Equal(t, StepCollectingAudioMeta, store.Get("u2").Step)
}

func assertStep(store *Store, userID string, want Step) error {
	if got := store.Get(userID).Step; got != want {
		return apperr.New(apperr.Internal, "unexpected step")
	}
	return nil
}
