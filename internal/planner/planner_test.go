package planner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/chain"
	"voxpersona/internal/promptstore"
)

func TestBuildPlanSingleWhenOneRunPart(t *testing.T) {
	plan := BuildPlan([]promptstore.Stage{
		{PromptID: 1, Text: "P1", RunPart: 1},
		{PromptID: 2, Text: "P2", RunPart: 1},
	})
	assert.Equal(t, ModeSingle, plan.Mode)
	assert.Len(t, plan.Chain, 2)
}

func TestBuildPlanTwoPhaseMergeJSON(t *testing.T) {
	plan := BuildPlan([]promptstore.Stage{
		{PromptID: 1, Text: "Pa", RunPart: 1},
		{PromptID: 2, Text: "Pb", RunPart: 2},
		{PromptID: 3, Text: "Pj", RunPart: 3, IsJSON: true},
	})
	require.Equal(t, ModeTwoPhaseMergeJSON, plan.Mode)
	assert.Equal(t, "Pa", plan.PartA[0].Text)
	assert.Equal(t, "Pb", plan.PartB[0].Text)
	assert.Equal(t, "Pj", plan.Merge[0].Text)
}

// TestExecuteTwoPhaseMergeOrderIndependentOfFinishOrder implements S2: Pa is
// slower than Pb, but the merge call must still see "A\n\nB".
func TestExecuteTwoPhaseMergeOrderIndependentOfFinishOrder(t *testing.T) {
	plan := BuildPlan([]promptstore.Stage{
		{PromptID: 1, Text: "Pa", RunPart: 1},
		{PromptID: 2, Text: "Pb", RunPart: 2},
		{PromptID: 3, Text: "Pj", RunPart: 3, IsJSON: true},
	})

	var mergeInput string
	var mu sync.Mutex
	caller := chain.CallerFunc(func(ctx context.Context, stageText string) (string, error) {
		switch {
		case strings.HasPrefix(stageText, "Pa"):
			time.Sleep(30 * time.Millisecond)
			return "A", nil
		case strings.HasPrefix(stageText, "Pb"):
			time.Sleep(2 * time.Millisecond)
			return "B", nil
		case strings.HasPrefix(stageText, "Pj"):
			mu.Lock()
			mergeInput = stageText
			mu.Unlock()
			return `{"factors":["A","B"]}`, nil
		}
		return "", nil
	})

	out, err := Execute(context.Background(), plan, "T", caller, true)
	require.NoError(t, err)
	assert.Equal(t, `{"factors":["A","B"]}`, out)
	assert.Contains(t, mergeInput, "A\n\nB")
}

func TestExecuteSingleChainUsesPromptOrder(t *testing.T) {
	plan := BuildPlan([]promptstore.Stage{
		{PromptID: 2, Text: "P_meth", RunPart: 1},
	})
	caller := chain.CallerFunc(func(ctx context.Context, stageText string) (string, error) {
		if strings.Contains(stageText, "Interviewer") {
			return "score=87", nil
		}
		return "unexpected", nil
	})
	out, err := Execute(context.Background(), plan, "Interviewer: ... Guest: ...", caller, false)
	require.NoError(t, err)
	assert.Equal(t, "score=87", out)
}
