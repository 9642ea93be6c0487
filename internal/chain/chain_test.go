package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunComposesStagesInOrder verifies Run(P1,P2,P3) == f3(f2(f1(input)))
// for mocked stage functions, per the chain composition property.
func TestRunComposesStagesInOrder(t *testing.T) {
	f1 := func(x string) string { return "f1(" + x + ")" }
	f2 := func(x string) string { return "f2(" + x + ")" }
	f3 := func(x string) string { return "f3(" + x + ")" }

	caller := CallerFunc(func(ctx context.Context, stageText string) (string, error) {
		switch {
		case strings.HasPrefix(stageText, "P1"):
			return f1(stripPrompt(stageText)), nil
		case strings.HasPrefix(stageText, "P2"):
			return f2(stripPrompt(stageText)), nil
		case strings.HasPrefix(stageText, "P3"):
			return f3(stripPrompt(stageText)), nil
		}
		return "", errors.New("unexpected stage")
	})

	out, err := Run(context.Background(), caller, []Stage{
		{Text: "P1"}, {Text: "P2"}, {Text: "P3"},
	}, "input")
	require.NoError(t, err)
	assert.Equal(t, f3(f2(f1("input"))), out)
}

func stripPrompt(stageText string) string {
	if i := strings.Index(stageText, "\n\n"); i >= 0 {
		rest := stageText[i+2:]
		rest = strings.TrimPrefix(rest, "Text:\n")
		return rest
	}
	return stageText
}

func TestRunAbortsOnStageError(t *testing.T) {
	calls := 0
	caller := CallerFunc(func(ctx context.Context, stageText string) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	_, err := Run(context.Background(), caller, []Stage{{Text: "P1"}, {Text: "P2"}, {Text: "P3"}}, "in")
	require.Error(t, err)
	assert.Equal(t, 2, calls, "Run must not call stage 3 after stage 2 fails")
}

func TestRunStage0ReceivesRawInput(t *testing.T) {
	var got string
	caller := CallerFunc(func(ctx context.Context, stageText string) (string, error) {
		got = stageText
		return "out", nil
	})
	_, err := Run(context.Background(), caller, []Stage{{Text: "PROMPT"}}, "INPUT")
	require.NoError(t, err)
	assert.Equal(t, "PROMPT\n\nINPUT", got)
}
