// Package planner implements the Report Planner (C5): it maps a resolved
// prompt set to a plan of one or more chains and executes them. It does
// not persist anything; internal/analysis stores the result through the
// Audit Repository.
package planner

import (
	"sort"

	"voxpersona/internal/chain"
	"voxpersona/internal/promptstore"
)

// Mode is the shape of a PromptChainPlan.
type Mode int

const (
	// ModeSingle runs one chain, stages in the stable order, with any
	// is_json stage moved to the end regardless of its run_part position.
	ModeSingle Mode = iota
	// ModeTwoPhaseMergeJSON runs part_1 and part_2 as independent chains,
	// concatenates their outputs (A then B), and feeds the result into a
	// final single-stage JSON-formatting chain.
	ModeTwoPhaseMergeJSON
)

// Plan is the transient PromptChainPlan: a set of chains ready to execute.
type Plan struct {
	Mode Mode

	// Single chain, populated when Mode == ModeSingle.
	Chain []chain.Stage

	// Two-phase fields, populated when Mode == ModeTwoPhaseMergeJSON.
	PartA []chain.Stage
	PartB []chain.Stage
	Merge []chain.Stage // the is_json stage, as a one-stage chain
}

// BuildPlan maps resolved prompt stages to a plan shape. Unknown or
// ambiguous combinations fall back to ModeSingle, per the closed plan-table
// design (spec.md §9): two_phase_merge_json only applies when there are
// exactly two distinct non-JSON run_part groups and exactly one is_json
// stage.
func BuildPlan(stages []promptstore.Stage) Plan {
	sorted := append([]promptstore.Stage(nil), stages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RunPart != sorted[j].RunPart {
			return sorted[i].RunPart < sorted[j].RunPart
		}
		return sorted[i].PromptID < sorted[j].PromptID
	})

	var jsonStages, others []promptstore.Stage
	for _, s := range sorted {
		if s.IsJSON {
			jsonStages = append(jsonStages, s)
		} else {
			others = append(others, s)
		}
	}

	runParts := distinctRunParts(others)

	if len(jsonStages) == 1 && len(runParts) == 2 {
		partA := stagesInRunPart(others, runParts[0])
		partB := stagesInRunPart(others, runParts[1])
		return Plan{
			Mode:  ModeTwoPhaseMergeJSON,
			PartA: toChainStages(partA),
			PartB: toChainStages(partB),
			Merge: toChainStages(jsonStages),
		}
	}

	// Single chain: non-JSON stages in stable order, JSON stage(s) last
	// regardless of where they sorted by run_part.
	ordered := append(append([]promptstore.Stage(nil), others...), jsonStages...)
	return Plan{Mode: ModeSingle, Chain: toChainStages(ordered)}
}

func distinctRunParts(stages []promptstore.Stage) []int {
	seen := map[int]bool{}
	var parts []int
	for _, s := range stages {
		if !seen[s.RunPart] {
			seen[s.RunPart] = true
			parts = append(parts, s.RunPart)
		}
	}
	sort.Ints(parts)
	return parts
}

func stagesInRunPart(stages []promptstore.Stage, runPart int) []promptstore.Stage {
	var out []promptstore.Stage
	for _, s := range stages {
		if s.RunPart == runPart {
			out = append(out, s)
		}
	}
	return out
}

func toChainStages(stages []promptstore.Stage) []chain.Stage {
	out := make([]chain.Stage, len(stages))
	for i, s := range stages {
		out[i] = chain.Stage{Text: s.Text, IsJSON: s.IsJSON}
	}
	return out
}
