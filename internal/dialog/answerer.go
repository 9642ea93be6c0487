// Package dialog implements the Dialog Answerer (C8): it classifies a free
// text query into a RAG scope, then answers it either with a single fast
// call over the top-k chunks or, in deep mode, a per-chunk citation
// fan-out followed by a synthesis call.
package dialog

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"voxpersona/internal/apperr"
	"voxpersona/internal/cache"
	"voxpersona/internal/chain"
	"voxpersona/internal/promptstore"
	"voxpersona/internal/rag"
)

const classifyPromptName = "classify"

const (
	defaultFastTopK = 15
	defaultDeepTopK = 40
)

// Answerer is the C8 contract: Answer(q, mode_hint) -> text.
type Answerer struct {
	Prompts promptstore.Store
	Rag     *rag.Manager
	Caller  chain.Caller
	Cache   *cache.Cache // optional; nil disables fast-mode answer caching

	FastTopK int
	DeepTopK int
}

func (a *Answerer) fastTopK() int {
	if a.FastTopK > 0 {
		return a.FastTopK
	}
	return defaultFastTopK
}

func (a *Answerer) deepTopK() int {
	if a.DeepTopK > 0 {
		return a.DeepTopK
	}
	return defaultDeepTopK
}

// Answer classifies q into a scope, then resolves it against the fast or
// deep search path depending on deepSearch (SessionState's deep_search
// flag). A classifier response of "undefined" (case-insensitive) or empty
// text surfaces apperr.Unrouted.
func (a *Answerer) Answer(ctx context.Context, q string, deepSearch bool) (string, error) {
	scope, err := a.classify(ctx, q)
	if err != nil {
		return "", err
	}

	if !deepSearch {
		return a.answerFast(ctx, scope, q)
	}
	return a.answerDeep(ctx, scope, q)
}

func (a *Answerer) classify(ctx context.Context, q string) (string, error) {
	promptText, err := a.Prompts.ResolveNamed(ctx, classifyPromptName)
	if err != nil {
		return "", err
	}
	raw, err := a.Caller.Call(ctx, promptText+"\n\n"+q)
	if err != nil {
		return "", err
	}
	scope := strings.TrimSpace(raw)
	if scope == "" || strings.EqualFold(scope, "undefined") {
		return "", apperr.New(apperr.Unrouted, "dialog classifier returned undefined for query")
	}
	return scope, nil
}

// answerFast implements the k=15 single-call path: one similarity query,
// one LLM call over the concatenated chunks, with an optional cache of the
// answer keyed by scope + query.
func (a *Answerer) answerFast(ctx context.Context, scope, q string) (string, error) {
	if a.Cache != nil {
		if answer, ok := a.Cache.DialogAnswer(ctx, scope, q); ok {
			return answer, nil
		}
	}

	chunks, err := a.Rag.Query(ctx, scope, q, a.fastTopK())
	if err != nil {
		return "", err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	stageText := strings.Join(texts, "\n\n") + "\n\nQuestion:\n" + q

	answer, err := a.Caller.Call(ctx, stageText)
	if err != nil {
		return "", err
	}

	if a.Cache != nil {
		a.Cache.SetDialogAnswer(ctx, scope, q, answer)
	}
	return answer, nil
}

// answerDeep retrieves a wider candidate set, fans out one LLM call per
// chunk to extract per-chunk citations, and synthesises a final answer
// from the citations in similarity-rank order (not finish order). If ctx
// is cancelled mid-fan-out, errgroup cancels the shared context; any
// per-chunk call that has not yet acquired a credential withdraws, while
// one already in flight completes regardless (chain.Caller implementations
// run the completion itself on a context with cancellation stripped, per
// their own contract).
func (a *Answerer) answerDeep(ctx context.Context, scope, q string) (string, error) {
	chunks, err := a.Rag.Query(ctx, scope, q, a.deepTopK())
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", apperr.New(apperr.IndexUnavailable, "no chunks retrieved for scope "+scope)
	}

	citations := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			prompt := fmt.Sprintf("Extract the passages relevant to %q from this text:\n\n%s", q, c.Text)
			out, err := a.Caller.Call(gctx, prompt)
			if err != nil {
				return err
			}
			citations[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	synthesis := fmt.Sprintf("Using these extracted citations, answer %q:\n\n%s", q, strings.Join(citations, "\n\n"))
	return a.Caller.Call(ctx, synthesis)
}
