// Package transcriber's whisper.go adapts the whisper.cpp Go bindings to
// the ASR interface: one Context per Transcribe call (the bindings do not
// support concurrent Process calls against a single Context), with the
// configured language and thread count applied before processing.
package transcriber

import (
	"context"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"voxpersona/internal/apperr"
	"voxpersona/internal/config"
)

// WhisperASR transcribes audio windows with a locally loaded whisper.cpp
// model.
type WhisperASR struct {
	model    whisper.Model
	language string
	threads  uint
}

// NewWhisperASR loads the model at cfg.ModelPath. The returned ASR is safe
// for sequential use by one Facade; whisper.cpp's C bindings serialise
// access to a Context internally, so callers should not fan out concurrent
// Transcribe calls against the same WhisperASR.
func NewWhisperASR(cfg config.WhisperConfig) (*WhisperASR, error) {
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load whisper model "+cfg.ModelPath, err)
	}
	threads := uint(cfg.Threads)
	if threads == 0 {
		threads = 4
	}
	return &WhisperASR{model: model, language: cfg.Language, threads: threads}, nil
}

// Close releases the underlying model.
func (w *WhisperASR) Close() error {
	return w.model.Close()
}

// Transcribe runs one ASR pass over window and concatenates the resulting
// segments with single-space joins.
func (w *WhisperASR) Transcribe(ctx context.Context, window []float32) (string, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "create whisper context", err)
	}
	if w.language != "" {
		if err := wctx.SetLanguage(w.language); err != nil {
			return "", apperr.Wrap(apperr.Internal, "set whisper language", err)
		}
	}
	wctx.SetThreads(w.threads)

	if err := wctx.Process(window, nil, nil, nil); err != nil {
		return "", apperr.Wrap(apperr.Unavailable, "whisper process", err)
	}

	var segments []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		segments = append(segments, strings.TrimSpace(segment.Text))
	}
	return strings.Join(segments, " "), nil
}
