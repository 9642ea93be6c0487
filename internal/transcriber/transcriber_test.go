package transcriber

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/audit"
	"voxpersona/internal/blobstore"
	"voxpersona/internal/objectstore"
	"voxpersona/internal/promptstore"
)

// fakeASR returns a fixed transcript per call and records every window it
// was asked to process, so tests can assert on windowing boundaries.
type fakeASR struct {
	windows [][]float32
}

func (f *fakeASR) Transcribe(_ context.Context, window []float32) (string, error) {
	f.windows = append(f.windows, append([]float32(nil), window...))
	return fmt.Sprintf("segment-%d", len(f.windows)), nil
}

// fakeRepo is a minimal in-memory audit.Repository sufficient for the
// idempotency contract under test.
type fakeRepo struct {
	bySource map[string]string
}

func newFakeRepo() *fakeRepo { return &fakeRepo{bySource: make(map[string]string)} }

func (r *fakeRepo) UpsertTranscription(_ context.Context, sourceName, text string) (int64, error) {
	r.bySource[sourceName] = text
	return int64(len(r.bySource)), nil
}

func (r *fakeRepo) TranscriptionBySourceName(_ context.Context, sourceName string) (string, bool, error) {
	text, ok := r.bySource[sourceName]
	return text, ok, nil
}

func (r *fakeRepo) Execute(context.Context, audit.AnalysisContext, string, string, string, int64, int64, int64) (int64, error) {
	return 0, fmt.Errorf("not used in these tests")
}

func (r *fakeRepo) GroupedReports(context.Context, *int64, *int64) ([]audit.ReportGroup, error) {
	return nil, nil
}

// encodeWAV16 writes a minimal mono, 16-bit PCM RIFF/WAVE blob for n
// samples, so decodeWAV has a real header to parse.
func encodeWAV16(samples []int16) []byte {
	var buf bytes.Buffer
	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    sampleRateHz,
		ByteRate:      sampleRateHz * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	_ = binary.Write(&buf, binary.LittleEndian, header)
	for _, s := range samples {
		_ = binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func newTestFacade(t *testing.T, asr ASR, repo audit.Repository) (*Facade, blobstore.Store) {
	t.Helper()
	blobs := blobstore.New(objectstore.NewMemoryStore())
	prompts := promptstore.NewMemory()
	prompts.SeedNamed(assignRolesPrompt, "Assign Client/Employee roles to this transcript.")
	f := &Facade{
		Blobs:         blobs,
		ASR:           asr,
		Repo:          repo,
		Prompts:       prompts,
		Caller:        echoCaller{},
		WindowSamples: 3, // tiny window so a short test clip spans multiple windows
	}
	return f, blobs
}

type echoCaller struct{}

func (echoCaller) Call(_ context.Context, stageText string) (string, error) {
	return "[Employee:] " + stageText, nil
}

func TestTranscribeAndLabelDesignModeSkipsRoleAssignment(t *testing.T) {
	asr := &fakeASR{}
	repo := newFakeRepo()
	f, blobs := newTestFacade(t, asr, repo)

	samples := make([]int16, 10)
	require.NoError(t, blobs.Put(context.Background(), "clip-1", encodeWAV16(samples)))

	text, err := f.TranscribeAndLabel(context.Background(), "clip-1", ModeDesign)
	require.NoError(t, err)
	assert.NotContains(t, text, "[Employee:]")
	assert.Greater(t, len(asr.windows), 1, "a 10-sample clip with a 3-sample window should span multiple windows")
}

func TestTranscribeAndLabelInterviewModeRunsRoleAssignment(t *testing.T) {
	asr := &fakeASR{}
	repo := newFakeRepo()
	f, blobs := newTestFacade(t, asr, repo)

	samples := make([]int16, 6)
	require.NoError(t, blobs.Put(context.Background(), "clip-2", encodeWAV16(samples)))

	text, err := f.TranscribeAndLabel(context.Background(), "clip-2", ModeInterview)
	require.NoError(t, err)
	assert.Contains(t, text, "[Employee:]")
}

func TestTranscribeAndLabelIsIdempotentBySourceName(t *testing.T) {
	asr := &fakeASR{}
	repo := newFakeRepo()
	f, blobs := newTestFacade(t, asr, repo)

	samples := make([]int16, 6)
	require.NoError(t, blobs.Put(context.Background(), "clip-3", encodeWAV16(samples)))

	first, err := f.TranscribeAndLabel(context.Background(), "clip-3", ModeDesign)
	require.NoError(t, err)
	callsAfterFirst := len(asr.windows)
	require.Greater(t, callsAfterFirst, 0)

	second, err := f.TranscribeAndLabel(context.Background(), "clip-3", ModeDesign)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, len(asr.windows), "a repeat call for the same source must not re-ASR")
}
