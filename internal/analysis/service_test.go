package analysis

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/audit"
	"voxpersona/internal/blobstore"
	"voxpersona/internal/chain"
	"voxpersona/internal/objectstore"
	"voxpersona/internal/promptstore"
	"voxpersona/internal/session"
	"voxpersona/internal/transcriber"
)

type fakeASR struct{}

func (fakeASR) Transcribe(_ context.Context, _ []float32) (string, error) {
	return "raw transcript window", nil
}

type fakeRepo struct {
	executed bool
	gotText  string
	gotInput string
}

func (r *fakeRepo) UpsertTranscription(_ context.Context, _, text string) (int64, error) {
	return 1, nil
}

func (r *fakeRepo) TranscriptionBySourceName(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (r *fakeRepo) Execute(_ context.Context, _ audit.AnalysisContext, _, transcriptionText, auditText string, _, _, _ int64) (int64, error) {
	r.executed = true
	r.gotInput = transcriptionText
	r.gotText = auditText
	return 99, nil
}

func (r *fakeRepo) GroupedReports(context.Context, *int64, *int64) ([]audit.ReportGroup, error) {
	return nil, nil
}

// encodeSilentWAV writes a minimal mono, 16-bit PCM RIFF/WAVE blob of n
// silent samples, giving the facade's WAV decoder a real header to parse.
func encodeSilentWAV(n int) []byte {
	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID: [4]byte{'R', 'I', 'F', 'F'}, Format: [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID: [4]byte{'f', 'm', 't', ' '}, Subchunk1Size: 16, AudioFormat: 1,
		NumChannels: 1, SampleRate: 16000, ByteRate: 32000, BlockAlign: 2, BitsPerSample: 16,
		Subchunk2ID: [4]byte{'d', 'a', 't', 'a'}, Subchunk2Size: uint32(n * 2),
	}
	header.ChunkSize = 36 + header.Subchunk2Size

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, header)
	for i := 0; i < n; i++ {
		_ = binary.Write(&buf, binary.LittleEndian, int16(0))
	}
	return buf.Bytes()
}

func TestExecuteRunsSingleChainAndPersists(t *testing.T) {
	prompts := promptstore.NewMemory()
	prompts.Seed(1, 2, 3, []promptstore.Stage{{PromptID: 1, Text: "Summarise the visit."}})

	blobs := blobstore.New(objectstore.NewMemoryStore())
	require.NoError(t, blobs.Put(context.Background(), "audio-1", encodeSilentWAV(10)))

	facade := &transcriber.Facade{
		Blobs:         blobs,
		ASR:           fakeASR{},
		Repo:          &fakeRepo{},
		Prompts:       prompts,
		WindowSamples: 5,
	}

	repo := &fakeRepo{}
	caller := chain.CallerFunc(func(_ context.Context, stageText string) (string, error) {
		return "final:" + stageText, nil
	})

	svc := &Service{Prompts: prompts, Transcriber: facade, Caller: caller, Repo: repo}

	auditID, finalText, err := svc.Execute(context.Background(), audit.AnalysisContext{
		Employee: "Jane", Place: "Grand Hotel", Date: time.Now(), Mode: "design",
	}, session.Selection{ScenarioID: 1, ReportTypeID: 2, BuildingTypeID: 3, SourceName: "audio-1"})

	require.NoError(t, err)
	assert.Equal(t, int64(99), auditID)
	assert.Contains(t, finalText, "Summarise the visit.")
	assert.True(t, repo.executed)
	assert.Equal(t, finalText, repo.gotText)
	assert.Contains(t, repo.gotInput, "raw transcript window")
}
