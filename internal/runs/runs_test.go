package runs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetrack/voicetrack/internal/fingerprint"
	"github.com/voicetrack/voicetrack/internal/mask"
	"github.com/voicetrack/voicetrack/internal/storage/files"
	"github.com/voicetrack/voicetrack/internal/types"
)

var runIDPattern = regexp.MustCompile(`^\d{8}T\d{6}Z-[0-9a-f]{8}$`)

func newTestService(t *testing.T) (*Service, *files.Store) {
	t.Helper()
	store, err := files.New(filepath.Join(t.TempDir(), ".voicetrack"))
	require.NoError(t, err)
	svc, err := NewService(store, mask.New())
	require.NoError(t, err)
	return svc, store
}

func TestCreateRun(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	transcript := "- email kim@example.com about launch\n- fix login"

	run, err := svc.CreateRun(ctx, CreateRunInput{Transcript: transcript, Title: "weekly sync"})
	require.NoError(t, err)

	assert.Regexp(t, runIDPattern, run.RunID)
	assert.Equal(t, types.SourceTranscript, run.Source)
	assert.Equal(t, types.StatusPendingCandidates, run.Status)
	assert.Equal(t, fingerprint.Transcript(transcript), run.TranscriptFingerprint)
	assert.Equal(t, "weekly sync", run.Title)
	assert.Contains(t, run.TranscriptPreview, "[email]")
	assert.NotContains(t, run.TranscriptPreview, "kim@example.com")
	assert.Empty(t, run.Candidates)

	// Raw transcript is kept unmasked
	raw, err := svc.ReadTranscript(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, transcript, raw)

	stored, err := store.LoadRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.TranscriptRef, stored.TranscriptRef)
}

func TestCreateRun_EmptyTranscript(t *testing.T) {
	svc, store := newTestService(t)

	for _, text := range []string{"", "   ", "\n\t\n"} {
		_, err := svc.CreateRun(context.Background(), CreateRunInput{Transcript: text})
		assert.ErrorIs(t, err, types.ErrPrecondition)
	}

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs, "no run is created for empty input")
}

func TestCreateRun_PreviewBounded(t *testing.T) {
	svc, _ := newTestService(t)

	run, err := svc.CreateRun(context.Background(), CreateRunInput{
		Source:     types.SourceAudio,
		Transcript: strings.Repeat("가", 1000),
		Transcribe: &types.TranscribeInfo{Model: "whisper-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, PreviewLength, len([]rune(run.TranscriptPreview)))
	assert.Equal(t, types.SourceAudio, run.Source)
	assert.Equal(t, "whisper-1", run.Transcribe.Model)
}

func TestCreateRun_InvalidSource(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateRun(context.Background(), CreateRunInput{Source: "video", Transcript: "x"})
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestLoadRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.CreateRun(ctx, CreateRunInput{Transcript: "hello"})
	require.NoError(t, err)

	loaded, err := svc.LoadRun(ctx, created.RunID)
	require.NoError(t, err)

	want, _ := json.Marshal(created)
	got, _ := json.Marshal(loaded)
	assert.JSONEq(t, string(want), string(got))

	_, err = svc.LoadRun(ctx, "20990101T000000Z-00000000")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestLoadRunFile(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	created, err := svc.CreateRun(ctx, CreateRunInput{Transcript: "hello"})
	require.NoError(t, err)

	path := filepath.Join(store.Location(), "runs", created.RunID+".json")
	loaded, err := svc.LoadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, created.RunID, loaded.RunID)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"run_id":"x"}`), 0600))
	_, err = svc.LoadRunFile(bad)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	clock := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	run, err := svc.CreateRun(ctx, CreateRunInput{Transcript: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(run.RunID, "20261015T120000Z-"))

	clock = clock.Add(time.Minute)
	run.Status = types.StatusPendingApproval
	require.NoError(t, svc.SaveRun(ctx, run))

	loaded, err := svc.LoadRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingApproval, loaded.Status)
	assert.True(t, clock.Equal(loaded.UpdatedAt))
	assert.True(t, loaded.CreatedAt.Before(loaded.UpdatedAt))

	run.Status = "bogus"
	assert.ErrorIs(t, svc.SaveRun(ctx, run), types.ErrValidation)
}

func TestReadTranscript_FingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	run, err := svc.CreateRun(ctx, CreateRunInput{Transcript: "hello"})
	require.NoError(t, err)

	run.TranscriptFingerprint = fingerprint.Transcript("tampered")
	_, err = svc.ReadTranscript(ctx, run)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestNewRunID(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))

	first := NewRunID(now)
	second := NewRunID(now)

	assert.Regexp(t, runIDPattern, first)
	assert.True(t, strings.HasPrefix(first, "20261015T030000Z-"))
	assert.NotEqual(t, first, second)
}
