package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetrack/voicetrack/internal/fingerprint"
	"github.com/voicetrack/voicetrack/internal/storage/files"
	"github.com/voicetrack/voicetrack/internal/tracker"
	"github.com/voicetrack/voicetrack/internal/types"
)

type mockTracker struct {
	calls    int
	err      error
	requests []tracker.CreateRequest
}

func (m *mockTracker) CreateIssue(ctx context.Context, req tracker.CreateRequest) (*tracker.CreatedIssue, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	key := fmt.Sprintf("OPS-%d", m.calls)
	return &tracker.CreatedIssue{Key: key, URL: "https://acme.atlassian.net/browse/" + key}, nil
}

type failingLedger struct{}

func (failingLedger) Lookup(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	return nil, nil
}

func (failingLedger) Record(ctx context.Context, rec *types.IdempotencyRecord) error {
	return errors.New("disk full")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*Gateway, *mockTracker, *files.Store) {
	t.Helper()
	store, err := files.New(t.TempDir())
	require.NoError(t, err)
	tr := &mockTracker{}
	g, err := New(&Config{Ledger: store, Tracker: tr, Site: "https://acme.atlassian.net/", Logger: quietLogger()})
	require.NoError(t, err)
	return g, tr, store
}

func sampleRequest() Request {
	return Request{
		Fields: tracker.IssueFields{
			Project:     "OPS",
			IssueType:   types.TypeTask,
			Summary:     "Fix login",
			Description: "Users cannot log in",
			Labels:      []string{"voice"},
		},
		IdempotencyKey: fingerprint.CandidateKey("OPS", "Task", "Fix login", fingerprint.Transcript("t"), 1),
		RunID:          "20261015T120000Z-abcd1234",
		Index:          1,
	}
}

func TestCreate_Idempotent(t *testing.T) {
	ctx := context.Background()
	g, tr, store := setup(t)

	first, err := g.Create(ctx, sampleRequest())
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.False(t, first.Deduped)
	assert.Equal(t, "OPS-1", first.IssueKey)

	second, err := g.Create(ctx, sampleRequest())
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Deduped)
	assert.Equal(t, first.IssueKey, second.IssueKey)
	assert.Equal(t, first.IssueURL, second.IssueURL)

	assert.Equal(t, 1, tr.calls, "dedup must not touch the network")

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "OPS-1", rec.IssueKey)
	assert.Equal(t, "https://acme.atlassian.net", rec.Site)
	assert.Equal(t, "OPS", rec.Project)
	assert.Equal(t, "Task", rec.IssueType)
	assert.Equal(t, 1, rec.CandidateIndex)
	assert.Equal(t, first.RequestFingerprint, rec.RequestFingerprint)
}

func TestCreate_DryRunDoesNotPoisonLedger(t *testing.T) {
	ctx := context.Background()
	g, tr, store := setup(t)

	req := sampleRequest()
	req.DryRun = true
	out, err := g.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.True(t, out.DryRun)
	assert.Empty(t, out.IssueKey)
	assert.True(t, fingerprint.IsKey(out.RequestFingerprint))
	assert.Equal(t, 0, tr.calls)

	var shape tracker.CreateRequest
	require.NoError(t, json.Unmarshal(out.Request, &shape))
	assert.Equal(t, "Fix login", shape.Fields.Summary)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	live, err := g.Create(ctx, sampleRequest())
	require.NoError(t, err)
	assert.False(t, live.Deduped)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, out.RequestFingerprint, live.RequestFingerprint)
}

func TestCreate_RemoteFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	g, tr, store := setup(t)
	tr.err = &tracker.APIError{Status: 400, Body: `{"errors":{"priority":"invalid"}}`}

	out, err := g.Create(ctx, sampleRequest())
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, 400, out.Status)
	assert.Contains(t, out.Error, "priority")

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "failed attempts are never recorded")

	tr.err = nil
	retry, err := g.Create(ctx, sampleRequest())
	require.NoError(t, err)
	assert.True(t, retry.OK)
	assert.False(t, retry.Deduped)
	assert.Equal(t, 2, tr.calls)
}

func TestCreate_TransportFailureHasNoStatus(t *testing.T) {
	g, tr, _ := setup(t)
	tr.err = errors.New("connection refused")

	out, err := g.Create(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Zero(t, out.Status)
	assert.Contains(t, out.Error, "connection refused")
}

func TestCreate_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing project", func(r *Request) { r.Fields.Project = "" }},
		{"missing summary", func(r *Request) { r.Fields.Summary = " " }},
		{"invalid key", func(r *Request) { r.IdempotencyKey = "abc" }},
		{"missing key", func(r *Request) { r.IdempotencyKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, tr, _ := setup(t)
			req := sampleRequest()
			tt.mutate(&req)

			_, err := g.Create(context.Background(), req)
			assert.ErrorIs(t, err, types.ErrPrecondition)
			assert.Equal(t, 0, tr.calls)
		})
	}
}

func TestNew_Preconditions(t *testing.T) {
	store, err := files.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(&Config{Tracker: &mockTracker{}, Site: "s"})
	assert.ErrorIs(t, err, types.ErrPrecondition)
	_, err = New(&Config{Ledger: store, Site: "s"})
	assert.ErrorIs(t, err, types.ErrPrecondition)
	_, err = New(&Config{Ledger: store, Tracker: &mockTracker{}})
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestCreate_LedgerFailureAfterCreate(t *testing.T) {
	tr := &mockTracker{}
	g, err := New(&Config{Ledger: failingLedger{}, Tracker: tr, Site: "https://acme.atlassian.net", Logger: quietLogger()})
	require.NoError(t, err)

	out, err := g.Create(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "OPS-1", out.IssueKey)
	assert.Contains(t, out.Warning, "disk full")
	assert.Equal(t, 1, tr.calls)
}
