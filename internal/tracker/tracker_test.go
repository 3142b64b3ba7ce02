package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetrack/voicetrack/internal/types"
)

func TestToADF(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty",
			text: "",
			want: `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[]}]}`,
		},
		{
			name: "whitespace only",
			text: "  \n\n ",
			want: `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[]}]}`,
		},
		{
			name: "single paragraph",
			text: "hello",
			want: `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`,
		},
		{
			name: "blank line splits paragraphs",
			text: "one\n\n\ntwo",
			want: `{"type":"doc","version":1,"content":[` +
				`{"type":"paragraph","content":[{"type":"text","text":"one"}]},` +
				`{"type":"paragraph","content":[{"type":"text","text":"two"}]}]}`,
		},
		{
			name: "single newline is a hard break",
			text: "a\r\nb",
			want: `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[` +
				`{"type":"text","text":"a"},{"type":"hardBreak"},{"type":"text","text":"b"}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(ToADF(tt.text))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestBuildCreateRequest(t *testing.T) {
	req := BuildCreateRequest(IssueFields{
		Project:     "ops",
		IssueType:   types.TypeBug,
		Summary:     "Fix login",
		Description: "Steps",
		Labels:      []string{"voice", "meeting"},
		Priority:    types.PriorityHigh,
		AssigneeRef: "acc-1",
	})

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":{
		"project":{"key":"OPS"},
		"issuetype":{"name":"Bug"},
		"summary":"Fix login",
		"description":{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"Steps"}]}]},
		"labels":["voice","meeting"],
		"priority":{"name":"High"},
		"assignee":{"accountId":"acc-1"}
	}}`, string(data))

	minimal, err := json.Marshal(BuildCreateRequest(IssueFields{Project: "OPS", IssueType: types.TypeTask, Summary: "s"}))
	require.NoError(t, err)
	assert.NotContains(t, string(minimal), "priority")
	assert.NotContains(t, string(minimal), "assignee")
	assert.Contains(t, string(minimal), `"labels":[]`)
}

func TestIssueFieldsValidate(t *testing.T) {
	valid := IssueFields{Project: "OPS", IssueType: types.TypeTask, Summary: "s"}
	require.NoError(t, valid.Validate())

	for name, f := range map[string]IssueFields{
		"no project": {IssueType: types.TypeTask, Summary: "s"},
		"no summary": {Project: "OPS", IssueType: types.TypeTask, Summary: "  "},
		"bad type":   {Project: "OPS", IssueType: "Epic", Summary: "s"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, f.Validate(), types.ErrPrecondition)
		})
	}
}

func TestNormalizeSite(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"acme.atlassian.net", "https://acme.atlassian.net", false},
		{"https://acme.atlassian.net/", "https://acme.atlassian.net", false},
		{"  https://acme.atlassian.net/jira/ ", "https://acme.atlassian.net/jira", false},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080", false},
		{"", "", true},
		{"ftp://acme", "", true},
		{"https://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSite(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrPrecondition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{Site: "acme.atlassian.net", APIToken: "t"})
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = NewClient(Config{Site: "acme.atlassian.net", Email: "a@b.c"})
	assert.ErrorIs(t, err, types.ErrPrecondition)

	_, err = NewClient(Config{Email: "a@b.c", APIToken: "t"})
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestCreateIssue(t *testing.T) {
	var gotBody CreateRequest
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/3/issue", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@example.com", user)
		assert.Equal(t, "token", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10001","key":"OPS-7","self":"` + "http://" + r.Host + `/rest/api/3/issue/10001"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Site: srv.URL + "/", Email: "bot@example.com", APIToken: "token", RequestsPerSecond: 100})
	require.NoError(t, err)

	created, err := c.CreateIssue(context.Background(), BuildCreateRequest(IssueFields{
		Project: "OPS", IssueType: types.TypeTask, Summary: "Do it", Description: "now", Labels: []string{"voice"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "OPS-7", created.Key)
	assert.Equal(t, "10001", created.ID)
	assert.Equal(t, srv.URL+"/browse/OPS-7", created.URL)
	assert.Equal(t, "Do it", gotBody.Fields.Summary)
	assert.Equal(t, "OPS", gotBody.Fields.Project.Key)
}

func TestCreateIssue_APIErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":{"summary":"required"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Site: srv.URL, Email: "e", APIToken: "t"})
	require.NoError(t, err)

	_, err = c.CreateIssue(context.Background(), BuildCreateRequest(IssueFields{Project: "OPS", IssueType: types.TypeTask, Summary: "x"}))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "summary")
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, calls)
}

func TestCreateIssue_ResponseWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Site: srv.URL, Email: "e", APIToken: "t"})
	require.NoError(t, err)

	_, err = c.CreateIssue(context.Background(), BuildCreateRequest(IssueFields{Project: "OPS", IssueType: types.TypeTask, Summary: "x"}))
	assert.ErrorContains(t, err, "no issue key")
}
