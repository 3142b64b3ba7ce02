package tracker

import (
	"fmt"
	"strings"

	"github.com/voicetrack/voicetrack/internal/types"
)

// IssueFields are the validated inputs of one create call
type IssueFields struct {
	Project     string
	IssueType   types.IssueType
	Summary     string
	Description string
	Labels      []string
	Priority    types.Priority // Optional
	AssigneeRef string         // Optional account id
}

// Validate checks the fields the tracker cannot do without
func (f *IssueFields) Validate() error {
	if strings.TrimSpace(f.Project) == "" {
		return fmt.Errorf("%w: project key is required (set JIRA_PROJECT_KEY)", types.ErrPrecondition)
	}
	if strings.TrimSpace(f.Summary) == "" {
		return fmt.Errorf("%w: summary is required", types.ErrPrecondition)
	}
	if !f.IssueType.IsValid() {
		return fmt.Errorf("%w: invalid issue type %q", types.ErrPrecondition, f.IssueType)
	}
	return nil
}

// CreateRequest is the body of POST /rest/api/3/issue
type CreateRequest struct {
	Fields CreateFields `json:"fields"`
}

// CreateFields mirrors the Jira "fields" object. Optional fields are
// omitted rather than sent empty.
type CreateFields struct {
	Project     KeyRef    `json:"project"`
	IssueType   NameRef   `json:"issuetype"`
	Summary     string    `json:"summary"`
	Description Document  `json:"description"`
	Labels      []string  `json:"labels"`
	Priority    *NameRef  `json:"priority,omitempty"`
	Assignee    *Assignee `json:"assignee,omitempty"`
}

// KeyRef references an entity by key
type KeyRef struct {
	Key string `json:"key"`
}

// NameRef references an entity by name
type NameRef struct {
	Name string `json:"name"`
}

// Assignee references a user by account id
type Assignee struct {
	AccountID string `json:"accountId"`
}

// BuildCreateRequest translates fields into the wire request. The
// description is converted to ADF here and nowhere else.
func BuildCreateRequest(f IssueFields) CreateRequest {
	labels := f.Labels
	if labels == nil {
		labels = []string{}
	}

	req := CreateRequest{Fields: CreateFields{
		Project:     KeyRef{Key: strings.ToUpper(strings.TrimSpace(f.Project))},
		IssueType:   NameRef{Name: string(f.IssueType)},
		Summary:     f.Summary,
		Description: ToADF(f.Description),
		Labels:      labels,
	}}
	if f.Priority != "" {
		req.Fields.Priority = &NameRef{Name: string(f.Priority)}
	}
	if ref := strings.TrimSpace(f.AssigneeRef); ref != "" {
		req.Fields.Assignee = &Assignee{AccountID: ref}
	}
	return req
}
