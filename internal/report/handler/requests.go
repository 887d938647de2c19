package handler

import (
	"encoding/json"
	"strings"

	dErrors "attest/pkg/domain-errors"
)

// CreateReportRequest is the HTTP request body for POST /reports.
type CreateReportRequest struct {
	Type    string            `json:"type"`
	Context map[string]string `json:"context"`
}

func (r *CreateReportRequest) Validate() error {
	r.Type = strings.TrimSpace(r.Type)
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	for k := range r.Context {
		if strings.TrimSpace(k) == "" {
			return dErrors.New(dErrors.CodeValidation, "context keys cannot be empty")
		}
	}
	return nil
}

// UpdateSectionRequest is the HTTP request body for PUT /reports/{id}/sections/{key}.
// All fields are optional; absent fields leave the section untouched.
type UpdateSectionRequest struct {
	Content  json.RawMessage `json:"content,omitempty"`
	Outcome  *string         `json:"outcome,omitempty"`
	Complete *bool           `json:"complete,omitempty"`
}

func (r *UpdateSectionRequest) Validate() error {
	if r.Content == nil && r.Outcome == nil && r.Complete == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one of content, outcome, complete is required")
	}
	return nil
}

// UpdateContextRequest is the HTTP request body for PUT /reports/{id}/context.
// The context map replaces the document's flags wholesale.
type UpdateContextRequest struct {
	Context map[string]string `json:"context"`
}

func (r *UpdateContextRequest) Validate() error {
	if r.Context == nil {
		return dErrors.New(dErrors.CodeValidation, "context is required")
	}
	for k := range r.Context {
		if strings.TrimSpace(k) == "" {
			return dErrors.New(dErrors.CodeValidation, "context keys cannot be empty")
		}
	}
	return nil
}

// AddRecommendationRequest is the HTTP request body for POST /reports/{id}/recommendations.
type AddRecommendationRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

func (r *AddRecommendationRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

// UpdateRecommendationRequest is the HTTP request body for
// PATCH /reports/{id}/recommendations/{rid}. Exactly one of status or replace
// must be present: a status transition, or replacement by a reworded
// recommendation that supersedes this one.
type UpdateRecommendationRequest struct {
	Status  *string             `json:"status,omitempty"`
	Replace *ReplaceWithRequest `json:"replace,omitempty"`
}

// ReplaceWithRequest describes the replacement recommendation.
type ReplaceWithRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

func (r *UpdateRecommendationRequest) Validate() error {
	if (r.Status == nil) == (r.Replace == nil) {
		return dErrors.New(dErrors.CodeValidation, "exactly one of status or replace is required")
	}
	if r.Status != nil && strings.TrimSpace(*r.Status) == "" {
		return dErrors.New(dErrors.CodeValidation, "status cannot be empty")
	}
	if r.Replace != nil {
		r.Replace.Title = strings.TrimSpace(r.Replace.Title)
		if r.Replace.Title == "" {
			return dErrors.New(dErrors.CodeValidation, "replace.title is required")
		}
	}
	return nil
}

// IssueRequest is the HTTP request body for POST /reports/{id}/issue.
// ChangeLog is required from version two onward; the service enforces that
// rule because it knows the version.
type IssueRequest struct {
	ChangeLog string `json:"change_log"`
}

func (r *IssueRequest) Validate() error {
	r.ChangeLog = strings.TrimSpace(r.ChangeLog)
	return nil
}
