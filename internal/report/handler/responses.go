package handler

import (
	"encoding/json"
	"time"

	"attest/internal/report/models"
	"attest/internal/report/service"
	"attest/internal/report/snapshot"
)

// DocumentResponse is the HTTP shape of one version of a report.
type DocumentResponse struct {
	ID            string            `json:"id"`
	LineageID     string            `json:"lineage_id"`
	Type          string            `json:"type"`
	State         string            `json:"state"`
	VersionNumber int               `json:"version_number"`
	Context       map[string]string `json:"context"`
	ChangeLog     string            `json:"change_log,omitempty"`
	IssuedAt      *time.Time        `json:"issued_at,omitempty"`
	IssuedBy      string            `json:"issued_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SectionResponse is the HTTP shape of one section instance.
type SectionResponse struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Outcome     string          `json:"outcome"`
	Complete    bool            `json:"complete"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RecommendationResponse is the HTTP shape of a recommendation.
type RecommendationResponse struct {
	ID                 string     `json:"id"`
	ReferenceCode      string     `json:"reference_code,omitempty"`
	FirstRaisedVersion int        `json:"first_raised_version,omitempty"`
	Title              string     `json:"title"`
	Priority           string     `json:"priority"`
	Status             string     `json:"status"`
	SupersededBy       string     `json:"superseded_by,omitempty"`
	Deleted            bool       `json:"deleted,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ReportResponse bundles a document with its contents.
type ReportResponse struct {
	Document        DocumentResponse         `json:"document"`
	Sections        []SectionResponse        `json:"sections"`
	Recommendations []RecommendationResponse `json:"recommendations"`
}

// ValidationResponse is the HTTP shape of a readiness check.
type ValidationResponse struct {
	Eligible bool              `json:"eligible"`
	Blockers []BlockerResponse `json:"blockers"`
}

// BlockerResponse is one structured reason the report is not ready.
type BlockerResponse struct {
	Type       string `json:"type"`
	SectionKey string `json:"section_key,omitempty"`
	FieldKey   string `json:"field_key,omitempty"`
	Message    string `json:"message"`
}

// RevisionResponse is one entry of the lineage's issuance history. The
// snapshot body is served by the dedicated revision endpoint, not inlined
// into the list.
type RevisionResponse struct {
	VersionNumber int       `json:"version_number"`
	Status        string    `json:"status"`
	IssuedAt      time.Time `json:"issued_at"`
	IssuedBy      string    `json:"issued_by"`
}

func fromDocument(doc *models.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:            doc.ID.String(),
		LineageID:     doc.LineageID.String(),
		Type:          doc.Type,
		State:         string(doc.State),
		VersionNumber: doc.VersionNumber,
		Context:       doc.Context,
		ChangeLog:     doc.ChangeLog,
		IssuedAt:      doc.IssuedAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if !doc.IssuedBy.IsNil() {
		resp.IssuedBy = doc.IssuedBy.String()
	}
	return resp
}

func fromSection(sec *models.SectionInstance) SectionResponse {
	return SectionResponse{
		ID:          sec.ID.String(),
		Key:         sec.Key,
		Outcome:     string(sec.Outcome),
		Complete:    sec.IsComplete(),
		CompletedAt: sec.CompletedAt,
		Content:     sec.Content,
		UpdatedAt:   sec.UpdatedAt,
	}
}

func fromRecommendation(rec *models.Recommendation) RecommendationResponse {
	resp := RecommendationResponse{
		ID:                 rec.ID.String(),
		ReferenceCode:      rec.ReferenceCode,
		FirstRaisedVersion: rec.FirstRaisedVersion,
		Title:              rec.Title,
		Priority:           string(rec.Priority),
		Status:             string(rec.Status),
		Deleted:            rec.Deleted,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if rec.SupersededBy != nil {
		resp.SupersededBy = rec.SupersededBy.String()
	}
	return resp
}

func fromDetails(details *service.ReportDetails) ReportResponse {
	resp := ReportResponse{
		Document:        fromDocument(details.Document),
		Sections:        make([]SectionResponse, 0, len(details.Sections)),
		Recommendations: make([]RecommendationResponse, 0, len(details.Recommendations)),
	}
	for _, sec := range details.Sections {
		resp.Sections = append(resp.Sections, fromSection(sec))
	}
	for _, rec := range details.Recommendations {
		resp.Recommendations = append(resp.Recommendations, fromRecommendation(rec))
	}
	return resp
}

func fromValidation(result models.ValidationResult) ValidationResponse {
	resp := ValidationResponse{
		Eligible: result.Eligible,
		Blockers: make([]BlockerResponse, 0, len(result.Blockers)),
	}
	for _, b := range result.Blockers {
		resp.Blockers = append(resp.Blockers, BlockerResponse{
			Type:       string(b.Type),
			SectionKey: b.SectionKey,
			FieldKey:   b.FieldKey,
			Message:    b.Message,
		})
	}
	return resp
}

func fromRevisions(records []*models.RevisionRecord) []RevisionResponse {
	resp := make([]RevisionResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, RevisionResponse{
			VersionNumber: rec.VersionNumber,
			Status:        rec.Status,
			IssuedAt:      rec.IssuedAt,
			IssuedBy:      rec.IssuedBy.String(),
		})
	}
	return resp
}

func fromSnapshot(snap *snapshot.Snapshot) ReportResponse {
	resp := ReportResponse{
		Document:        fromDocument(snap.Document),
		Sections:        make([]SectionResponse, 0, len(snap.Sections)),
		Recommendations: make([]RecommendationResponse, 0, len(snap.Recommendations)),
	}
	for _, sec := range snap.Sections {
		resp.Sections = append(resp.Sections, fromSection(sec))
	}
	for _, rec := range snap.Recommendations {
		resp.Recommendations = append(resp.Recommendations, fromRecommendation(rec))
	}
	return resp
}
