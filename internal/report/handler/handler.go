// Package handler is the thin HTTP layer over the report service. It decodes
// and validates request bodies, parses path identifiers, and translates
// domain errors into the shared JSON envelope. Business rules stay in the
// service.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"attest/internal/report/models"
	"attest/internal/report/service"
	"attest/internal/report/snapshot"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// Service defines the report operations the HTTP layer depends on.
type Service interface {
	CreateReport(ctx context.Context, docType string, docContext map[string]string) (*service.ReportDetails, error)
	GetReport(ctx context.Context, documentID id.DocumentID) (*service.ReportDetails, error)
	GetIssuedReport(ctx context.Context, lineageID id.LineageID) (*service.ReportDetails, error)
	UpdateSection(ctx context.Context, documentID id.DocumentID, key string, input service.UpdateSectionInput) (*models.SectionInstance, error)
	UpdateContext(ctx context.Context, documentID id.DocumentID, docContext map[string]string) (*models.Document, error)
	AddRecommendation(ctx context.Context, documentID id.DocumentID, title, priority string) (*models.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID, status string) (*models.Recommendation, error)
	ReplaceRecommendation(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID, title, priority string) (*models.Recommendation, error)
	DeleteRecommendation(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID) error
	CheckReadiness(ctx context.Context, documentID id.DocumentID) (models.ValidationResult, error)
	Issue(ctx context.Context, documentID id.DocumentID, changeLog string) (*models.Document, error)
	ForkNewVersion(ctx context.Context, lineageID id.LineageID) (*service.ReportDetails, error)
	ListRevisions(ctx context.Context, lineageID id.LineageID) ([]*models.RevisionRecord, error)
	GetRevision(ctx context.Context, lineageID id.LineageID, versionNumber int) (*snapshot.Snapshot, error)
}

// Handler wires report endpoints to the report service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a report handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the authenticated authoring and lifecycle endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/reports", h.HandleCreateReport)
	r.Get("/reports/{reportID}", h.HandleGetReport)
	r.Post("/reports/{reportID}/validate", h.HandleValidate)
	r.Post("/reports/{reportID}/issue", h.HandleIssue)
	r.Put("/reports/{reportID}/sections/{key}", h.HandleUpdateSection)
	r.Put("/reports/{reportID}/context", h.HandleUpdateContext)
	r.Post("/reports/{reportID}/recommendations", h.HandleAddRecommendation)
	r.Patch("/reports/{reportID}/recommendations/{recommendationID}", h.HandleUpdateRecommendation)
	r.Delete("/reports/{reportID}/recommendations/{recommendationID}", h.HandleDeleteRecommendation)
	r.Post("/lineages/{lineageID}/fork", h.HandleFork)
	r.Get("/lineages/{lineageID}/issued", h.HandleGetIssued)
	r.Get("/lineages/{lineageID}/revisions", h.HandleListRevisions)
}

// RegisterRenderer mounts the service-key guarded endpoints the renderer
// pulls document data from.
func (h *Handler) RegisterRenderer(r chi.Router) {
	r.Get("/lineages/{lineageID}/revisions/{version}", h.HandleGetRevision)
	r.Get("/reports/{reportID}/preview-source", h.HandleGetPreviewSource)
}

func (h *Handler) HandleCreateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[CreateReportRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.CreateReport(ctx, req.Type, req.Context)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "report created",
		"request_id", requestID,
		"document_id", details.Document.ID,
		"type", details.Document.Type,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromDetails(details))
}

func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.GetReport(r.Context(), documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromDetails(details))
}

func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.CheckReadiness(r.Context(), documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// An ineligible result is a successful check, not an error.
	httputil.WriteJSON(w, http.StatusOK, fromValidation(result))
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[IssueRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.Issue(ctx, documentID, req.ChangeLog)
	if err != nil {
		h.writeIssueError(ctx, w, requestID, documentID, err)
		return
	}

	h.logger.InfoContext(ctx, "report issued",
		"request_id", requestID,
		"document_id", doc.ID,
		"lineage_id", doc.LineageID,
		"version_number", doc.VersionNumber,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, fromDocument(doc))
}

// writeIssueError special-cases validation_blocked so the structured blocker
// list reaches the caller alongside the error envelope.
func (h *Handler) writeIssueError(ctx context.Context, w http.ResponseWriter, requestID string, documentID id.DocumentID, err error) {
	var blocked *models.ValidationBlockedError
	if errors.As(err, &blocked) {
		body := map[string]any{
			"error":             string(dErrors.CodeValidationBlocked),
			"error_description": dErrors.MessageOf(err),
			"blockers":          fromValidation(models.ValidationResult{Blockers: blocked.Blockers}).Blockers,
		}
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, body)
		return
	}

	h.logger.WarnContext(ctx, "issuance failed",
		"request_id", requestID,
		"document_id", documentID,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func (h *Handler) HandleUpdateSection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key := chi.URLParam(r, "key")

	req, ok := httputil.Decode[UpdateSectionRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	section, err := h.service.UpdateSection(ctx, documentID, key, service.UpdateSectionInput{
		Content:  req.Content,
		Outcome:  req.Outcome,
		Complete: req.Complete,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSection(section))
}

func (h *Handler) HandleUpdateContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[UpdateContextRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.UpdateContext(ctx, documentID, req.Context)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromDocument(doc))
}

func (h *Handler) HandleAddRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[AddRecommendationRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.AddRecommendation(ctx, documentID, req.Title, req.Priority)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromRecommendation(rec))
}

func (h *Handler) HandleUpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recID, err := id.ParseRecommendationID(chi.URLParam(r, "recommendationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[UpdateRecommendationRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var rec *models.Recommendation
	if req.Status != nil {
		rec, err = h.service.UpdateRecommendationStatus(ctx, documentID, recID, *req.Status)
	} else {
		rec, err = h.service.ReplaceRecommendation(ctx, documentID, recID, req.Replace.Title, req.Replace.Priority)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRecommendation(rec))
}

func (h *Handler) HandleDeleteRecommendation(w http.ResponseWriter, r *http.Request) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recID, err := id.ParseRecommendationID(chi.URLParam(r, "recommendationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeleteRecommendation(r.Context(), documentID, recID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleFork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	lineageID, err := id.ParseLineageID(chi.URLParam(r, "lineageID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.ForkNewVersion(ctx, lineageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "version forked",
		"request_id", requestID,
		"lineage_id", lineageID,
		"document_id", details.Document.ID,
		"version_number", details.Document.VersionNumber,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromDetails(details))
}

func (h *Handler) HandleGetIssued(w http.ResponseWriter, r *http.Request) {
	lineageID, err := id.ParseLineageID(chi.URLParam(r, "lineageID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.GetIssuedReport(r.Context(), lineageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromDetails(details))
}

func (h *Handler) HandleListRevisions(w http.ResponseWriter, r *http.Request) {
	lineageID, err := id.ParseLineageID(chi.URLParam(r, "lineageID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.service.ListRevisions(r.Context(), lineageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRevisions(records))
}

func (h *Handler) HandleGetRevision(w http.ResponseWriter, r *http.Request) {
	lineageID, err := id.ParseLineageID(chi.URLParam(r, "lineageID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "version must be a positive integer"))
		return
	}

	snap, err := h.service.GetRevision(r.Context(), lineageID, version)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSnapshot(snap))
}

// HandleGetPreviewSource serves the live draft contents for renderer
// previews. Distinct from the ledger-backed revision endpoint: previews read
// current state and carry no issuance guarantees.
func (h *Handler) HandleGetPreviewSource(w http.ResponseWriter, r *http.Request) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.GetReport(r.Context(), documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromDetails(details))
}
