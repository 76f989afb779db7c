package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/service"
	"github.com/DukeRupert/tradeflow/internal/storage"
)

const (
	// multipartMemory is the part of an upload kept in memory before
	// spilling to a temp file.
	multipartMemory = 8 << 20

	chartURLExpiry = 15 * time.Minute
)

// AnalysisHandler serves chart analysis and the analysis history.
type AnalysisHandler struct {
	analysisService *service.AnalysisService
	recorder        *service.AnalysisRecorder
	archive         storage.Storage
	maxUploadBytes  int64
	logger          *slog.Logger
}

// NewAnalysisHandler creates the handler. archive may be nil.
func NewAnalysisHandler(
	analysisService *service.AnalysisService,
	recorder *service.AnalysisRecorder,
	archive storage.Storage,
	maxUploadBytes int64,
	logger *slog.Logger,
) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		recorder:        recorder,
		archive:         archive,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux, guards Guards) {
	mux.Handle("POST /analyze-image", guards.RequireUser(http.HandlerFunc(h.Analyze)))
	mux.Handle("GET /analysis-history", guards.RequireUser(http.HandlerFunc(h.History)))
	mux.Handle("GET /analysis/{id}", guards.RequireUser(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /delete-analysis/{id}", guards.RequireUser(http.HandlerFunc(h.Delete)))
}

// AnalyzeResponse is returned by a successful analysis.
type AnalyzeResponse struct {
	ID            string `json:"id,omitempty"`
	Analysis      string `json:"analysis"`
	Trend         string `json:"trend"`
	Confidence    string `json:"confidence"`
	AnalysesUsed  int    `json:"analyses_used"`
	AnalysesLimit int    `json:"analyses_limit"`
}

// Analyze accepts a multipart chart upload in the "file" field.
//
// Errors: 403 quota_exceeded when the allowance is spent, 413 when the
// upload is too large, 400 for anything that is not an image and 502 when
// the analyzer fails. Only a successful analysis consumes a unit.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analyze"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "Chart image is too large"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Expected a multipart upload with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "Chart image is required"))
		return
	}
	defer file.Close()

	result, err := h.analysisService.Analyze(r.Context(), user, service.ChartUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        file,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	a := result.Analysis
	var id string
	if result.Recorded {
		id = a.ID.String()
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{
		ID:            id,
		Analysis:      a.Text,
		Trend:         string(a.Trend),
		Confidence:    string(a.Confidence),
		AnalysesUsed:  result.AnalysesUsed,
		AnalysesLimit: result.AnalysesLimit,
	})
}

// HistoryItem is one row of the history listing.
type HistoryItem struct {
	ID           string    `json:"id"`
	Trend        string    `json:"trend"`
	Confidence   string    `json:"confidence"`
	AnalysisText string    `json:"analysis_text"`
	CreatedAt    time.Time `json:"created_at"`
}

func historyItems(analyses []domain.Analysis) []HistoryItem {
	items := make([]HistoryItem, 0, len(analyses))
	for i := range analyses {
		a := &analyses[i]
		items = append(items, HistoryItem{
			ID:           a.ID.String(),
			Trend:        string(a.Trend),
			Confidence:   string(a.Confidence),
			AnalysisText: a.Preview(),
			CreatedAt:    a.CreatedAt.UTC(),
		})
	}
	return items
}

// History lists the caller's analyses, newest first, with previews.
// Query: limit (optional, capped at 50).
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	const op = "handler.history"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	limit := domain.MaxHistoryItems
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "limit", "Limit must be a positive integer"))
			return
		}
		limit = n
	}

	analyses, err := h.recorder.ListRecent(r.Context(), user.ID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, historyItems(analyses))
}

// AnalysisDetail is a full analysis record.
type AnalysisDetail struct {
	ID           string    `json:"id"`
	Trend        string    `json:"trend"`
	Confidence   string    `json:"confidence"`
	AnalysisText string    `json:"analysis_text"`
	ImageURL     string    `json:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Get returns one of the caller's analyses with its full text.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	a, err := h.recorder.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	detail := AnalysisDetail{
		ID:           a.ID.String(),
		Trend:        string(a.Trend),
		Confidence:   string(a.Confidence),
		AnalysisText: a.Text,
		CreatedAt:    a.CreatedAt.UTC(),
	}
	if a.ImageKey != "" && h.archive != nil {
		url, err := h.archive.URL(r.Context(), a.ImageKey, chartURLExpiry)
		if err != nil {
			h.logger.Warn("failed to sign chart url", "analysis_id", a.ID, "error", err)
		} else {
			detail.ImageURL = url
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

// Delete removes one of the caller's analyses. Records owned by another
// user answer 404.
func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	if err := h.recorder.Delete(r.Context(), user.ID, id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Analysis deleted"})
}
