package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/storage"
)

// ChartFileHandler serves archived charts from local storage to their
// owners. R2 archives hand out their own URLs and do not need it.
type ChartFileHandler struct {
	archive storage.Storage
	logger  *slog.Logger
}

func NewChartFileHandler(archive storage.Storage, logger *slog.Logger) *ChartFileHandler {
	return &ChartFileHandler{
		archive: archive,
		logger:  logger,
	}
}

func (h *ChartFileHandler) RegisterRoutes(mux *http.ServeMux, guards Guards) {
	mux.Handle("GET /files/{key...}", guards.RequireUser(http.HandlerFunc(h.Serve)))
}

// Serve streams a chart. Keys outside the caller's charts/{userID}/
// prefix answer 404, the same as missing charts.
func (h *ChartFileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	const op = "handler.serve_chart"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	key := r.PathValue("key")
	if !strings.HasPrefix(key, storage.ChartPrefix(user.ID)) || strings.Contains(key, "..") {
		NotFoundResponse(w, r, h.logger)
		return
	}

	body, info, err := h.archive.Get(r.Context(), key)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrInvalidKey) {
			NotFoundResponse(w, r, h.logger)
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to read chart"))
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=900")
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("chart download interrupted", "key", key, "error", err)
	}
}
