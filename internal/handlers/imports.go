package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appshell/internal/auth"
	"appshell/pkg/importer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryInvalidator drops every cached query of one owner. An import may
// update any of the owner's rows, so lists alone are not enough.
type QueryInvalidator interface {
	InvalidateOwner(ctx context.Context, owner uuid.UUID)
}

// ImportsHandler handles Excel project imports
type ImportsHandler struct {
	DB       importer.TxBeginner
	Queries  QueryInvalidator
	MaxBytes int64
	Logger   *zap.Logger
}

func NewImportsHandler(db importer.TxBeginner, queries QueryInvalidator, logger *zap.Logger) *ImportsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportsHandler{
		DB:       db,
		Queries:  queries,
		MaxBytes: 20 << 20, // 20 MB
		Logger:   logger,
	}
}

// UploadExcel imports projects from a multipart .xlsx upload for the
// signed-in user.
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	owner := auth.UserIDFromContext(r.Context())
	if owner == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session", "code": "MISSING_TOKEN"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		http.Error(w, "content-type must be multipart/form-data", http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	dryRun := r.FormValue("dry_run") == "true"
	maxErrors := importer.DefaultMaxErrors
	if v := r.FormValue("max_errors"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "max_errors must be a positive integer", http.StatusBadRequest)
			return
		}
		maxErrors = n
	}

	var mapping []byte
	if mf, _, err := r.FormFile("mapping"); err == nil {
		mapping, err = io.ReadAll(mf)
		mf.Close()
		if err != nil {
			http.Error(w, "invalid mapping: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		http.Error(w, "only .xlsx files are accepted", http.StatusBadRequest)
		return
	}

	sum, impErr := importer.ImportProjects(r.Context(), h.DB, file, importer.ImportOptions{
		OwnerID:   owner,
		Mapping:   mapping,
		DryRun:    dryRun,
		MaxErrors: maxErrors,
	})
	if impErr != nil {
		h.Logger.Warn("project import failed", zap.String("owner", owner.String()), zap.Error(impErr))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "IMPORT_FAILED",
			"details": impErr.Error(),
			"data":    sum,
		})
		return
	}

	if !dryRun && sum.Inserted+sum.Updated > 0 && h.Queries != nil {
		h.Queries.InvalidateOwner(r.Context(), owner)
	}
	h.Logger.Info("projects imported",
		zap.String("owner", owner.String()),
		zap.Bool("dry_run", dryRun),
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("errors", sum.Errors))

	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func isXLSX(h *multipart.FileHeader) bool {
	return strings.HasSuffix(strings.ToLower(h.Filename), ".xlsx")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
