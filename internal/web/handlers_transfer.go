package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/interchange"
	"github.com/JonMunkholm/tablekit/internal/core/tables"
	"github.com/JonMunkholm/tablekit/internal/logging"
)

// uploadedFile opens the "file" part of a multipart upload, bounding the
// request body by the import size limit.
func (s *Server) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("%w: exceeds %d bytes", interchange.ErrFileTooLarge, s.cfg.Import.MaxFileSize)
		}
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, errNoFile
		}
		return nil, nil, core.Invalid("file", "unreadable upload: %v", err)
	}
	return file, header, nil
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	file, header, err := s.uploadedFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	mode := r.FormValue("mode")
	if mode == "" {
		mode = importReplace
	}
	if err := validateImportMode(mode); err != nil {
		s.respondError(w, r, core.Invalid("mode", "%v", err))
		return
	}

	logging.WithFields(r.Context(),
		"table_id", tableID,
		"file", header.Filename,
		"size", header.Size,
		"mode", mode,
	).Info("import received")

	res, err := s.tables.Import(r.Context(), tableID, header.Filename, file, mode == importAppend)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.uploadedFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	preview, err := s.tables.Preview(r.Context(), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, preview)
}

// handleExport streams the table as a download. The export is rendered into
// memory first so that failures still produce a JSON error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(interchange.FormatCSV)
	}
	format, err := interchange.ParseFormat(raw)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	meta, err := s.tables.GetTable(r.Context(), tableID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.tables.Export(r.Context(), tableID, format, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}

	name := tables.ExportFileName(meta.Name, format, s.now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, &buf); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "table_id", tableID, "error", err)
	}
}
