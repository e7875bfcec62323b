package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
)

func (s *Server) handleColumnTypes(w http.ResponseWriter, r *http.Request) {
	type columnType struct {
		columns.Descriptor
		Default any `json:"default"`
	}
	now := s.now()
	all := columns.All()
	out := make([]columnType, len(all))
	for i, d := range all {
		out[i] = columnType{Descriptor: d, Default: d.DefaultAt(now)}
	}
	render.JSON(w, r, out)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	list, err := s.tables.ListTables(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	meta, err := s.tables.CreateTable(r.Context(), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, meta)
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	data, err := s.tables.LoadTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := s.tables.DeleteTable(r.Context(), chi.URLParam(r, "tableID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	data, err := s.tables.AddRow(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, data)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	data, err := s.tables.DeleteRow(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "rowID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	var req updateCellRequest
	if err := bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	data, err := s.tables.UpdateCell(r.Context(),
		chi.URLParam(r, "tableID"),
		chi.URLParam(r, "rowID"),
		chi.URLParam(r, "columnID"),
		req.Value,
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var req addColumnRequest
	if err := bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	typ, err := columns.Parse(req.Type)
	if err != nil {
		s.respondError(w, r, core.Invalid("type", "%v", err))
		return
	}
	data, err := s.tables.AddColumn(r.Context(), chi.URLParam(r, "tableID"), req.Name, typ)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, data)
}

func (s *Server) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	data, err := s.tables.DeleteColumn(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "columnID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, data)
}

func (s *Server) handleTableAudit(w http.ResponseWriter, r *http.Request) {
	meta, err := s.tables.GetTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	entries, err := s.audit.List(r.Context(), core.AuditLogFilter{
		TableID: meta.ID,
		Limit:   queryLimit(r, core.DefaultAuditLimit),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, entries)
}
