package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/core"
)

// meResponse describes the caller and the gate decision for the member area.
type meResponse struct {
	access.Identity
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := access.RequireIdentity(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	d := access.Authorize(&id, access.RoleMember, access.RoleAdmin)
	render.JSON(w, r, meResponse{
		Identity: id,
		Allowed:  d.Allow,
		Redirect: d.Redirect,
		Reason:   d.Reason,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	id, err := access.RequireIdentity(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req registerRequest
	if err := bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	user, err := s.users.Register(r.Context(), id.UserID, id.Email, req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	id, err := access.RequireIdentity(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	user, err := s.users.Login(r.Context(), id.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, users)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	status, err := access.ParseStatus(req.Status)
	if err != nil {
		s.respondError(w, r, core.Invalid("status", "%v", err))
		return
	}
	user, err := s.users.SetStatus(r.Context(), chi.URLParam(r, "userID"), status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := bind(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		s.respondError(w, r, core.Invalid("role", "%v", err))
		return
	}
	user, err := s.users.SetRole(r.Context(), chi.URLParam(r, "userID"), role)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

func (s *Server) handleListAllTables(w http.ResponseWriter, r *http.Request) {
	list, err := s.tables.ListAllTables(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.tables.Orphans(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, orphans)
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if _, err := access.Require(r.Context(), "view audit log", access.RoleAdmin); err != nil {
		s.respondError(w, r, err)
		return
	}
	entries, err := s.audit.List(r.Context(), core.AuditLogFilter{
		TableID: r.URL.Query().Get("table"),
		Action:  core.AuditAction(r.URL.Query().Get("action")),
		Limit:   queryLimit(r, core.DefaultAuditLimit),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, entries)
}
