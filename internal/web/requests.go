package web

// requests.go declares the JSON request bodies. Each implements render.Binder
// and validates itself with ozzo-validation after decoding.

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
)

// maxNameLength bounds table, column and user display names.
const maxNameLength = 200

type createTableRequest struct {
	Name string `json:"name"`
}

func (req *createTableRequest) Bind(*http.Request) error {
	req.Name = strings.TrimSpace(req.Name)
	return validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, maxNameLength)),
	)
}

type addColumnRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (req *addColumnRequest) Bind(*http.Request) error {
	req.Name = strings.TrimSpace(req.Name)
	return validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&req.Type, validation.Required, validation.By(columnType)),
	)
}

func columnType(v any) error {
	s, _ := v.(string)
	if _, err := columns.Parse(s); err != nil {
		return errors.New("must be a known column type")
	}
	return nil
}

type updateCellRequest struct {
	Value any `json:"value"`
}

func (req *updateCellRequest) Bind(*http.Request) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Value, validation.NotNil),
	)
}

type registerRequest struct {
	Name string `json:"name"`
}

func (req *registerRequest) Bind(*http.Request) error {
	req.Name = strings.TrimSpace(req.Name)
	return validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Length(0, maxNameLength)),
	)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (req *setStatusRequest) Bind(*http.Request) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Status, validation.Required,
			validation.In(string(access.StatusPending), string(access.StatusApproved), string(access.StatusRejected))),
	)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (req *setRoleRequest) Bind(*http.Request) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Role, validation.Required,
			validation.In("none", string(access.RoleMember), string(access.RoleAdmin))),
	)
}

// Import modes accepted by the import form.
const (
	importReplace = "replace"
	importAppend  = "append"
)

func validateImportMode(mode string) error {
	return validation.Validate(mode, validation.In(importReplace, importAppend))
}

// bind decodes the JSON body into v and converts decoding and validation
// failures into core.ValidationError.
func bind(r *http.Request, v render.Binder) error {
	err := render.Bind(r, v)
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return validationError(verrs)
	}
	return core.Invalid("body", "malformed request body: %v", err)
}

func validationError(verrs validation.Errors) *core.ValidationError {
	fields := make([]string, 0, len(verrs))
	for f := range verrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	field := ""
	if len(fields) > 0 {
		field = fields[0]
	}
	return &core.ValidationError{Field: field, Message: verrs.Error()}
}

// queryLimit parses the limit query parameter with a default value.
func queryLimit(r *http.Request, defaultVal int) int {
	val := r.URL.Query().Get("limit")
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
