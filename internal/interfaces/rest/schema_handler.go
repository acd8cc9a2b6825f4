package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/salesdesk/backend/internal/application/services"
)

// SchemaHandler exposes custom column and dropdown option management.
type SchemaHandler struct {
	schema *services.SchemaService
}

// NewSchemaHandler creates a new SchemaHandler
func NewSchemaHandler(schema *services.SchemaService) *SchemaHandler {
	return &SchemaHandler{schema: schema}
}

// ListColumns returns all custom column definitions in display order.
func (h *SchemaHandler) ListColumns(c *gin.Context) {
	columns, err := h.schema.ListColumns(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns})
}

type createColumnRequest struct {
	Name string `json:"name" binding:"required"`
	Kind string `json:"kind" binding:"required"`
}

// CreateColumn registers a new custom column.
func (h *SchemaHandler) CreateColumn(c *gin.Context) {
	var req createColumnRequest
	if !BindJSON(c, &req) {
		return
	}

	actor := GetUserFromContext(c)
	column, err := h.schema.CreateColumn(c.Request.Context(), req.Name, req.Kind, actor, false)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"column": column})
}

type updateColumnRequest struct {
	Name    string `json:"name" binding:"required"`
	Kind    string `json:"kind" binding:"required"`
	Visible bool   `json:"visible"`
}

// UpdateColumn changes a column's display name, kind or visibility. The
// derived key never changes after creation.
func (h *SchemaHandler) UpdateColumn(c *gin.Context) {
	var req updateColumnRequest
	if !BindJSON(c, &req) {
		return
	}

	column, err := h.schema.UpdateColumn(c.Request.Context(), c.Param("id"), req.Name, req.Kind, req.Visible)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"column": column})
}

// DeleteColumn removes a column definition and its dropdown options.
func (h *SchemaHandler) DeleteColumn(c *gin.Context) {
	if err := h.schema.DeleteColumn(c.Request.Context(), c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListScopes returns every field that carries a dropdown option set.
func (h *SchemaHandler) ListScopes(c *gin.Context) {
	scopes, err := h.schema.DropdownScopes(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scopes": scopes})
}

// ListOptions returns the active options for one scope.
func (h *SchemaHandler) ListOptions(c *gin.Context) {
	options, err := h.schema.ListOptions(c.Request.Context(), c.Param("scope"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

type createOptionRequest struct {
	Value string `json:"value" binding:"required"`
	Label string `json:"label"`
}

// CreateOption adds a dropdown option to a scope.
func (h *SchemaHandler) CreateOption(c *gin.Context) {
	var req createOptionRequest
	if !BindJSON(c, &req) {
		return
	}

	actor := GetUserFromContext(c)
	option, err := h.schema.CreateOption(c.Request.Context(), c.Param("scope"), req.Value, req.Label, actor, false)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"option": option})
}

type updateOptionRequest struct {
	Value        string `json:"value" binding:"required"`
	Label        string `json:"label"`
	DisplayOrder *int   `json:"display_order"`
}

// UpdateOption edits an option's value, label or position.
func (h *SchemaHandler) UpdateOption(c *gin.Context) {
	var req updateOptionRequest
	if !BindJSON(c, &req) {
		return
	}

	option, err := h.schema.UpdateOption(c.Request.Context(), c.Param("id"), req.Value, req.Label, req.DisplayOrder)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"option": option})
}

// DeleteOption removes an option if it is unused and the actor is its
// creator or an administrator.
func (h *SchemaHandler) DeleteOption(c *gin.Context) {
	actor := GetUserFromContext(c)
	if err := h.schema.DeleteOption(c.Request.Context(), c.Param("id"), actor); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
