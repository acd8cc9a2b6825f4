package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/salesdesk/backend/internal/application/services"
	"github.com/salesdesk/backend/pkg/models"
)

// RowHandler exposes row CRUD, bulk operations, locking and activity
// history for the Sales module.
type RowHandler struct {
	rows     *services.RowService
	query    *services.QueryService
	locks    *services.LockService
	imports  *services.ImportService
	activity activityLister
}

type activityLister interface {
	ListByRow(ctx context.Context, rowID string, limit int) ([]models.ActivityEntry, error)
}

// NewRowHandler creates a new RowHandler
func NewRowHandler(rows *services.RowService, query *services.QueryService, locks *services.LockService, imports *services.ImportService, activity activityLister) *RowHandler {
	return &RowHandler{rows: rows, query: query, locks: locks, imports: imports, activity: activity}
}

// List returns active rows, optionally filtered by expression.
func (h *RowHandler) List(c *gin.Context) {
	filterExpr := c.Query("filter_expr")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	rows, err := h.query.ListRows(c.Request.Context(), filterExpr, limit)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// Get returns one row.
func (h *RowHandler) Get(c *gin.Context) {
	row, err := h.rows.GetRow(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"row": row})
}

// Create inserts a new row.
func (h *RowHandler) Create(c *gin.Context) {
	var data map[string]interface{}
	if !BindJSON(c, &data) {
		return
	}

	actor := GetUserFromContext(c)
	row, err := h.rows.CreateRow(c.Request.Context(), data, actor, RequestMetaFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"row": row})
}

// Update applies a partial update and returns the row with its change list.
func (h *RowHandler) Update(c *gin.Context) {
	var data map[string]interface{}
	if !BindJSON(c, &data) {
		return
	}

	actor := GetUserFromContext(c)
	row, changes, err := h.rows.UpdateRow(c.Request.Context(), c.Param("id"), data, actor, RequestMetaFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"row": row, "changes": changes})
}

// Delete soft-deletes a row.
func (h *RowHandler) Delete(c *gin.Context) {
	actor := GetUserFromContext(c)
	if err := h.rows.DeleteRow(c.Request.Context(), c.Param("id"), actor, RequestMetaFromContext(c)); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Restore clears the soft-delete flag.
func (h *RowHandler) Restore(c *gin.Context) {
	actor := GetUserFromContext(c)
	row, err := h.rows.RestoreRow(c.Request.Context(), c.Param("id"), actor, RequestMetaFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"row": row})
}

// Purge finalizes deletion (admin only, enforced in the service).
func (h *RowHandler) Purge(c *gin.Context) {
	actor := GetUserFromContext(c)
	if err := h.rows.PurgeRow(c.Request.Context(), c.Param("id"), actor); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": true})
}

type bulkUpdateRequest struct {
	IDs    []string               `json:"ids" binding:"required"`
	Fields map[string]interface{} `json:"fields" binding:"required"`
}

// BulkUpdate applies the same field values to many rows.
func (h *RowHandler) BulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if !BindJSON(c, &req) {
		return
	}

	actor := GetUserFromContext(c)
	applied, err := h.rows.BulkUpdate(c.Request.Context(), req.IDs, req.Fields, actor, RequestMetaFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": applied})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// BulkDelete soft-deletes many rows.
func (h *RowHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if !BindJSON(c, &req) {
		return
	}

	actor := GetUserFromContext(c)
	deleted, err := h.rows.BulkDelete(c.Request.Context(), req.IDs, actor, RequestMetaFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Lock acquires the edit lock on a row for the current actor.
func (h *RowHandler) Lock(c *gin.Context) {
	actor := GetUserFromContext(c)
	if err := h.locks.AcquireLock(c.Request.Context(), c.Param("id"), actor); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": true})
}

// Unlock releases the edit lock on a row.
func (h *RowHandler) Unlock(c *gin.Context) {
	actor := GetUserFromContext(c)
	if err := h.locks.ReleaseLock(c.Request.Context(), c.Param("id"), actor); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": true})
}

// LockState reports the current lock condition of a row.
func (h *RowHandler) LockState(c *gin.Context) {
	state, err := h.locks.GetLockState(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"locked":      h.locks.IsLocked(state),
		"holder":      state.Holder,
		"holder_name": state.HolderName,
		"acquired_at": state.AcquiredAt,
	})
}

// Activity returns the audit history of a row, newest first.
func (h *RowHandler) Activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.activity.ListByRow(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

type importRequest struct {
	Records []map[string]interface{} `json:"records" binding:"required"`
	Columns []models.ColumnSpec      `json:"columns"`
}

// Import runs the batch import pipeline over the posted records.
func (h *RowHandler) Import(c *gin.Context) {
	var req importRequest
	if !BindJSON(c, &req) {
		return
	}

	actor := GetUserFromContext(c)
	result, err := h.imports.ImportRows(c.Request.Context(), req.Records, req.Columns, actor, RequestMetaFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
