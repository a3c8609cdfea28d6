// Package handlers provides HTTP request handlers for the records API and
// the health endpoints.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/middleware"
	"github.com/pandeptwidyaop/trp-api/internal/models"
	"github.com/pandeptwidyaop/trp-api/internal/services"
	"github.com/pandeptwidyaop/trp-api/internal/validation"
)

// RecordHandler handles HTTP requests for sales records.
type RecordHandler struct {
	recordService *services.RecordService
	log           logrus.FieldLogger
}

// NewRecordHandler creates a new RecordHandler instance.
func NewRecordHandler(recordService *services.RecordService, log logrus.FieldLogger) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
		log:           log,
	}
}

// List returns up to ?limit= records as JSON.
func (h *RecordHandler) List(c *gin.Context) {
	limit := services.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.recordService.List(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "list records", err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// Get returns a single record by ID.
func (h *RecordHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rec, err := h.recordService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "get record", err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Create creates a new record.
func (h *RecordHandler) Create(c *gin.Context) {
	var req models.CreateRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateRecordFields(&req.RecordFields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.recordService.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrIntegrity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "create record", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "create",
		"record_id": rec.ID,
		"user":      middleware.CurrentUser(c),
	}).Info("record created")

	c.JSON(http.StatusCreated, rec)
}

// Update applies a partial update to an existing record.
func (h *RecordHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.UpdateRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.ValidateRecordFields(&req.RecordFields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.recordService.Update(c.Request.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNoFieldsToUpdate), errors.Is(err, services.ErrIntegrity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.internalError(c, "update record", err)
		}
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "update",
		"record_id": rec.ID,
		"user":      middleware.CurrentUser(c),
	}).Info("record updated")

	c.JSON(http.StatusOK, rec)
}

// Delete deletes a record.
func (h *RecordHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.recordService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "delete record", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "delete",
		"record_id": id,
		"user":      middleware.CurrentUser(c),
	}).Info("record deleted")

	c.Status(http.StatusNoContent)
}

func (h *RecordHandler) internalError(c *gin.Context, op string, err error) {
	h.log.WithError(err).WithField("op", op).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
