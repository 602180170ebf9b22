package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/service"
	"storefront/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// FlashCookie carries the outcome of a form submission across the redirect.
const FlashCookie = "storefront_flash"

const flashMaxAge = 60

// Response is the JSON body of every mutation; the flash cookie holds the same shape.
type Response struct {
	Success bool                  `json:"success"`
	ID      int64                 `json:"id,omitempty"`
	Message string                `json:"message"`
	Errors  validation.Violations `json:"errors,omitempty"`
	Data    interface{}           `json:"data,omitempty"`
}

// wantsJSON reports whether the client is a script rather than an HTML form.
func wantsJSON(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), binding.MIMEJSON) {
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return c.ContentType() == binding.MIMEJSON
}

// EncodeFlash serializes a response for the flash cookie.
func EncodeFlash(r Response) string {
	b, _ := json.Marshal(r)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeFlash reads a flash cookie value.
func DecodeFlash(value string) (Response, error) {
	var r Response
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(b, &r)
	return r, err
}

func redirectWithFlash(c *gin.Context, target string, r Response) {
	c.SetCookie(FlashCookie, EncodeFlash(r), flashMaxAge, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, target)
}

// back is the page the form was submitted from.
func back(c *gin.Context, fallback string) string {
	if ref := c.GetHeader("Referer"); ref != "" {
		return ref
	}
	return fallback
}

// succeed answers a successful mutation: JSON for scripts, a 303 with a flash
// message for forms.
func (h *Handler) succeed(c *gin.Context, status int, id int64, message, redirectTo string, data interface{}) {
	r := Response{Success: true, ID: id, Message: message}
	if wantsJSON(c) {
		r.Data = data
		c.JSON(status, r)
		return
	}
	redirectWithFlash(c, redirectTo, r)
}

// fail maps a service error onto a status and answers in the client's mode.
// Reads always answer JSON.
func (h *Handler) fail(c *gin.Context, err error) {
	status, r := h.errorResponse(c, err)
	if c.Request.Method != http.MethodGet && !wantsJSON(c) {
		redirectWithFlash(c, back(c, "/"), r)
		return
	}
	c.AbortWithStatusJSON(status, r)
}

func (h *Handler) errorResponse(c *gin.Context, err error) (int, Response) {
	r := Response{Success: false}

	if ve, ok := validation.AsError(err); ok {
		r.Message = "The given data was invalid."
		r.Errors = ve.Fields
		return http.StatusUnprocessableEntity, r
	}

	switch {
	case errors.Is(err, service.ErrCustomerMissing):
		r.Message = "The given data was invalid."
		r.Errors = validation.Violations{"form": "Complete your customer profile before continuing."}
		return http.StatusUnprocessableEntity, r
	case errors.Is(err, service.ErrInsufficientStock):
		r.Message = "The given data was invalid."
		r.Errors = validation.Violations{"lines": "Some products are no longer available in the requested quantity."}
		return http.StatusUnprocessableEntity, r
	case errors.Is(err, service.ErrNotFound):
		r.Message = "Not found."
		return http.StatusNotFound, r
	case errors.Is(err, service.ErrInvalidTransition):
		r.Message = "This status change is not allowed."
		return http.StatusConflict, r
	case errors.Is(err, service.ErrDuplicateRequest):
		r.Message = "This request is already being processed."
		return http.StatusConflict, r
	case errors.Is(err, service.ErrRateUnavailable), errors.Is(err, service.ErrConfiguration):
		h.logger.Error("Request failed on store configuration",
			zap.String("path", c.FullPath()), zap.Error(err))
		r.Message = "The store cannot process this request right now. Please try again later."
		return http.StatusServiceUnavailable, r
	}

	h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	r.Message = "Something went wrong."
	return http.StatusInternalServerError, r
}

// badRequest answers a body or query that could not be decoded at all.
func (h *Handler) badRequest(c *gin.Context, err error) {
	r := Response{Success: false, Message: "Invalid request body"}
	if c.Request.Method != http.MethodGet && !wantsJSON(c) {
		redirectWithFlash(c, back(c, "/"), r)
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": r.Message,
		"details": err.Error(),
	})
}

// pathID parses the :id route parameter; a malformed id is a 404.
func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, service.ErrNotFound)
		return 0, false
	}
	return id, true
}
