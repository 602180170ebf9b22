package api

import (
	"fmt"
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	returnsPage = "/account/returns"

	// HeaderIdempotencyKey deduplicates retried return submissions.
	HeaderIdempotencyKey = "Idempotency-Key"
)

func (h *Handler) listReturns(c *gin.Context) {
	var f service.ListFilters
	if err := c.ShouldBindQuery(&f); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.Returns.ListCustomerReturns(c.Request.Context(), userID(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) searchReturnableItems(c *gin.Context) {
	items, err := h.Returns.SearchReturnableItems(c.Request.Context(), userID(c), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (h *Handler) createReturn(c *gin.Context) {
	var req service.CreateReturnRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(HeaderIdempotencyKey)

	r, err := h.Returns.CreateReturn(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusCreated, r.ID,
		fmt.Sprintf("Return %s registered.", r.ReturnNumber), returnsPage, r)
}
