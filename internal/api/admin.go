package api

import (
	"fmt"
	"net/http"

	"storefront/internal/service"
	"storefront/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const adminReturnsPage = "/admin/returns"

type statusRequest struct {
	Status string `json:"status" form:"status"`
}

type refundRequest struct {
	RefundAmount *decimal.Decimal `json:"refund_amount" form:"refund_amount"`
}

type restockRequest struct {
	RestockItem *bool `json:"restock_item" form:"restock_item"`
}

func (h *Handler) adminListReturns(c *gin.Context) {
	var f service.ListFilters
	if err := c.ShouldBindQuery(&f); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.Returns.AdminListReturns(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) adminGetReturn(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	r, err := h.Returns.AdminGetReturn(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) adminUpdateReturnStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.Returns.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, r.ID, "Return status updated.", fmt.Sprintf("%s/%d", adminReturnsPage, r.ID), r)
}

func (h *Handler) adminUpdateRefund(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req refundRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	r, err := h.Returns.UpdateRefundAmount(c.Request.Context(), id, req.RefundAmount)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, r.ID, "Refund amount updated.", fmt.Sprintf("%s/%d", adminReturnsPage, r.ID), r)
}

func (h *Handler) adminUpdateRestock(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req restockRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.RestockItem == nil {
		h.fail(c, validation.FieldError("restock_item", "The restock item field is required."))
		return
	}
	r, err := h.Returns.UpdateRestockFlag(c.Request.Context(), id, *req.RestockItem)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, r.ID, "Restock preference updated.", fmt.Sprintf("%s/%d", adminReturnsPage, r.ID), r)
}

func (h *Handler) adminGetOrder(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.Orders.AdminGetOrder(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) adminUpdateOrderStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	order, err := h.Orders.UpdateOrderStatus(c.Request.Context(), id, req.Status, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, order.ID, "Order status updated.", fmt.Sprintf("/admin/orders/%d", order.ID), order)
}

func (h *Handler) adminMarkOrderPaid(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.Orders.MarkOrderPaid(c.Request.Context(), id, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, order.ID, "Order marked as paid.", fmt.Sprintf("/admin/orders/%d", order.ID), order)
}
