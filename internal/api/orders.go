package api

import (
	"fmt"
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const ordersPage = "/account/orders"

func (h *Handler) listOrders(c *gin.Context) {
	var f service.ListFilters
	if err := c.ShouldBindQuery(&f); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.Queries.ListOrders(c.Request.Context(), userID(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.Orders.GetOrder(c.Request.Context(), userID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// placeOrder handles checkout. The cart is always submitted as JSON.
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	order, err := h.Orders.PlaceOrder(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusCreated, order.ID,
		fmt.Sprintf("Order %s placed.", order.OrderNumber),
		fmt.Sprintf("%s/%d", ordersPage, order.ID), order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.Orders.CancelOrder(c.Request.Context(), userID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, order.ID,
		fmt.Sprintf("Order %s cancelled.", order.OrderNumber),
		fmt.Sprintf("%s/%d", ordersPage, order.ID), order)
}
