package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) updateCompanyInfo(c *gin.Context) {
	var req service.CompanyInfoRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	customer, err := h.Company.UpdateCompanyInfo(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, customer.ID, "Company details updated.", "/account", customer)
}

func (h *Handler) listCountries(c *gin.Context) {
	countries, err := h.Locations.ListCountries(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": countries})
}

func (h *Handler) defaultCountry(c *gin.Context) {
	country, err := h.Locations.DefaultCountry(c.Request.Context(), c.Request)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"country": country})
}

func (h *Handler) listStates(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	states, err := h.Locations.ListStates(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": states})
}

func (h *Handler) listCities(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	cities, err := h.Locations.ListCities(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": cities})
}

func (h *Handler) productStock(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	stock, err := h.Stock.Available(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}
