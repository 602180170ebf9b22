package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const addressesPage = "/account/addresses"

func (h *Handler) listAddresses(c *gin.Context) {
	addrs, err := h.Addresses.List(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addrs})
}

// bindAddress decodes the address form. A missing country falls back to the
// country detected for the request.
func (h *Handler) bindAddress(c *gin.Context) (service.AddressInput, bool) {
	var in service.AddressInput
	if err := c.ShouldBind(&in); err != nil {
		h.badRequest(c, err)
		return in, false
	}
	if in.CountryID == 0 {
		country, err := h.Locations.DefaultCountry(c.Request.Context(), c.Request)
		if err != nil {
			h.fail(c, err)
			return in, false
		}
		in.CountryID = country.ID
	}
	return in, true
}

func (h *Handler) createAddress(c *gin.Context) {
	in, ok := h.bindAddress(c)
	if !ok {
		return
	}
	a, err := h.Addresses.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusCreated, a.ID, "Address saved.", addressesPage, a)
}

func (h *Handler) updateAddress(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	in, ok := h.bindAddress(c)
	if !ok {
		return
	}
	a, err := h.Addresses.Update(c.Request.Context(), userID(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, a.ID, "Address updated.", addressesPage, a)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.Addresses.Delete(c.Request.Context(), userID(c), id); err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, id, "Address deleted.", addressesPage, nil)
}

func (h *Handler) setPreferredAddress(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	a, err := h.Addresses.SetPreferred(c.Request.Context(), userID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, http.StatusOK, a.ID, "Preferred shipping address updated.", addressesPage, a)
}
