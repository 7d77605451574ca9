package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vibematch/internal/services"
)

type CountryHandler struct {
	svc services.CountryService
}

func NewCountryHandler(svc services.CountryService) *CountryHandler {
	return &CountryHandler{svc: svc}
}

func (h *CountryHandler) List(c *gin.Context) {
	rows, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"countries": rows, "total": len(rows)})
}

func (h *CountryHandler) Sync(c *gin.Context) {
	res, err := h.svc.Sync(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
