package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vasp-offchain.backend/internal/address"
	"vasp-offchain.backend/internal/vasp"
	"vasp-offchain.backend/pkg/utils"
)

// adminHandlers exposes read-only introspection over a running VASP's
// channels and payment objects, authenticated the same way the rest of
// this backend's operator surface is.
type adminHandlers struct {
	vasp *vasp.VASP
}

type channelSummary struct {
	Address string `json:"address"`
}

func (h *adminHandlers) listChannels(c *gin.Context) {
	channels := h.vasp.Channels()
	page, limit := paginationFromQuery(c)
	params := utils.GetPaginationParams(page, limit)

	out := make([]channelSummary, 0, len(channels))
	for _, addr := range channels {
		out = append(out, channelSummary{Address: addr.String()})
	}

	meta := utils.CalculateMeta(int64(len(out)), params.Page, params.Limit)
	out = paginateSlice(out, params)

	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (h *adminHandlers) listPaymentVersions(c *gin.Context) {
	other, err := address.Parse(c.Param("other"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	versions, err := h.vasp.PaymentVersions(other)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	page, limit := paginationFromQuery(c)
	params := utils.GetPaginationParams(page, limit)
	meta := utils.CalculateMeta(int64(len(versions)), params.Page, params.Limit)
	versions = paginateSlice(versions, params)

	c.JSON(http.StatusOK, gin.H{"data": versions, "meta": meta})
}

func (h *adminHandlers) getPaymentRecord(c *gin.Context) {
	other, err := address.Parse(c.Param("other"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.vasp.PaymentRecord(other, c.Param("version"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func paginationFromQuery(c *gin.Context) (page, limit int) {
	var params utils.PaginationParams
	_ = c.ShouldBindQuery(&params)
	return params.Page, params.Limit
}

func paginateSlice[T any](items []T, params utils.PaginationParams) []T {
	if params.Limit <= 0 {
		return items
	}
	offset := params.CalculateOffset()
	if offset >= len(items) {
		return []T{}
	}
	end := offset + params.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
