package http

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"replygate/internal/entities"
)

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Dashboard.GetStats(c.Request.Context(), identityFrom(c).BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetEngagement(c *gin.Context) {
	items, err := h.Dashboard.GetEngagement(c.Request.Context(), identityFrom(c).BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []entities.EngagementItem{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Search(c *gin.Context) {
	q := TruncateString(SanitizeString(c.Query("q")), MaxSearchLength)
	hits, err := h.Dashboard.Search(c.Request.Context(), identityFrom(c).BusinessID, q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if hits == nil {
		hits = []entities.SearchHit{}
	}
	c.JSON(http.StatusOK, hits)
}

// Export renders the whole CSV before writing so a failed query still
// gets a proper error status.
func (h *Handler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Dashboard.ExportCSV(c.Request.Context(), identityFrom(c).BusinessID, &buf); err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="interactions.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) GetProfile(c *gin.Context) {
	b, err := h.Profiles.GetProfile(c.Request.Context(), identityFrom(c).BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var upd entities.BusinessProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	for _, field := range []*string{upd.Name, upd.KnowledgeBase, upd.AIInstructions, upd.Timezone} {
		if field != nil {
			*field = SanitizeString(*field)
			if len(*field) > MaxProfileFieldLength {
				c.JSON(http.StatusBadRequest, gin.H{"error": "field too long"})
				return
			}
		}
	}

	b, err := h.Profiles.UpdateProfile(c.Request.Context(), identityFrom(c).BusinessID, upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
