package httpapi

import (
	"github.com/gin-gonic/gin"

	"segflow/pkg/errutil"
)

type templateBody struct {
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Preamble string `json:"preamble"`
}

func (h *handlers) createTemplate(c *gin.Context) {
	var body templateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	if err := h.services.CreateTemplate(c.Request.Context(), id, body.Subject, body.HTML, body.Preamble); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) updateTemplate(c *gin.Context) {
	var body templateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	if err := h.services.UpdateTemplate(c.Request.Context(), id, body.Subject, body.HTML, body.Preamble); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) deleteTemplate(c *gin.Context) {
	if err := h.services.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"deleted": true})
}
