package httpapi

import (
	"github.com/gin-gonic/gin"

	"segflow/pkg/errutil"
)

type segmentBody struct {
	Evaluator string `json:"evaluator"`
}

func (h *handlers) createSegment(c *gin.Context) {
	var body segmentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	if err := h.services.CreateSegment(c.Request.Context(), id, body.Evaluator); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) updateSegment(c *gin.Context) {
	var body segmentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	if err := h.services.UpdateSegment(c.Request.Context(), id, body.Evaluator); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) deleteSegment(c *gin.Context) {
	if err := h.services.DeleteSegment(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"deleted": true})
}

func (h *handlers) getSegment(c *gin.Context) {
	seg, err := h.services.GetSegment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, seg)
}

func (h *handlers) listSegments(c *gin.Context) {
	segments, err := h.services.ListSegments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, segments)
}

func (h *handlers) listSegmentUsers(c *gin.Context) {
	ids, err := h.services.ListSegmentUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, ids)
}
