package httpapi

import (
	"github.com/gin-gonic/gin"

	"segflow/pkg/errutil"
)

type attributesBody struct {
	Attributes map[string]any `json:"attributes"`
}

func (h *handlers) createUser(c *gin.Context) {
	var body attributesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	if err := h.services.CreateUser(c.Request.Context(), id, body.Attributes); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) updateUser(c *gin.Context) {
	var body attributesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	if err := h.services.UpdateUser(c.Request.Context(), id, body.Attributes); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) getUser(c *gin.Context) {
	attrs, err := h.services.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, attrs)
}

func (h *handlers) deleteUser(c *gin.Context) {
	if err := h.services.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"deleted": true})
}

func (h *handlers) emitEvent(c *gin.Context) {
	var body attributesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	userID, name := c.Param("id"), c.Param("name")
	if err := h.services.EmitEvent(c.Request.Context(), userID, name, body.Attributes); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"emitted": true})
}

func (h *handlers) listEvents(c *gin.Context) {
	events, err := h.services.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, events)
}

func (h *handlers) listUserSegments(c *gin.Context) {
	ids, err := h.services.ListUserSegments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, ids)
}
