package httpapi

import (
	"github.com/gin-gonic/gin"

	"segflow/pkg/errutil"
)

type campaignBody struct {
	Flow            string   `json:"flow"`
	Behavior        string   `json:"behavior"`
	Segments        []string `json:"segments"`
	ExcludeSegments []string `json:"excludeSegments"`
}

func (h *handlers) createCampaign(c *gin.Context) {
	var body campaignBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	id := c.Param("id")
	err := h.services.CreateCampaign(c.Request.Context(), id, body.Flow, body.Behavior, body.Segments, body.ExcludeSegments)
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"id": id})
}

func (h *handlers) deleteCampaign(c *gin.Context) {
	if err := h.services.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"deleted": true})
}

func (h *handlers) getCampaign(c *gin.Context) {
	campaign, err := h.services.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, campaign)
}

func (h *handlers) listCampaigns(c *gin.Context) {
	campaigns, err := h.services.ListCampaigns(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, campaigns)
}
