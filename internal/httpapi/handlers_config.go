package httpapi

import (
	"github.com/gin-gonic/gin"

	"segflow/internal/configset"
	"segflow/pkg/errutil"
)

// emailConfigBody treats config as a tagged union keyed by its own
// "name" field ("postmark" or "ses"), not a sibling of it.
type emailConfigBody struct {
	Config      map[string]any `json:"config"`
	FromAddress string         `json:"fromAddress"`
}

func (h *handlers) setEmailProvider(c *gin.Context) {
	var body emailConfigBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	name, _ := body.Config["name"].(string)
	if name == "" {
		respondError(c, errutil.BadRequest("config.name is required", nil))
		return
	}
	if err := h.services.SetEmailProvider(c.Request.Context(), name, body.Config, body.FromAddress); err != nil {
		respondError(c, err)
		return
	}
	respondValue(c, gin.H{"configured": true})
}

func (h *handlers) pushConfig(c *gin.Context) {
	var cfg configset.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, errutil.BadRequest(err.Error(), err))
		return
	}
	result, err := h.services.PushConfig(c.Request.Context(), cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.NoChanges {
		respondValue(c, gin.H{"noChanges": true})
		return
	}
	respondValue(c, gin.H{"configId": result.ConfigID, "operations": result.Operations})
}
