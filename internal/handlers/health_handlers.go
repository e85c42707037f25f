package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyfort/provider-bridge/internal/signing"
)

type HealthHandler struct {
	signer *signing.Client
}

func NewHealthHandler(signer *signing.Client) *HealthHandler {
	return &HealthHandler{signer: signer}
}

type HealthResponse struct {
	Status string `json:"status"`
	Signer string `json:"signer,omitempty"`
}

// Health reports whether the bridge is up. The signer field reflects the
// last reachability check of the signer daemon, not this process.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if h.signer != nil {
		if err := h.signer.Healthy(c.Request.Context()); err != nil {
			resp.Signer = "unreachable"
		} else {
			resp.Signer = "ok"
		}
	}
	c.JSON(http.StatusOK, resp)
}
