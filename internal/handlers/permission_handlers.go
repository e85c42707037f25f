package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyfort/provider-bridge/internal/broker"
	"github.com/keyfort/provider-bridge/internal/permissions"
)

// PermissionHandler exposes permission management to the wallet UI: listing
// pending approval prompts, posting decisions, and inspecting or revoking
// persisted grants.
type PermissionHandler struct {
	store  permissions.Store
	broker *broker.Broker
	hub    *broker.Hub
}

func NewPermissionHandler(store permissions.Store, brk *broker.Broker, hub *broker.Hub) *PermissionHandler {
	return &PermissionHandler{store: store, broker: brk, hub: hub}
}

// DecisionRequest is the operator's answer to one approval prompt.
type DecisionRequest struct {
	State string `json:"state" binding:"required"`
}

// ListPendingRequests handles GET /permissions/requests
func (h *PermissionHandler) ListPendingRequests(c *gin.Context) {
	sendList(c, h.hub.Pending())
}

// DecideRequest handles POST /permissions/requests/:id/decision
func (h *PermissionHandler) DecideRequest(c *gin.Context) {
	id := c.Param("id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	decision, err := broker.ParseDecision(req.State)
	if err != nil {
		sendError(c, http.StatusBadRequest, "State must be allow or deny", err)
		return
	}

	if err := h.hub.Resolve(id, decision); err != nil {
		if errors.Is(err, broker.ErrUnknownPrompt) {
			sendError(c, http.StatusNotFound, "No pending request with that id", err)
			return
		}
		sendError(c, http.StatusInternalServerError, "Internal server error", err)
		return
	}

	sendSuccessMessage(c, http.StatusOK, "decision recorded")
}

// ListPermissions handles GET /permissions?origin=
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	origin := c.Query("origin")
	if origin == "" {
		sendError(c, http.StatusBadRequest, "origin query parameter is required", nil)
		return
	}

	records, err := h.store.ListByOrigin(c.Request.Context(), origin)
	if err != nil {
		handleStoreError(c, err, "No permissions for origin")
		return
	}

	sendList(c, records)
}

// RevokePermission handles DELETE /permissions?key=
// The key is a query parameter because it embeds the origin URL, which
// path segments cannot carry.
func (h *PermissionHandler) RevokePermission(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		sendError(c, http.StatusBadRequest, "key query parameter is required", nil)
		return
	}

	if err := h.broker.Revoke(c.Request.Context(), key); err != nil {
		handleStoreError(c, err, "No permission with that key")
		return
	}

	sendSuccessMessage(c, http.StatusOK, "permission revoked")
}
