package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/bridge"
	"github.com/keyfort/provider-bridge/internal/eip1193"
	"github.com/keyfort/provider-bridge/internal/logger"
)

// RPCHandler exposes the provider surface to content scripts. Every request
// carries the caller's origin and session identity in headers; the body is
// the raw provider request.
type RPCHandler struct {
	service *bridge.Service
}

func NewRPCHandler(service *bridge.Service) *RPCHandler {
	return &RPCHandler{service: service}
}

// RPCRequest is the provider request forwarded by a content script. Origin
// is a fallback for callers that cannot set headers; the header wins when
// both are present.
type RPCRequest struct {
	Method string          `json:"method" binding:"required"`
	Params json.RawMessage `json:"params"`
	Origin string          `json:"origin"`
}

// RPCResponse carries either a result or a provider error, never both.
// Provider errors are part of the protocol, so they travel with HTTP 200;
// non-200 statuses are reserved for transport-level failures.
type RPCResponse struct {
	Result any            `json:"result,omitempty"`
	Error  *eip1193.Error `json:"error,omitempty"`
}

// Route handles POST /rpc
func (h *RPCHandler) Route(c *gin.Context) {
	accountAddress := c.GetHeader("X-Account-Address")
	chainID := c.GetHeader("X-Chain-Id")
	if chainID == "" {
		chainID = "1"
	}

	var req RPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	origin := c.GetHeader("X-Caller-Origin")
	if origin == "" {
		origin = req.Origin
	}
	if origin == "" {
		sendError(c, http.StatusBadRequest, "Caller origin is required", nil)
		return
	}

	result, provErr := h.service.Route(c.Request.Context(), req.Method, req.Params, origin, accountAddress, chainID)
	if provErr != nil {
		logger.Debug("provider request rejected",
			zap.String("origin", origin),
			zap.String("rpcMethod", req.Method),
			zap.Int("code", provErr.Code),
		)
		sendSuccess(c, http.StatusOK, RPCResponse{Error: provErr})
		return
	}

	sendSuccess(c, http.StatusOK, RPCResponse{Result: result})
}
