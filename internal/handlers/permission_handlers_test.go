package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/broker"
	"github.com/keyfort/provider-bridge/internal/logger"
	"github.com/keyfort/provider-bridge/internal/permissions"
)

func newPermissionRouter(t *testing.T, store permissions.Store, hub *broker.Hub) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()

	brk := broker.New(store, hub, zap.NewNop())
	handler := NewPermissionHandler(store, brk, hub)

	router := gin.New()
	router.GET("/permissions/requests", handler.ListPendingRequests)
	router.POST("/permissions/requests/:id/decision", handler.DecideRequest)
	router.GET("/permissions", handler.ListPermissions)
	router.DELETE("/permissions", handler.RevokePermission)
	return router
}

func TestPermissionHandler_PendingAndDecision(t *testing.T) {
	store := permissions.NewMemoryStore()
	hub := broker.NewHub(zap.NewNop())
	router := newPermissionRouter(t, store, hub)

	// Park a prompt on the hub the way the broker would.
	promptDone := make(chan broker.Decision, 1)
	go func() {
		d, err := hub.PromptForDecision(context.Background(), allowRecord())
		assert.NoError(t, err)
		promptDone <- d
	}()

	var pendingID string
	require.Eventually(t, func() bool {
		pending := hub.Pending()
		if len(pending) != 1 {
			return false
		}
		pendingID = pending[0].ID
		return true
	}, time.Second, 5*time.Millisecond)

	t.Run("lists the parked prompt", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/permissions/requests", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Object string                 `json:"object"`
			Data   []broker.PendingPrompt `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, pendingID, resp.Data[0].ID)
		assert.Equal(t, testOrigin, resp.Data[0].Request.Origin)
	})

	t.Run("delivers the decision to the waiting prompt", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"state":"allow"}`))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/permissions/requests/"+pendingID+"/decision", body)
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		select {
		case d := <-promptDone:
			assert.Equal(t, broker.DecisionAllow, d)
		case <-time.After(time.Second):
			t.Fatal("prompt was never resolved")
		}
	})

	t.Run("second decision for the same prompt is a 404", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"state":"deny"}`))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/permissions/requests/"+pendingID+"/decision", body)
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPermissionHandler_DecideRequestValidation(t *testing.T) {
	store := permissions.NewMemoryStore()
	hub := broker.NewHub(zap.NewNop())
	router := newPermissionRouter(t, store, hub)

	t.Run("rejects states other than allow or deny", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"state":"maybe"}`))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/permissions/requests/some-id/decision", body)
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a body without a state", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{}`))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/permissions/requests/some-id/decision", body)
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPermissionHandler_ListAndRevoke(t *testing.T) {
	store := permissions.NewMemoryStore()
	hub := broker.NewHub(zap.NewNop())
	router := newPermissionRouter(t, store, hub)

	record := allowRecord()
	require.NoError(t, store.Put(context.Background(), record))

	t.Run("lists grants for an origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/permissions?origin="+testOrigin, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data []permissions.PermissionRequest `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, record.Key, resp.Data[0].Key)
	})

	t.Run("requires the origin query parameter", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/permissions", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("revokes a grant", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/permissions?key="+url.QueryEscape(record.Key), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		_, err := store.Get(context.Background(), record.Key)
		assert.ErrorIs(t, err, permissions.ErrNotFound)
	})

	t.Run("revoking an unknown key is a 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/permissions?key="+url.QueryEscape(record.Key), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("revoking without a key is a 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/permissions", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
