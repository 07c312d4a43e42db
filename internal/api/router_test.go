package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fusen-app/fusen/internal/app"
	iauth "github.com/fusen-app/fusen/internal/auth"
	"github.com/fusen-app/fusen/internal/database/testutil"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "fusen"})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.RateLimit = 10000
	cfg.Server.RateWindow = time.Minute
	cfg.Invites.TTL = 24 * time.Hour
	cfg.Invites.LinkBase = "http://localhost:5173"
	cfg.Metrics.Enabled = true

	router, err := NewRouter(db, jwtSvc, cfg)
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), "body: %s", w.Body.String())
	require.True(t, payload.Success, "body: %s", w.Body.String())
	return payload.Data
}

func registerUser(t *testing.T, router *gin.Engine, email, name string) (userID, token string) {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"password": "s3cret!",
		"name":     name,
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	data := decodeData(t, w)
	user := data["user"].(map[string]any)
	return user["id"].(string), data["token"].(string)
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/boards", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterLoginAndMe(t *testing.T) {
	router := newTestRouter(t)

	userID, token := registerUser(t, router, "alice@example.com", "Alice")
	require.NotEmpty(t, userID)

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "s3cret!",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	user := data["user"].(map[string]any)
	require.Equal(t, "alice@example.com", user["email"])
	require.NotContains(t, user, "password_hash")

	// Duplicate email
	w = doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    "alice@example.com",
		"password": "another1",
		"name":     "Imposter",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Wrong password
	w = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBoardAndTaskFlow(t *testing.T) {
	router := newTestRouter(t)

	_, aliceToken := registerUser(t, router, "alice@example.com", "Alice")
	bobID, bobToken := registerUser(t, router, "bob@example.com", "Bob")

	// Alice creates a board.
	w := doJSON(t, router, http.MethodPost, "/api/boards", aliceToken, gin.H{
		"name":        "Sprint 1",
		"description": "First sprint",
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	board := decodeData(t, w)["board"].(map[string]any)
	boardID := board["id"].(string)

	// Bob cannot see it.
	w = doJSON(t, router, http.MethodGet, "/api/boards/"+boardID, bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Alice invites, Bob accepts.
	w = doJSON(t, router, http.MethodPost, "/api/members/invite", aliceToken, gin.H{"boardId": boardID})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	inviteData := decodeData(t, w)
	token := inviteData["token"].(string)
	require.Contains(t, inviteData["inviteLink"].(string), token)

	w = doJSON(t, router, http.MethodPost, "/api/members/accept-invite/"+token, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	// Second redemption of the same token fails.
	w = doJSON(t, router, http.MethodPost, "/api/members/accept-invite/"+token, bobToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Bob now sees the board and its two members.
	w = doJSON(t, router, http.MethodGet, "/api/boards/"+boardID, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	members := decodeData(t, w)["members"].([]any)
	require.Len(t, members, 2)

	// Bob creates a task assigned to himself.
	w = doJSON(t, router, http.MethodPost, "/api/tasks", bobToken, gin.H{
		"boardId":    boardID,
		"title":      "Write tests",
		"assigneeId": bobID,
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	task := decodeData(t, w)["task"].(map[string]any)
	taskID := task["id"].(string)
	require.Equal(t, "Bob", task["assignee_name"])
	require.Equal(t, float64(0), task["position"])

	// Move it to another lane.
	w = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/tasks/%s/status", taskID), aliceToken, gin.H{
		"status": "in_progress",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "in_progress", decodeData(t, w)["task"].(map[string]any)["status"])

	// Clear the assignee with an explicit null.
	w = doJSON(t, router, http.MethodPut, "/api/tasks/"+taskID, bobToken, map[string]any{
		"assigneeId": nil,
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	require.Nil(t, decodeData(t, w)["task"].(map[string]any)["assignee_id"])

	// Reorder.
	w = doJSON(t, router, http.MethodPost, "/api/tasks/reorder", aliceToken, gin.H{
		"boardId": boardID,
		"updates": []gin.H{{"taskId": taskID, "status": "done", "position": 0}},
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/tasks/board/"+boardID, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decodeData(t, w)["tasks"].([]any)
	require.Len(t, tasks, 1)
	require.Equal(t, "done", tasks[0].(map[string]any)["status"])

	// Bob (plain member) cannot rename the board; Alice can.
	w = doJSON(t, router, http.MethodPut, "/api/boards/"+boardID, bobToken, gin.H{"name": "Hijacked"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPut, "/api/boards/"+boardID, aliceToken, gin.H{"name": "Sprint 2"})
	require.Equal(t, http.StatusOK, w.Code)

	// Role management: Alice promotes Bob, then Bob leaves.
	w = doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/members/%s/members/%s", boardID, bobID), aliceToken, gin.H{
		"role": "admin",
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/members/%s/leave", boardID), bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Owner cannot leave.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/members/%s/leave", boardID), aliceToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Only the owner can delete.
	w = doJSON(t, router, http.MethodDelete, "/api/boards/"+boardID, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/boards/"+boardID, aliceToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebsocketEndpointRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/ws", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Query-string tokens are deliberately ignored.
	_, token := registerUser(t, router, "alice@example.com", "Alice")
	w = doJSON(t, router, http.MethodGet, "/ws?token="+token, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
