package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamkkkk/take-it-and-go/internal/auth"
	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
	"github.com/inamkkkk/take-it-and-go/internal/idgen"
	"github.com/inamkkkk/take-it-and-go/internal/participant"
	"github.com/inamkkkk/take-it-and-go/internal/repository"
	"github.com/inamkkkk/take-it-and-go/internal/service"
	"github.com/inamkkkk/take-it-and-go/pkg/jwt"
	"github.com/inamkkkk/take-it-and-go/pkg/middleware"
)

const testSecret = "test-secret"

type testEnv struct {
	srv     *httptest.Server
	router  *gin.Engine
	manager *jwt.Manager
	repo    repository.MessageRepository
	hub     *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test decorate the chat service seen by the
// WebSocket handler.
func newTestEnvWith(t *testing.T, wrap func(service.ChatService) service.ChatService) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := jwt.NewManager(testSecret, time.Hour)
	require.NoError(t, err)
	verifier := auth.NewJWTVerifier(manager)

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		MaxMessageSize: 8192,
		SendBufferSize: 32,
	}
	h := hub.NewHub(wsCfg)
	repo := repository.NewMemoryMessageRepository()
	history := service.NewHistoryService(repo, nil, 0, participant.OpenDirectory{}, time.Second)
	ids, err := idgen.New(config.IDGenConfig{Type: "ulid"})
	require.NoError(t, err)

	svc := service.NewChatService(service.Dependencies{
		Hub:     h,
		Repo:    repo,
		History: history,
		IDs:     ids,
		Config:  config.ChatConfig{HistoryLimit: 50, MaxBodyLength: 1000, StoreTimeout: time.Second},
	})

	if wrap != nil {
		svc = wrap(svc)
	}

	router := gin.New()
	NewWSHandler(h, svc, verifier, wsCfg).RegisterRoutes(router)
	NewHTTPHandler(history, middleware.NewAuthMiddleware(verifier), h).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
	})
	return &testEnv{srv: srv, router: router, manager: manager, repo: repo, hub: h}
}

func (e *testEnv) token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token, _, err := e.manager.GenerateToken(userID, string(role))
	require.NoError(t, err)
	return token
}

func (e *testEnv) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/chat/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestWebSocket_RejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := env.dial(t, "")
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired token", func(t *testing.T) {
		past, err := jwt.NewManager(testSecret, time.Minute, jwt.WithClock(func() time.Time {
			return time.Now().Add(-time.Hour)
		}))
		require.NoError(t, err)
		token, _, err := past.GenerateToken("u1", "shipper")
		require.NoError(t, err)

		_, resp, err := env.dial(t, token)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, 0, env.hub.ClientCount())
	})

	t.Run("foreign secret", func(t *testing.T) {
		other, err := jwt.NewManager("another-secret", time.Hour)
		require.NoError(t, err)
		token, _, err := other.GenerateToken("u1", "shipper")
		require.NoError(t, err)

		_, resp, err := env.dial(t, token)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestWebSocket_DirectChatRoundTrip(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	u1, _, err := env.dial(t, env.token(t, "u1", domain.RoleShipper))
	req.NoError(err)
	u2, _, err := env.dial(t, env.token(t, "u2", domain.RoleTraveler))
	req.NoError(err)

	// Given both users joined their direct chat
	writeFrame(t, u1, map[string]interface{}{"type": "joinRoom", "ackId": "j1", "peerId": "u2"})
	ack := readFrame(t, u1)
	req.Equal("ack", ack["type"])
	req.Equal("j1", ack["ackId"])
	req.Equal("ok", ack["status"])
	req.Equal("chat_u1_u2", ack["room"])
	history := readFrame(t, u1)
	req.Equal("chatHistory", history["type"])
	req.Empty(history["messages"])

	writeFrame(t, u2, map[string]interface{}{"type": "joinRoom", "ackId": "j2", "peerId": "u1"})
	req.Equal("ok", readFrame(t, u2)["status"])
	req.Equal("chatHistory", readFrame(t, u2)["type"])

	// When U1 sends hello
	writeFrame(t, u1, map[string]interface{}{"type": "sendMessage", "ackId": "s1", "receiverId": "u2", "body": "hello"})

	// Then both receive it, and U1 gets the ack after the broadcast
	got := readFrame(t, u1)
	req.Equal("receiveMessage", got["type"])
	req.Equal("hello", got["body"])
	req.Equal([]interface{}{"u1"}, got["readBy"])
	messageID := got["id"]

	ack = readFrame(t, u1)
	req.Equal("ack", ack["type"])
	req.Equal("s1", ack["ackId"])
	req.Equal(messageID, ack["messageId"])

	got = readFrame(t, u2)
	req.Equal("receiveMessage", got["type"])
	req.Equal(messageID, got["id"])

	// When U2 marks it read
	writeFrame(t, u2, map[string]interface{}{"type": "markRead", "ackId": "r1", "messageId": messageID})
	read := readFrame(t, u2)
	req.Equal("messageRead", read["type"])
	req.Equal("u2", read["readerId"])
	ack = readFrame(t, u2)
	req.Equal("ok", ack["status"])
	req.Equal(false, ack["alreadyRead"])

	read = readFrame(t, u1)
	req.Equal("messageRead", read["type"])
	req.Equal(messageID, read["messageId"])

	stored, err := env.repo.Find(context.Background(), messageID.(string))
	req.NoError(err)
	req.Equal([]string{"u1", "u2"}, stored.ReadBy)
}

func TestWebSocket_ErrorAcks(t *testing.T) {
	env := newTestEnv(t)
	conn, _, err := env.dial(t, env.token(t, "u1", domain.RoleShipper))
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame map[string]interface{}
		code  string
	}{
		{"send before join", map[string]interface{}{"type": "sendMessage", "ackId": "1", "receiverId": "u2", "body": "hi"}, domain.ErrCodeNotInRoom},
		{"re-auth", map[string]interface{}{"type": "auth", "ackId": "2", "token": "x"}, domain.ErrCodeAlreadyAuthenticated},
		{"self chat", map[string]interface{}{"type": "joinRoom", "ackId": "3", "peerId": "u1"}, domain.ErrCodeInvalidDescriptor},
		{"unknown type", map[string]interface{}{"type": "dance", "ackId": "4"}, domain.ErrCodeBadRequest},
		{"unknown message", map[string]interface{}{"type": "markRead", "ackId": "5", "messageId": "nope"}, domain.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFrame(t, conn, tt.frame)
			ack := readFrame(t, conn)
			assert.Equal(t, "ack", ack["type"])
			assert.Equal(t, tt.frame["ackId"], ack["ackId"])
			assert.Equal(t, "error", ack["status"])
			assert.Equal(t, tt.code, ack["code"])
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		ack := readFrame(t, conn)
		assert.Equal(t, domain.ErrCodeBadRequest, ack["code"])
	})

	t.Run("ping", func(t *testing.T) {
		writeFrame(t, conn, map[string]interface{}{"type": "ping"})
		assert.Equal(t, "pong", readFrame(t, conn)["type"])
	})
}

// panickingMarkRead fails every markRead with a panic.
type panickingMarkRead struct {
	service.ChatService
}

func (panickingMarkRead) HandleMarkRead(context.Context, *hub.Client, string) (*domain.ReadReceipt, error) {
	panic("read receipt store exploded")
}

func TestWebSocket_PanicBecomesInternalErrorAck(t *testing.T) {
	req := require.New(t)
	env := newTestEnvWith(t, func(svc service.ChatService) service.ChatService {
		return panickingMarkRead{ChatService: svc}
	})
	conn, _, err := env.dial(t, env.token(t, "u1", domain.RoleShipper))
	req.NoError(err)

	// When the markRead handler panics
	writeFrame(t, conn, map[string]interface{}{"type": "markRead", "ackId": "9", "messageId": "m1"})

	// Then the client gets exactly one internal error ack
	ack := readFrame(t, conn)
	req.Equal("ack", ack["type"])
	req.Equal("9", ack["ackId"])
	req.Equal("markRead", ack["event"])
	req.Equal("error", ack["status"])
	req.Equal(domain.ErrCodeInternalError, ack["code"])

	// And the connection keeps serving events
	writeFrame(t, conn, map[string]interface{}{"type": "ping"})
	req.Equal("pong", readFrame(t, conn)["type"])
	req.Equal(1, env.hub.ClientCount())
}

func TestHTTP_History(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, body := range []string{"first", "second", "third"} {
		require.NoError(t, env.repo.Append(ctx, &domain.Message{
			ID:         fmt.Sprintf("m%d", i+1),
			SenderID:   "u1",
			ReceiverID: "u2",
			Body:       body,
			SentAt:     base.Add(time.Duration(i) * time.Second),
			ReadBy:     []string{"u1"},
		}))
	}

	get := func(token, query string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?"+query, nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, r)
		return w
	}

	t.Run("participant reads ascending history", func(t *testing.T) {
		w := get(env.token(t, "u2", domain.RoleTraveler), "peerId=u1&limit=2")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Success bool `json:"success"`
			Data    struct {
				Room     string           `json:"room"`
				Messages []domain.Message `json:"messages"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "chat_u1_u2", body.Data.Room)
		require.Len(t, body.Data.Messages, 2)
		assert.Equal(t, "second", body.Data.Messages[0].Body)
		assert.Equal(t, "third", body.Data.Messages[1].Body)
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		w := get(env.token(t, "u3", domain.RoleTraveler), "peerA=u1&peerB=u2")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ambiguous descriptor", func(t *testing.T) {
		w := get(env.token(t, "u1", domain.RoleShipper), "deliveryKey=del-1&peerId=u2")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		w := get(env.token(t, "u1", domain.RoleShipper), "peerId=u2&limit=zero")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no credential", func(t *testing.T) {
		w := get("", "peerId=u2")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
