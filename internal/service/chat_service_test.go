package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
	"github.com/inamkkkk/take-it-and-go/internal/participant"
	"github.com/inamkkkk/take-it-and-go/internal/repository"
)

type fixture struct {
	hub      *hub.Hub
	repo     repository.MessageRepository
	registry *recordingRegistry
	svc      ChatService
}

func newFixture(t *testing.T, repo repository.MessageRepository, dir participant.Directory) *fixture {
	t.Helper()
	h := hub.NewHub(config.WebSocketConfig{SendBufferSize: 32})
	reg := newRecordingRegistry()
	chatCfg := config.ChatConfig{HistoryLimit: 50, MaxBodyLength: 20, StoreTimeout: time.Second}

	svc := NewChatService(Dependencies{
		Hub:       h,
		Repo:      repo,
		History:   NewHistoryService(repo, nil, 0, dir, time.Second),
		Directory: dir,
		Registry:  reg,
		IDs:       &sequenceIDs{},
		Config:    chatCfg,
	})
	return &fixture{hub: h, repo: repo, registry: reg, svc: svc}
}

func (f *fixture) connect(t *testing.T, userID string, role domain.Role) *hub.Client {
	t.Helper()
	c := hub.NewClient("conn-"+userID, f.hub, nil, config.WebSocketConfig{SendBufferSize: 32})
	require.NoError(t, f.svc.HandleConnect(context.Background(), c, domain.Identity{UserID: userID, Role: role}))
	return c
}

func TestChatService_DirectChatScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryMessageRepository(), participant.OpenDirectory{})

	// Given U1 and U2 joined their direct chat
	u1 := f.connect(t, "u1", domain.RoleShipper)
	u2 := f.connect(t, "u2", domain.RoleTraveler)

	j1, err := f.svc.HandleJoinRoom(ctx, u1, domain.JoinRequest{PeerID: "u2"})
	req.NoError(err)
	req.True(j1.Created)
	j2, err := f.svc.HandleJoinRoom(ctx, u2, domain.JoinRequest{PeerID: "u1"})
	req.NoError(err)
	req.False(j2.Created)
	req.Equal(domain.RoomKey("chat_u1_u2"), j1.Room)
	req.Equal(j1.Room, j2.Room)
	req.True(f.registry.has(j1.Room))

	// When U1 sends hello
	msg, err := f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{ReceiverID: "u2", Body: "  hello  "})
	req.NoError(err)
	req.Equal("hello", msg.Body)
	req.Equal("u2", msg.ReceiverID)
	req.Equal([]string{"u1"}, msg.ReadBy)

	// Then both receive exactly one receiveMessage read by U1 only
	for _, c := range []*hub.Client{u1, u2} {
		got := framesOfType(frames(t, c), domain.MsgTypeReceiveMessage)
		req.Len(got, 1)
		req.Equal(msg.ID, got[0]["id"])
		req.Equal("chat_u1_u2", got[0]["room"])
		req.Equal([]interface{}{"u1"}, got[0]["readBy"])
		req.Equal(map[string]interface{}{"id": "u1", "role": "shipper"}, got[0]["senderInfo"])
	}

	// When U2 marks it read
	receipt, err := f.svc.HandleMarkRead(ctx, u2, msg.ID)
	req.NoError(err)
	req.False(receipt.AlreadyRead)
	req.Equal(j1.Room, receipt.Room)

	// Then both receive messageRead and the store shows both readers
	for _, c := range []*hub.Client{u1, u2} {
		got := framesOfType(frames(t, c), domain.MsgTypeMessageRead)
		req.Len(got, 1)
		req.Equal(msg.ID, got[0]["messageId"])
		req.Equal("u2", got[0]["readerId"])
	}
	stored, err := f.repo.Query(ctx, domain.DirectConversation("u2", "u1"), 0)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal([]string{"u1", "u2"}, stored[0].ReadBy)

	// And a second mark is reported as already read without a broadcast
	receipt, err = f.svc.HandleMarkRead(ctx, u2, msg.ID)
	req.NoError(err)
	req.True(receipt.AlreadyRead)
	req.Empty(frames(t, u1))
}

func TestChatService_SendBeforeJoin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryMessageRepository(), participant.OpenDirectory{})
	u1 := f.connect(t, "u1", domain.RoleShipper)

	_, err := f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{ReceiverID: "u2", Body: "hi"})
	req.ErrorIs(err, domain.ErrNotInRoom)

	stored, err := f.repo.Query(ctx, domain.DirectConversation("u1", "u2"), 0)
	req.NoError(err)
	req.Empty(stored)
}

func TestChatService_NoBroadcastWithoutPersistence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	repo := new(MockRepository)
	repo.On("Query", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Message{}, nil)
	repo.On("Append", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(errStoreDown)

	f := newFixture(t, repo, participant.OpenDirectory{})
	u1 := f.connect(t, "u1", domain.RoleShipper)
	u2 := f.connect(t, "u2", domain.RoleTraveler)
	_, err := f.svc.HandleJoinRoom(ctx, u1, domain.JoinRequest{DeliveryKey: "del-1"})
	req.NoError(err)
	_, err = f.svc.HandleJoinRoom(ctx, u2, domain.JoinRequest{DeliveryKey: "del-1"})
	req.NoError(err)

	_, err = f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{DeliveryKey: "del-1", Body: "hello"})
	req.ErrorIs(err, domain.ErrPersistenceFailure)
	assert.Empty(t, frames(t, u1))
	assert.Empty(t, frames(t, u2))
	repo.AssertNumberOfCalls(t, "Append", 1)
}

func TestChatService_SendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryMessageRepository(), participant.OpenDirectory{})
	u1 := f.connect(t, "u1", domain.RoleShipper)
	_, err := f.svc.HandleJoinRoom(ctx, u1, domain.JoinRequest{DeliveryKey: "del-1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     domain.SendRequest
		wantErr error
	}{
		{"empty body", domain.SendRequest{DeliveryKey: "del-1", Body: "   "}, domain.ErrInvalidMessage},
		{"body too long", domain.SendRequest{DeliveryKey: "del-1", Body: strings.Repeat("x", 21)}, domain.ErrInvalidMessage},
		{"no descriptor", domain.SendRequest{Body: "hi"}, domain.ErrInvalidDescriptor},
		{"room key mismatch", domain.SendRequest{DeliveryKey: "del-1", RoomKey: "delivery_del-2", Body: "hi"}, domain.ErrInvalidDescriptor},
		{"room not joined", domain.SendRequest{DeliveryKey: "del-2", Body: "hi"}, domain.ErrNotInRoom},
		{"unknown room key", domain.SendRequest{RoomKey: "delivery_del-2", Body: "hi"}, domain.ErrNotInRoom},
		{"self chat", domain.SendRequest{ReceiverID: "u1", Body: "hi"}, domain.ErrInvalidDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.HandleSendMessage(ctx, u1, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("joined room key", func(t *testing.T) {
		msg, err := f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{RoomKey: "delivery_del-1", Body: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "del-1", msg.DeliveryKey)
		assert.Empty(t, msg.ReceiverID)
	})
}

func TestChatService_JoinRoom(t *testing.T) {
	ctx := context.Background()
	dir := &stubDirectory{members: map[string][]string{"del-1": {"s1", "t1"}}}
	f := newFixture(t, repository.NewMemoryMessageRepository(), dir)

	t.Run("participant joins delivery room", func(t *testing.T) {
		c := f.connect(t, "s1", domain.RoleShipper)
		res, err := f.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{DeliveryKey: "del-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.RoomKey("delivery_del-1"), res.Room)
		assert.Empty(t, res.History)

		again, err := f.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{DeliveryKey: "del-1"})
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, 1, f.hub.RoomSize(res.Room))
	})

	t.Run("outsider is denied", func(t *testing.T) {
		c := f.connect(t, "x1", domain.RoleTraveler)
		_, err := f.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{DeliveryKey: "del-1"})
		assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("both descriptor forms", func(t *testing.T) {
		c := f.connect(t, "x2", domain.RoleTraveler)
		_, err := f.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{DeliveryKey: "del-1", PeerID: "s1"})
		assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)

		_, err = f.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{})
		assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)
	})

	t.Run("self chat", func(t *testing.T) {
		c := f.connect(t, "x3", domain.RoleTraveler)
		_, err := f.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{PeerID: "x3"})
		assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)
	})

	t.Run("directory failure", func(t *testing.T) {
		broken := newFixture(t, repository.NewMemoryMessageRepository(), &stubDirectory{err: errStoreDown})
		c := broken.connect(t, "s1", domain.RoleShipper)
		_, err := broken.svc.HandleJoinRoom(ctx, c, domain.JoinRequest{DeliveryKey: "del-1"})
		assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
	})
}

func TestChatService_JoinReturnsHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryMessageRepository(), participant.OpenDirectory{})

	u1 := f.connect(t, "u1", domain.RoleShipper)
	_, err := f.svc.HandleJoinRoom(ctx, u1, domain.JoinRequest{DeliveryKey: "del-1"})
	req.NoError(err)
	first, err := f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{DeliveryKey: "del-1", Body: "one"})
	req.NoError(err)
	second, err := f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{DeliveryKey: "del-1", Body: "two"})
	req.NoError(err)

	u2 := f.connect(t, "u2", domain.RoleTraveler)
	res, err := f.svc.HandleJoinRoom(ctx, u2, domain.JoinRequest{DeliveryKey: "del-1"})
	req.NoError(err)
	req.Len(res.History, 2)
	req.Equal(first.ID, res.History[0].ID)
	req.Equal(second.ID, res.History[1].ID)
}

func TestChatService_MarkRead(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryMessageRepository()
	f := newFixture(t, repo, participant.OpenDirectory{})

	require.NoError(t, repo.Append(ctx, &domain.Message{
		ID: "direct-1", SenderID: "u1", ReceiverID: "u2", Body: "hi",
		SentAt: time.Now().UTC(), ReadBy: []string{"u1"},
	}))
	require.NoError(t, repo.Append(ctx, &domain.Message{
		ID: "orphan-1", SenderID: "u1", Body: "lost",
		SentAt: time.Now().UTC(), ReadBy: []string{},
	}))

	u1 := f.connect(t, "u1", domain.RoleShipper)
	u3 := f.connect(t, "u3", domain.RoleTraveler)

	t.Run("empty id", func(t *testing.T) {
		_, err := f.svc.HandleMarkRead(ctx, u1, " ")
		assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := f.svc.HandleMarkRead(ctx, u1, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("outsider", func(t *testing.T) {
		_, err := f.svc.HandleMarkRead(ctx, u3, "direct-1")
		assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("sender already read", func(t *testing.T) {
		receipt, err := f.svc.HandleMarkRead(ctx, u1, "direct-1")
		require.NoError(t, err)
		assert.True(t, receipt.AlreadyRead)
	})

	t.Run("unresolvable room keeps receipt without broadcast", func(t *testing.T) {
		frames(t, u1)
		receipt, err := f.svc.HandleMarkRead(ctx, u1, "orphan-1")
		require.NoError(t, err)
		assert.False(t, receipt.AlreadyRead)
		assert.Empty(t, receipt.Room)
		assert.Empty(t, frames(t, u1))

		stored, err := repo.Find(ctx, "orphan-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, stored.ReadBy)
	})
}

func TestChatService_AuthAndDisconnect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryMessageRepository(), participant.OpenDirectory{})

	u1 := f.connect(t, "u1", domain.RoleShipper)
	req.ErrorIs(f.svc.HandleAuth(ctx, u1), domain.ErrAlreadyAuthenticated)

	res, err := f.svc.HandleJoinRoom(ctx, u1, domain.JoinRequest{PeerID: "u2"})
	req.NoError(err)
	req.True(f.registry.has(res.Room))

	// When the only member disconnects, twice
	f.svc.HandleDisconnect(ctx, u1)
	f.svc.HandleDisconnect(ctx, u1)

	// Then the room is gone from the hub and the directory
	req.Equal(0, f.hub.RoomSize(res.Room))
	req.Equal(0, f.hub.ClientCount())
	req.False(f.registry.has(res.Room))

	_, err = f.svc.HandleSendMessage(ctx, u1, domain.SendRequest{ReceiverID: "u2", Body: "late"})
	req.Error(err)
}
