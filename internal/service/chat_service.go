package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/inamkkkk/take-it-and-go/internal/audit"
	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
	"github.com/inamkkkk/take-it-and-go/internal/idgen"
	"github.com/inamkkkk/take-it-and-go/internal/metrics"
	"github.com/inamkkkk/take-it-and-go/internal/participant"
	"github.com/inamkkkk/take-it-and-go/internal/registry"
	"github.com/inamkkkk/take-it-and-go/internal/repository"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
	"github.com/inamkkkk/take-it-and-go/pkg/pubsub"
)

const registryTimeout = 2 * time.Second

// Dependencies are the collaborators of the chat service. Publisher may be
// nil; Registry defaults to a no-op.
type Dependencies struct {
	Hub       *hub.Hub
	Repo      repository.MessageRepository
	History   HistoryService
	Directory participant.Directory
	Registry  registry.Registry
	Publisher pubsub.Publisher
	IDs       idgen.Generator
	Config    config.ChatConfig
}

type chatService struct {
	hub       *hub.Hub
	repo      repository.MessageRepository
	history   HistoryService
	access    accessChecker
	registry  registry.Registry
	publisher pubsub.Publisher
	ids       idgen.Generator
	config    config.ChatConfig
	now       func() time.Time
}

// NewChatService wires the service and installs it as the hub's room
// observer, so room creation and pruning reach the registry.
func NewChatService(deps Dependencies) ChatService {
	if deps.Registry == nil {
		deps.Registry = registry.NoopRegistry{}
	}
	if deps.Directory == nil {
		deps.Directory = participant.OpenDirectory{}
	}
	if deps.Config.StoreTimeout <= 0 {
		deps.Config.StoreTimeout = 5 * time.Second
	}

	s := &chatService{
		hub:       deps.Hub,
		repo:      deps.Repo,
		history:   deps.History,
		access:    accessChecker{directory: deps.Directory, timeout: deps.Config.StoreTimeout},
		registry:  deps.Registry,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		config:    deps.Config,
		now:       time.Now,
	}
	deps.Hub.SetObserver(s)
	return s
}

func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client, identity domain.Identity) error {
	if err := s.hub.Register(c, identity); err != nil {
		return err
	}
	audit.Log(ctx, audit.ActionConnect, identity.UserID, "client connected")
	return nil
}

// HandleAuth rejects re-authentication. Credentials are only accepted
// during the handshake.
func (s *chatService) HandleAuth(ctx context.Context, c *hub.Client) error {
	switch c.Session.State() {
	case domain.StateAuthenticated, domain.StateJoined:
		return fmt.Errorf("%w: credentials are bound at connect", domain.ErrAlreadyAuthenticated)
	case domain.StateClosed:
		return domain.ErrConnectionClosed
	default:
		return domain.ErrUnauthenticated
	}
}

func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, req domain.JoinRequest) (*domain.JoinResult, error) {
	if !c.Session.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}
	identity := c.Session.Identity()

	if (req.DeliveryKey == "") == (req.PeerID == "") {
		return nil, fmt.Errorf("%w: exactly one of deliveryKey or peerId is required", domain.ErrInvalidDescriptor)
	}

	conv := domain.DeliveryConversation(req.DeliveryKey)
	if req.PeerID != "" {
		conv = domain.DirectConversation(identity.UserID, req.PeerID)
	}
	key, err := domain.Resolve(conv)
	if err != nil {
		return nil, err
	}
	if err := s.access.authorize(ctx, identity, conv); err != nil {
		return nil, err
	}

	created, err := s.hub.Join(c, key, conv)
	if err != nil {
		return nil, err
	}

	result := &domain.JoinResult{Room: key, Created: created}
	if s.config.HistoryLimit > 0 {
		history, err := s.history.RoomHistory(ctx, key, conv, s.config.HistoryLimit)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomKey, key.String()).Msg("failed to load history on join")
		}
		result.History = history
	}

	audit.LogTarget(ctx, audit.ActionJoinRoom, identity.UserID, key.String(), "joined room")
	return result, nil
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, req domain.SendRequest) (*domain.Message, error) {
	if !c.Session.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if c.Session.RoomCount() == 0 {
		return nil, fmt.Errorf("%w: join a room before sending", domain.ErrNotInRoom)
	}
	identity := c.Session.Identity()

	conv, err := s.sendConversation(c, identity, req)
	if err != nil {
		return nil, err
	}
	key, err := domain.Resolve(conv)
	if err != nil {
		return nil, err
	}
	if req.RoomKey != "" && req.RoomKey != key {
		return nil, fmt.Errorf("%w: roomKey %s does not match %s", domain.ErrInvalidDescriptor, req.RoomKey, key)
	}
	if !c.Session.IsJoined(key) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotInRoom, key)
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is empty", domain.ErrInvalidMessage)
	}
	if utf8.RuneCountInString(body) > s.config.MaxBodyLength {
		return nil, fmt.Errorf("%w: body exceeds %d characters", domain.ErrInvalidMessage, s.config.MaxBodyLength)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	msg := &domain.Message{
		ID:          id,
		SenderID:    identity.UserID,
		ReceiverID:  req.ReceiverID,
		DeliveryKey: conv.DeliveryKey,
		Body:        body,
		SentAt:      s.now().UTC().Truncate(time.Millisecond),
		ReadBy:      []string{identity.UserID},
	}
	if !conv.IsDelivery() {
		msg.ReceiverID = otherPeer(conv, identity.UserID)
	}

	// The write outlives a disconnect of the sender.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
	defer cancel()

	start := time.Now()
	err = s.repo.Append(storeCtx, msg)
	metrics.ObserveStore("append", start)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("append").Inc()
		return nil, fmt.Errorf("%w: failed to store message: %v", domain.ErrPersistenceFailure, err)
	}

	if _, err := s.hub.Broadcast(key, domain.NewReceiveMessage(key, msg, identity)); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to broadcast message")
	}
	metrics.MessagesSent.WithLabelValues(key.Kind()).Inc()

	s.history.Invalidate(storeCtx, key)
	s.publish(storeCtx, key, pubsub.EventMessageSent, &pubsub.MessageSentPayload{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		DeliveryKey: msg.DeliveryKey,
		SentAt:      msg.SentAt.UnixMilli(),
	})
	audit.LogTarget(ctx, audit.ActionSendMessage, identity.UserID, msg.ID, "message sent")
	return msg, nil
}

// sendConversation picks the conversation a send addresses: deliveryKey,
// then receiverId, then the descriptor stored for a joined roomKey.
func (s *chatService) sendConversation(c *hub.Client, identity domain.Identity, req domain.SendRequest) (domain.Conversation, error) {
	switch {
	case req.DeliveryKey != "":
		if req.ReceiverID != "" && !domain.ValidUserID(req.ReceiverID) {
			return domain.Conversation{}, fmt.Errorf("%w: malformed receiverId", domain.ErrInvalidDescriptor)
		}
		return domain.DeliveryConversation(req.DeliveryKey), nil
	case req.ReceiverID != "":
		return domain.DirectConversation(identity.UserID, req.ReceiverID), nil
	case req.RoomKey != "":
		conv, ok := c.Session.Conversation(req.RoomKey)
		if !ok {
			return domain.Conversation{}, fmt.Errorf("%w: %s", domain.ErrNotInRoom, req.RoomKey)
		}
		return conv, nil
	default:
		return domain.Conversation{}, fmt.Errorf("%w: one of deliveryKey, receiverId or roomKey is required", domain.ErrInvalidDescriptor)
	}
}

func otherPeer(conv domain.Conversation, userID string) string {
	if conv.PeerA == userID {
		return conv.PeerB
	}
	return conv.PeerA
}

func (s *chatService) HandleMarkRead(ctx context.Context, c *hub.Client, messageID string) (*domain.ReadReceipt, error) {
	if !c.Session.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}
	identity := c.Session.Identity()

	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, fmt.Errorf("%w: messageId is required", domain.ErrInvalidMessage)
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
	defer cancel()

	start := time.Now()
	msg, err := s.repo.Find(storeCtx, messageID)
	metrics.ObserveStore("find", start)
	if err != nil {
		return nil, s.storeError("find", err)
	}
	if err := s.access.authorizeMessage(ctx, identity, msg); err != nil {
		return nil, err
	}

	receipt := &domain.ReadReceipt{MessageID: msg.ID, ReaderID: identity.UserID}
	if msg.IsReadBy(identity.UserID) {
		metrics.ReadReceipts.WithLabelValues("already_read").Inc()
		receipt.AlreadyRead = true
		receipt.ReadBy = msg.ReadBy
		receipt.Room, _ = msg.RoomKey()
		return receipt, nil
	}

	start = time.Now()
	updated, added, err := s.repo.MarkReadBy(storeCtx, msg.ID, identity.UserID)
	metrics.ObserveStore("mark_read", start)
	if err != nil {
		return nil, s.storeError("mark_read", err)
	}
	receipt.ReadBy = updated.ReadBy
	if !added {
		metrics.ReadReceipts.WithLabelValues("already_read").Inc()
		receipt.AlreadyRead = true
		receipt.Room, _ = updated.RoomKey()
		return receipt, nil
	}
	metrics.ReadReceipts.WithLabelValues("marked").Inc()
	audit.LogTarget(ctx, audit.ActionMarkRead, identity.UserID, msg.ID, "message marked read")

	key, err := updated.RoomKey()
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("read receipt stored but room unresolved, skipping broadcast")
		return receipt, nil
	}
	receipt.Room = key

	if _, err := s.hub.Broadcast(key, domain.NewMessageRead(key, msg.ID, identity.UserID)); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to broadcast read receipt")
	}

	s.history.Invalidate(storeCtx, key)
	s.publish(storeCtx, key, pubsub.EventMessageRead, &pubsub.MessageReadPayload{
		MessageID: msg.ID,
		ReaderID:  identity.UserID,
		ReadBy:    updated.ReadBy,
	})
	return receipt, nil
}

func (s *chatService) storeError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	metrics.PersistenceFailures.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	s.hub.Unregister(c)

	identity := c.Session.Identity()
	if !identity.IsZero() {
		audit.Log(ctx, audit.ActionDisconnect, identity.UserID, "client disconnected")
	}
}

func (s *chatService) publish(ctx context.Context, key domain.RoomKey, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	event, err := pubsub.NewEvent(eventType, key.String(), payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEvent, eventType).Msg("failed to build domain event")
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.ChatRoomChannel(key.String()), event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldEvent, eventType).Str(log.FieldRoomKey, key.String()).Msg("failed to publish domain event")
	}
}

// RoomOpened advertises a new room. Membership is re-checked because the
// callback runs after the hub lock is released.
func (s *chatService) RoomOpened(key domain.RoomKey) {
	if s.hub.RoomSize(key) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := s.registry.Register(ctx, key); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldRoomKey, key.String()).Msg("failed to register room")
	}
}

func (s *chatService) RoomClosed(key domain.RoomKey) {
	if s.hub.RoomSize(key) > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := s.registry.Deregister(ctx, key); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldRoomKey, key.String()).Msg("failed to deregister room")
	}
}

// Start begins the registry heartbeat, which also repairs any
// register/deregister that raced with membership changes.
func (s *chatService) Start(ctx context.Context) error {
	return s.registry.StartHeartbeat(ctx, s.hub.ActiveRooms)
}

func (s *chatService) Stop() error {
	s.registry.StopHeartbeat()
	return nil
}
