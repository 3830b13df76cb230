package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
)

// MockRepository is a testify mock of repository.MessageRepository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Append(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockRepository) Find(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if msg, ok := args.Get(0).(*domain.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) Query(ctx context.Context, conv domain.Conversation, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conv, limit)
	if msgs, ok := args.Get(0).([]domain.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) MarkReadBy(ctx context.Context, id, userID string) (*domain.Message, bool, error) {
	args := m.Called(ctx, id, userID)
	if msg, ok := args.Get(0).(*domain.Message); ok {
		return msg, args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *MockRepository) Close() error {
	return nil
}

// stubDirectory admits the users listed per delivery key.
type stubDirectory struct {
	members map[string][]string
	err     error
}

func (d *stubDirectory) IsParticipant(_ context.Context, deliveryKey, userID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	for _, m := range d.members[deliveryKey] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// sequenceIDs hands out m1, m2, ...
type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceIDs) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("m%d", g.n), nil
}

// recordingRegistry remembers which rooms are advertised.
type recordingRegistry struct {
	mu    sync.Mutex
	rooms map[domain.RoomKey]bool
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{rooms: make(map[domain.RoomKey]bool)}
}

func (r *recordingRegistry) Register(_ context.Context, key domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[key] = true
	return nil
}

func (r *recordingRegistry) Deregister(_ context.Context, key domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, key)
	return nil
}

func (r *recordingRegistry) StartHeartbeat(context.Context, func() []domain.RoomKey) error {
	return nil
}

func (r *recordingRegistry) StopHeartbeat() {}

func (r *recordingRegistry) Close() error { return nil }

func (r *recordingRegistry) has(key domain.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[key]
}

var errStoreDown = errors.New("store down")

// frames drains everything queued for the client without blocking.
func frames(t *testing.T, c *hub.Client) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		select {
		case data, ok := <-c.Outbox():
			if !ok {
				return out
			}
			var frame map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &frame))
			out = append(out, frame)
		default:
			return out
		}
	}
}

func framesOfType(all []map[string]interface{}, typ string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, f := range all {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}
