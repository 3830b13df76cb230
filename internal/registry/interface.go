package registry

import (
	"context"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
)

// Registry advertises which rooms have members on this instance.
type Registry interface {
	Register(ctx context.Context, room domain.RoomKey) error
	Deregister(ctx context.Context, room domain.RoomKey) error
	// StartHeartbeat periodically re-advertises the rooms returned by active
	// and withdraws registered rooms that are no longer in it.
	StartHeartbeat(ctx context.Context, active func() []domain.RoomKey) error
	StopHeartbeat()
	Close() error
}

// NoopRegistry is used when no room directory is configured.
type NoopRegistry struct{}

func (NoopRegistry) Register(context.Context, domain.RoomKey) error { return nil }

func (NoopRegistry) Deregister(context.Context, domain.RoomKey) error { return nil }

func (NoopRegistry) StartHeartbeat(context.Context, func() []domain.RoomKey) error {
	return nil
}

func (NoopRegistry) StopHeartbeat() {}

func (NoopRegistry) Close() error { return nil }
