package service

import (
	"context"
	"fmt"
	"time"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/participant"
)

// accessChecker decides who may read or join a conversation.
type accessChecker struct {
	directory participant.Directory
	timeout   time.Duration
}

func (a accessChecker) authorize(ctx context.Context, caller domain.Identity, conv domain.Conversation) error {
	if !conv.IsDelivery() {
		if !conv.HasPeer(caller.UserID) {
			return fmt.Errorf("%w: %s is not part of this chat", domain.ErrAuthorizationDenied, caller.UserID)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ok, err := a.directory.IsParticipant(ctx, conv.DeliveryKey, caller.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a participant of delivery %s", domain.ErrAuthorizationDenied, caller.UserID, conv.DeliveryKey)
	}
	return nil
}

// authorizeMessage admits the sender and the receiver of msg, and the
// delivery participants for delivery messages.
func (a accessChecker) authorizeMessage(ctx context.Context, caller domain.Identity, msg *domain.Message) error {
	if caller.UserID == msg.SenderID || (msg.ReceiverID != "" && caller.UserID == msg.ReceiverID) {
		return nil
	}
	if msg.DeliveryKey != "" {
		return a.authorize(ctx, caller, domain.DeliveryConversation(msg.DeliveryKey))
	}
	return fmt.Errorf("%w: %s cannot read message %s", domain.ErrAuthorizationDenied, caller.UserID, msg.ID)
}
