package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

// GormMessageRepository implements MessageRepository on a SQL database.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Migrate creates or updates the chat_messages table.
func (r *GormMessageRepository) Migrate() error {
	return r.db.AutoMigrate(&ChatMessageModel{})
}

func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	if err := r.db.WithContext(ctx).Create(MessageToModel(msg)).Error; err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to insert chat message")
		return err
	}
	return nil
}

func (r *GormMessageRepository) Find(ctx context.Context, id string) (*domain.Message, error) {
	var model ChatMessageModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to get chat message")
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) Query(ctx context.Context, conv domain.Conversation, limit int) ([]domain.Message, error) {
	key, err := domain.Resolve(conv)
	if err != nil {
		return nil, err
	}

	var models []ChatMessageModel
	q := r.db.WithContext(ctx).Where("room_key = ?", key.String())
	if limit > 0 {
		q = q.Order("sent_at DESC, id DESC").Limit(limit)
	} else {
		q = q.Order("sent_at ASC, id ASC")
	}
	if err := q.Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomKey, key.String()).Msg("failed to query chat messages")
		return nil, err
	}

	out := make([]domain.Message, 0, len(models))
	for i := range models {
		out = append(out, *models[i].ToDomain())
	}
	if limit > 0 {
		reverse(out)
	}
	return out, nil
}

// MarkReadBy reads and updates the row inside one transaction. The row is
// locked where the dialect supports SELECT ... FOR UPDATE; SQLite serializes
// writers on its own.
func (r *GormMessageRepository) MarkReadBy(ctx context.Context, id, userID string) (*domain.Message, bool, error) {
	var (
		updated ChatMessageModel
		added   bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&updated, "id = ?", id).Error; err != nil {
			return err
		}

		readBy, ok := updated.ReadBy.With(userID)
		if !ok {
			return nil
		}
		if err := tx.Model(&ChatMessageModel{}).Where("id = ?", id).Update("read_by", readBy).Error; err != nil {
			return err
		}
		updated.ReadBy = readBy
		added = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to mark chat message read")
		return nil, false, err
	}
	return updated.ToDomain(), added, nil
}

func (r *GormMessageRepository) Close() error {
	return nil
}
