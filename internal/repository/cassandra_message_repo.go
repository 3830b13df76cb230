package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

const messageColumns = `message_id, sender_id, receiver_id, delivery_key, body, sent_at, read_by`

var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages_by_id (
		message_id text PRIMARY KEY,
		room_key text,
		sender_id text,
		receiver_id text,
		delivery_key text,
		body text,
		sent_at timestamp,
		read_by set<text>
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages_by_room (
		room_key text,
		sent_at timestamp,
		message_id text,
		sender_id text,
		receiver_id text,
		delivery_key text,
		body text,
		read_by set<text>,
		PRIMARY KEY ((room_key), sent_at, message_id)
	) WITH CLUSTERING ORDER BY (sent_at DESC, message_id DESC)`,
}

// CassandraMessageRepository stores messages in two tables: one keyed by id
// for lookups and read receipts, one partitioned by room for history.
// Timestamps are kept at millisecond precision.
type CassandraMessageRepository struct {
	session *gocql.Session
}

func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: cfg.MaxRetries,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	repo := &CassandraMessageRepository{session: session}
	if cfg.AutoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			session.Close()
			return nil, err
		}
	}
	return repo, nil
}

// Migrate creates the message tables in the session keyspace.
func (r *CassandraMessageRepository) Migrate(ctx context.Context) error {
	for _, stmt := range cassandraSchema {
		if err := r.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply cassandra schema: %w", err)
		}
	}
	return nil
}

func (r *CassandraMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	roomKey := roomKeyOf(msg)
	sentAt := msg.SentAt.UTC()

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(
		`INSERT INTO chat_messages_by_id (message_id, room_key, sender_id, receiver_id, delivery_key, body, sent_at, read_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, roomKey, msg.SenderID, msg.ReceiverID, msg.DeliveryKey, msg.Body, sentAt, msg.ReadBy,
	)
	if roomKey != "" {
		batch.Query(
			`INSERT INTO chat_messages_by_room (room_key, sent_at, message_id, sender_id, receiver_id, delivery_key, body, read_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			roomKey, sentAt, msg.ID, msg.SenderID, msg.ReceiverID, msg.DeliveryKey, msg.Body, msg.ReadBy,
		)
	}

	if err := r.session.ExecuteBatch(batch); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to insert chat message")
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) Find(ctx context.Context, id string) (*domain.Message, error) {
	msg, _, err := r.find(ctx, id)
	return msg, err
}

func (r *CassandraMessageRepository) find(ctx context.Context, id string) (*domain.Message, string, error) {
	var (
		msg     domain.Message
		roomKey string
	)
	err := r.session.Query(
		`SELECT `+messageColumns+`, room_key FROM chat_messages_by_id WHERE message_id = ?`, id,
	).WithContext(ctx).Scan(
		&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.DeliveryKey, &msg.Body, &msg.SentAt, &msg.ReadBy, &roomKey,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, "", ErrMessageNotFound
		}
		return nil, "", fmt.Errorf("failed to get message: %w", err)
	}
	msg.SentAt = msg.SentAt.UTC()
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	return &msg, roomKey, nil
}

func (r *CassandraMessageRepository) Query(ctx context.Context, conv domain.Conversation, limit int) ([]domain.Message, error) {
	key, err := domain.Resolve(conv)
	if err != nil {
		return nil, err
	}

	stmt := `SELECT ` + messageColumns + ` FROM chat_messages_by_room WHERE room_key = ?`
	args := []interface{}{key.String()}
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := r.session.Query(stmt, args...).WithContext(ctx).Iter()

	var messages []domain.Message
	var msg domain.Message
	for iter.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.DeliveryKey, &msg.Body, &msg.SentAt, &msg.ReadBy) {
		msg.SentAt = msg.SentAt.UTC()
		if msg.ReadBy == nil {
			msg.ReadBy = []string{}
		}
		messages = append(messages, msg)
		msg = domain.Message{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// clustering order is newest first
	reverse(messages)
	return messages, nil
}

// MarkReadBy applies a set union on both tables. Set additions are
// idempotent, so two concurrent readers of the same message converge; added
// is computed from the pre-read and may be true for both of them.
func (r *CassandraMessageRepository) MarkReadBy(ctx context.Context, id, userID string) (*domain.Message, bool, error) {
	msg, roomKey, err := r.find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if msg.IsReadBy(userID) {
		return msg, false, nil
	}

	reader := []string{userID}
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`UPDATE chat_messages_by_id SET read_by = read_by + ? WHERE message_id = ?`, reader, id)
	if roomKey != "" {
		batch.Query(
			`UPDATE chat_messages_by_room SET read_by = read_by + ? WHERE room_key = ? AND sent_at = ? AND message_id = ?`,
			reader, roomKey, msg.SentAt, id,
		)
	}
	if err := r.session.ExecuteBatch(batch); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to mark chat message read")
		return nil, false, fmt.Errorf("failed to update read state: %w", err)
	}

	msg.ReadBy = append(msg.ReadBy, userID)
	return msg, true, nil
}

func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}

func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
