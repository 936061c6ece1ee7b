package repository

import (
	"context"
	"time"

	"nexus-chat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db, now: time.Now}
}

// WithClock replaces the write-time source.
func (r *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	return &MessageRepository{db: r.db, now: now}
}

// Create assigns CreatedAt at write time and persists msg. CreatedAt is
// clamped to the latest persisted value so insertion order and
// chronological order agree even when writer clocks drift.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last models.Message
		if err := latest(tx, &last).Error; err != nil {
			return err
		}

		at := r.now().UTC().Truncate(time.Millisecond)
		if last.Seq != 0 && at.Before(last.CreatedAt) {
			at = last.CreatedAt.UTC()
		}
		msg.Seq = 0
		msg.CreatedAt = at
		return tx.Create(msg).Error
	})
}

// latest reads the newest row. On mysql the row is locked until the
// transaction ends so concurrent writers clamp against each other in turn.
// SQLite has no row locks; its writers are serialized by the single
// connection database.Open configures.
func latest(tx *gorm.DB, out *models.Message) *gorm.DB {
	q := tx.Order("seq desc").Limit(1)
	if tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Find(out)
}

// List returns every message, oldest first.
func (r *MessageRepository) List(ctx context.Context) ([]models.Message, error) {
	msgs := make([]models.Message, 0)
	err := r.db.WithContext(ctx).
		Order("created_at asc").
		Order("seq asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC()
	}
	return msgs, nil
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Count(&n).Error
	return n, err
}
