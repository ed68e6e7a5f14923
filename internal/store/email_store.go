package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/model"
)

// InboundRecord is everything one received message writes: the email row,
// the application it matched (nil when unmatched) and the events it caused.
type InboundRecord struct {
	Email       *model.EmailRecord
	Application *model.ApplicationRecord
	Events      []model.ApplicationEvent
}

// SaveEmail inserts rec unless the (credential, provider message id) pair
// is already recorded.
func (s *SQLStore) SaveEmail(ctx context.Context, rec *model.EmailRecord) (bool, error) {
	return s.insertEmail(ctx, s.db, rec)
}

// RecordInbound writes in within one transaction. The email row is the
// dedup marker, so it only becomes visible together with the application
// update and events. A message already recorded writes nothing and reports
// false.
func (s *SQLStore) RecordInbound(ctx context.Context, in InboundRecord) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, apperr.Persistence("record inbound", err)
	}
	defer tx.Rollback()

	created, err := s.insertEmail(ctx, tx, in.Email)
	if err != nil || !created {
		return false, err
	}
	if in.Application != nil {
		if err := s.updateApplication(ctx, tx, in.Application); err != nil {
			return false, err
		}
	}
	for i := range in.Events {
		if err := s.appendEvent(ctx, tx, &in.Events[i]); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Persistence("record inbound", err)
	}
	return true, nil
}

func (s *SQLStore) insertEmail(ctx context.Context, db sqlx.ExecerContext, rec *model.EmailRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = s.timestamp()
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = rec.CreatedAt
	}
	rec.ReceivedAt = rec.ReceivedAt.UTC()

	res, err := db.ExecContext(ctx, s.rebind(`INSERT INTO emails
		(id, owner, credential_id, provider_message_id, thread_id, direction,
		 from_addr, to_addr, subject, snippet, body, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (credential_id, provider_message_id) DO NOTHING`),
		rec.ID, rec.Owner, rec.CredentialID, rec.ProviderMessageID, rec.ThreadID, rec.Direction,
		rec.From, rec.To, rec.Subject, rec.Snippet, rec.Body, rec.ReceivedAt, rec.CreatedAt)
	if err != nil {
		return false, apperr.Persistence("save email", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Persistence("save email", err)
	}
	return n == 1, nil
}

// ListEmails returns owner's recorded messages, oldest first.
func (s *SQLStore) ListEmails(ctx context.Context, owner string) ([]model.EmailRecord, error) {
	recs := []model.EmailRecord{}
	err := s.db.SelectContext(ctx, &recs,
		s.rebind(`SELECT id, owner, credential_id, provider_message_id, thread_id, direction,
			from_addr, to_addr, subject, snippet, body, received_at, created_at
			FROM emails WHERE owner = ? ORDER BY received_at, id`), owner)
	if err != nil {
		return nil, apperr.Persistence("list emails", err)
	}
	return recs, nil
}
