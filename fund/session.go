/*
session.go - Session membership

PURPOSE:
  Joining and leaving a day's order. The session row is created lazily
  on the first join (or selection) for a date and is never deleted.
  Participation is frozen the moment buyers are selected.
*/
package fund

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionService manages the participation lifecycle.
type SessionService struct {
	Store Store
}

func NewSessionService(store Store) *SessionService {
	return &SessionService{Store: store}
}

// Join confirms a user's participation in the session for date,
// creating the session if it does not exist yet. Joining twice is a
// no-op.
func (ss *SessionService) Join(ctx context.Context, userID, date string) (*Session, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Message: "want YYYY-MM-DD"}
	}

	var out *Session
	err := ss.Store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return ErrNotFound
		}

		sess, err := tx.GetSessionByDate(ctx, date)
		if err != nil {
			return err
		}
		if sess == nil {
			sess = &Session{
				ID:        uuid.New().String(),
				Date:      date,
				Status:    SessionOrdering,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.CreateSession(ctx, *sess); err != nil {
				return err
			}
		}
		if sess.Status != SessionOrdering {
			return &StateError{Entity: "session", Status: string(sess.Status), Want: string(SessionOrdering)}
		}

		if err := tx.AddParticipant(ctx, sess.ID, userID); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Leave removes a participation while the session is still ordering.
func (ss *SessionService) Leave(ctx context.Context, userID, date string) error {
	return ss.Store.WithTx(ctx, func(tx Tx) error {
		sess, err := tx.GetSessionByDate(ctx, date)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrNotFound
		}
		if sess.Status != SessionOrdering {
			return &StateError{Entity: "session", Status: string(sess.Status), Want: string(SessionOrdering)}
		}
		return tx.RemoveParticipant(ctx, sess.ID, userID)
	})
}

// Get returns the session for date with its confirmed participants.
func (ss *SessionService) Get(ctx context.Context, date string) (*Session, []User, error) {
	sess, err := ss.Store.GetSessionByDate(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrNotFound
	}
	participants, err := ss.Store.ListParticipants(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, participants, nil
}
