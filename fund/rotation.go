/*
rotation.go - Fair buyer rotation

PURPOSE:
  Picks the subset of a session's participants who will physically buy
  the food, enforcing two rules:
  1. FAIRNESS: people who never bought, or bought longest ago, go first
     (rotation_index ASC, last_bought_date ASC with nulls first,
     total_bought_times ASC to break same-day ties).
  2. NO REPEAT: yesterday's buyers sit out today unless there aren't
     enough other participants, in which case they backfill in fairness
     order.

ROTATION INDEX:
  Selected buyers get rotation_index = max(rotation_index)+1 across all
  users, pushing them to the back of the fairness queue. The max is
  re-derived inside the transaction on every call - a cached counter
  could go stale under concurrent selections.

CYCLE RESET:
  Once the minimum rotation_index among active users reaches the
  session's participant count, a full cycle has completed and every
  active user's index resets to 0, re-synchronizing the queue.

CONCURRENCY:
  Steps 1-8 of the selection run in one store transaction; the session
  status acts as the gate, so a second selection attempt observes
  buyers_selected and fails with InvalidState.
*/
package fund

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
)

// DefaultTargetBuyers is how many buyers a selection aims for unless
// configured otherwise.
const DefaultTargetBuyers = 4

// RotationSelector picks daily buyers and advances rotation state.
type RotationSelector struct {
	Store        Store
	TargetBuyers int
}

func NewRotationSelector(store Store, target int) *RotationSelector {
	if target <= 0 {
		target = DefaultTargetBuyers
	}
	return &RotationSelector{Store: store, TargetBuyers: target}
}

// SelectBuyers runs the fair rotation for one session. It is not
// idempotent: a second call on an already-selected session fails with
// InvalidState.
func (rs *RotationSelector) SelectBuyers(ctx context.Context, sessionID string) ([]SelectedBuyer, error) {
	var selected []SelectedBuyer

	err := rs.Store.WithTx(ctx, func(tx Tx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrNotFound
		}
		if sess.Status != SessionOrdering {
			return &StateError{Entity: "session", Status: string(sess.Status), Want: string(SessionOrdering)}
		}

		// Fairness-ordered, confirmed, active participants.
		participants, err := tx.ListParticipants(ctx, sess.ID)
		if err != nil {
			return err
		}
		if len(participants) == 0 {
			return ErrNoParticipants
		}

		yesterday, err := yesterdaysBuyers(ctx, tx, sess.Date)
		if err != nil {
			return err
		}

		pool, excluded := partition(participants, yesterday)

		// Backfill from yesterday's buyers, still in fairness order,
		// when excluding them leaves the pool short.
		for _, u := range excluded {
			if len(pool) >= rs.TargetBuyers {
				break
			}
			pool = append(pool, u)
		}
		if len(pool) == 0 {
			return ErrNoEligibleBuyers
		}

		n := rs.TargetBuyers
		if len(pool) < n {
			n = len(pool)
		}
		buyers := pool[:n]

		// Rotate the chosen buyers to the back of the queue.
		maxIdx, err := tx.MaxRotationIndex(ctx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		date := sess.Date
		for _, u := range buyers {
			u.RotationIndex = maxIdx + 1
			u.LastBoughtDate = &date
			u.TotalBoughtTimes++
			if err := tx.UpdateUser(ctx, u); err != nil {
				return err
			}
		}

		// Cycle reset: everyone has been at the back at least once.
		minIdx, err := tx.MinActiveRotationIndex(ctx)
		if err != nil {
			return err
		}
		if minIdx >= len(participants) {
			if err := tx.ResetRotationIndexes(ctx); err != nil {
				return err
			}
		}

		sess.Status = SessionBuyersSelected
		sess.TotalParticipants = len(participants)
		sess.SelectedAt = &now
		sess.BuyerIDs = nil
		for _, u := range buyers {
			sess.BuyerIDs = append(sess.BuyerIDs, u.ID)
			selected = append(selected, SelectedBuyer{UserID: u.ID, Name: u.Name})
		}
		if err := tx.UpdateSession(ctx, *sess); err != nil {
			return err
		}

		// Best-effort delivery happens post-commit via the outbox.
		for _, u := range buyers {
			n := Notification{
				ID:         uuid.New().String(),
				Event:      EventBuyersSelected,
				Recipients: []string{u.ID},
				Payload:    map[string]string{"date": sess.Date, "session_id": sess.ID},
				Status:     NotifyPending,
				CreatedAt:  now,
			}
			if err := tx.EnqueueNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session": sessionID,
		"buyers":  len(selected),
	}).Info("buyers selected")

	return selected, nil
}

// yesterdaysBuyers returns the buyer set of the session one day before
// date, or an empty set when there was none.
func yesterdaysBuyers(ctx context.Context, tx Tx, date string) (map[string]bool, error) {
	prev, err := PreviousDate(date)
	if err != nil {
		return nil, &ValidationError{Field: "date", Message: "invalid session date"}
	}
	sess, err := tx.GetSessionByDate(ctx, prev)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	if sess != nil {
		for _, id := range sess.BuyerIDs {
			set[id] = true
		}
	}
	return set, nil
}

// partition splits participants into those eligible today and those
// excluded for having bought yesterday. Both halves keep fairness order.
func partition(participants []User, yesterday map[string]bool) (pool, excluded []User) {
	for _, u := range participants {
		if yesterday[u.ID] {
			excluded = append(excluded, u)
		} else {
			pool = append(pool, u)
		}
	}
	return pool, excluded
}
