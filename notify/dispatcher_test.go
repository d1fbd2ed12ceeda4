package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlunch/lunchfund/fund"
)

type fakeOutbox struct {
	rows   []fund.Notification
	marked map[string]fund.NotificationStatus
}

func (f *fakeOutbox) PendingNotifications(_ context.Context, limit int) ([]fund.Notification, error) {
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeOutbox) MarkNotification(_ context.Context, id string, status fund.NotificationStatus) error {
	if f.marked == nil {
		f.marked = make(map[string]fund.NotificationStatus)
	}
	f.marked[id] = status
	return nil
}

type flakyNotifier struct {
	failFor map[string]bool
	sent    []string
}

func (n *flakyNotifier) Send(_ context.Context, msg fund.Notification) error {
	if n.failFor[msg.ID] {
		return errors.New("chat api down")
	}
	n.sent = append(n.sent, msg.ID)
	return nil
}

func TestDrain_MarksOutcomesIndependently(t *testing.T) {
	// GIVEN two pending rows where the second will fail delivery
	outbox := &fakeOutbox{rows: []fund.Notification{
		{ID: "n1", Event: fund.EventBuyersSelected, Status: fund.NotifyPending, CreatedAt: time.Now()},
		{ID: "n2", Event: fund.EventDepositApproved, Status: fund.NotifyPending, CreatedAt: time.Now()},
	}}
	notifier := &flakyNotifier{failFor: map[string]bool{"n2": true}}
	d := NewDispatcher(outbox, notifier, time.Second)

	// WHEN draining
	d.Drain(context.Background())

	// THEN the failure does not block the success
	assert.Equal(t, []string{"n1"}, notifier.sent)
	require.Len(t, outbox.marked, 2)
	assert.Equal(t, fund.NotifySent, outbox.marked["n1"])
	assert.Equal(t, fund.NotifyFailed, outbox.marked["n2"])
}

func TestRenderMessage_KnownEvents(t *testing.T) {
	msg := renderMessage(fund.Notification{
		Event:      fund.EventBuyersSelected,
		Recipients: []string{"u1", "u2"},
		Payload:    map[string]string{"date": "2025-03-10"},
	})
	assert.Contains(t, msg, "2025-03-10")

	// equal-split settlements name the share, itemized ones the total
	msg = renderMessage(fund.Notification{
		Event:      fund.EventSettlementComplete,
		Recipients: []string{"u1", "u2"},
		Payload:    map[string]string{"total": "201200", "amount_per_person": "100600"},
	})
	assert.Contains(t, msg, "100600 per person")

	msg = renderMessage(fund.Notification{
		Event:      fund.EventSettlementComplete,
		Recipients: []string{"u1"},
		Payload:    map[string]string{"total": "8000"},
	})
	assert.Contains(t, msg, "8000 total")

	msg = renderMessage(fund.Notification{Event: fund.EventReimburseMarked})
	assert.Contains(t, msg, "confirm")
}
