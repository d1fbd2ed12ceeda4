/*
dispatcher.go - Outbox drain loop

PURPOSE:
  Polls the notification outbox on an interval and pushes pending rows
  through the configured Notifier. Fire-and-forget: a failed delivery
  is marked failed and never retried automatically, and never affects
  the transaction that enqueued it.
*/
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/crewlunch/lunchfund/fund"
)

var (
	notificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lunchfund_notifications_sent_total",
		Help: "Outbox notifications delivered successfully.",
	})
	notificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lunchfund_notifications_failed_total",
		Help: "Outbox notifications that failed delivery.",
	})
)

// Outbox is the slice of the store the dispatcher needs.
type Outbox interface {
	PendingNotifications(ctx context.Context, limit int) ([]fund.Notification, error)
	MarkNotification(ctx context.Context, id string, status fund.NotificationStatus) error
}

// Dispatcher drains the outbox in the background.
type Dispatcher struct {
	outbox   Outbox
	notifier Notifier
	interval time.Duration
	batch    int

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewDispatcher(outbox Outbox, notifier Notifier, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		outbox:   outbox,
		notifier: notifier,
		interval: interval,
		batch:    50,
		stop:     make(chan struct{}),
	}
}

// Start launches the drain loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Drain(context.Background())
			case <-d.stop:
				return
			}
		}
	}()
	log.WithField("interval", d.interval).Info("notification dispatcher started")
}

// Stop halts the loop and waits for an in-flight drain to finish.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Drain delivers one batch of pending notifications. Exported so tests
// and the scheduler can force a pass without waiting for the ticker.
func (d *Dispatcher) Drain(ctx context.Context) {
	pending, err := d.outbox.PendingNotifications(ctx, d.batch)
	if err != nil {
		log.WithError(err).Error("failed to read notification outbox")
		return
	}

	for _, n := range pending {
		status := fund.NotifySent
		if err := d.notifier.Send(ctx, n); err != nil {
			status = fund.NotifyFailed
			notificationsFailed.Inc()
			log.WithError(err).WithFields(log.Fields{
				"notification": n.ID,
				"event":        n.Event,
			}).Error("notification delivery failed")
		} else {
			notificationsSent.Inc()
		}
		if err := d.outbox.MarkNotification(ctx, n.ID, status); err != nil {
			log.WithError(err).WithField("notification", n.ID).Error("failed to mark notification")
		}
	}
}
