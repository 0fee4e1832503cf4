// Package notify fans reminder messages out to every subscription.
//
// Delivery is all-settled: a failing subscription never stops the others.
// Subscriptions the transport reports as gone are deleted.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"nutrition-coach/internal/models"
	"nutrition-coach/pkg/logger"
)

// ErrGone marks a subscription that can never be delivered to again, e.g.
// a chat that blocked the bot or a disabled push endpoint.
var ErrGone = errors.New("subscription is gone")

const defaultConcurrency = 8

type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var EveningReminder = Message{
	Title: "Daily Check-in Reminder",
	Body:  "Don't forget to log your feedback for today to keep your plan adapting!",
}

type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, target string, msg Message) error
}

type Store interface {
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

type Report struct {
	Total   int
	Sent    int
	Failed  int
	Removed int
}

type Dispatcher struct {
	store       Store
	senders     map[models.Channel]Sender
	logger      *logger.Logger
	concurrency int
}

func NewDispatcher(store Store, l *logger.Logger, senders ...Sender) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		senders:     make(map[models.Channel]Sender, len(senders)),
		logger:      l,
		concurrency: defaultConcurrency,
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

// Broadcast sends msg to every subscription. The error is non-nil only when
// the subscriptions cannot be listed.
func (d *Dispatcher) Broadcast(ctx context.Context, msg Message) (Report, error) {
	subs, err := d.store.ListSubscriptions(ctx)
	if err != nil {
		d.logger.Errorw("Error fetching subscriptions", "error", err)
		return Report{}, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	report := Report{Total: len(subs)}
	if len(subs) == 0 {
		d.logger.Infow("No subscriptions found, nothing to send")
		return report, nil
	}
	d.logger.Infow("Sending notification", "title", msg.Title, "subscriptions", len(subs))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			sent, removed := d.deliver(ctx, sub, msg)

			mu.Lock()
			defer mu.Unlock()
			if sent {
				report.Sent++
			} else {
				report.Failed++
			}
			if removed {
				report.Removed++
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Infow("Notification finished",
		"sent", report.Sent, "failed", report.Failed, "removed", report.Removed)
	return report, nil
}

func (d *Dispatcher) SendEveningReminder(ctx context.Context) (Report, error) {
	return d.Broadcast(ctx, EveningReminder)
}

func (d *Dispatcher) deliver(ctx context.Context, sub models.Subscription, msg Message) (sent, removed bool) {
	sender, ok := d.senders[sub.Channel]
	if !ok {
		d.logger.Warnw("No sender for channel", "subscription_id", sub.ID, "channel", sub.Channel)
		return false, false
	}

	err := sender.Send(ctx, sub.Target, msg)
	if err == nil {
		return true, false
	}

	d.logger.Errorw("Failed to send notification",
		"subscription_id", sub.ID, "user_id", sub.UserID, "channel", sub.Channel, "error", err)

	if !errors.Is(err, ErrGone) {
		return false, false
	}
	if err := d.store.DeleteSubscription(ctx, sub.ID); err != nil {
		d.logger.Errorw("Failed to delete expired subscription", "subscription_id", sub.ID, "error", err)
		return false, false
	}
	d.logger.Infow("Removed expired subscription", "subscription_id", sub.ID, "channel", sub.Channel)
	return false, true
}
