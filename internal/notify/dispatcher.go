package notify

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
)

// sender abstracts the push service for testability.
type sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// Dispatcher fans a notification out to every subscription a member has
// registered. Sends run in the background; expired subscriptions are
// pruned as the push service reports them gone.
type Dispatcher struct {
	service sender
	subs    *store.PushStore
	logger  *slog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(service sender, subs *store.PushStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		service: service,
		subs:    subs,
		logger:  logger.With("component", "notify"),
	}
}

// Notify sends a push to every subscription of the member. It returns
// immediately; delivery happens in the background.
func (d *Dispatcher) Notify(userID int64, title, body string) {
	subs, err := d.subs.ListByMember(userID)
	if err != nil {
		d.logger.Error("list subscriptions", "member_id", userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := Payload{Title: title, Body: body, Tag: "callboard"}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for i := range subs {
			sub := subs[i]
			err := d.service.Send(&sub, payload)
			switch {
			case errors.Is(err, ErrExpired):
				if err := d.subs.Delete(sub.ID); err != nil {
					d.logger.Error("prune expired subscription", "id", sub.ID, "error", err)
				}
			case err != nil:
				d.logger.Warn("push delivery failed", "member_id", userID, "error", err)
			}
		}
	}()
}

// Wait blocks until in-flight sends finish. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
