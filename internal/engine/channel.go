package engine

import (
	"context"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// Channel is the Event Channel (§4.8): subscribers register a
// `type:state:tag:key` glob pattern (doublestar syntax, so `*` and
// `**` both work as wildcards within and across segments) and receive
// every Event whose MatchKey matches it. Ack-required subscriptions
// get redelivered up to maxRetries times until Ack is called.
type Channel struct {
	mu          sync.Mutex
	subs        map[string]*subscription
	maxRetries  int
	retryWindow time.Duration
}

type subscription struct {
	domain.Subscription
	handler func(context.Context, *domain.Event) error
	pending map[string]*delivery
}

type delivery struct {
	event     *domain.Event
	tries     int
	delivered time.Time
	lastErr   bool
}

func NewChannel(maxRetries int, retryWindow time.Duration) *Channel {
	return &Channel{
		subs:        make(map[string]*subscription),
		maxRetries:  maxRetries,
		retryWindow: retryWindow,
	}
}

// Subscribe registers handler against pattern. ackRequired means the
// publisher expects Ack(subID, eventID) before considering delivery
// final; RetryDue redelivers it otherwise.
func (c *Channel) Subscribe(id, pattern string, ackRequired bool, handler func(context.Context, *domain.Event) error) error {
	if _, err := doublestar.Match(pattern, "task:none:x:y"); err != nil {
		return acterr.Runtime("invalid channel pattern %q: %v", pattern, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[id] = &subscription{
		Subscription: domain.Subscription{ID: id, Pattern: pattern, AckRequired: ackRequired},
		handler:      handler,
		pending:      make(map[string]*delivery),
	}
	return nil
}

func (c *Channel) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// Publish fans an event out to every matching subscription (§4.8).
// Handler errors are logged, not returned: one broken subscriber must
// not block delivery to the others.
func (c *Channel) Publish(ctx context.Context, event *domain.Event) {
	key := event.MatchKey()

	c.mu.Lock()
	matched := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if ok, _ := doublestar.Match(sub.Pattern, key); ok {
			matched = append(matched, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range matched {
		c.deliver(ctx, sub, event)
	}
}

func (c *Channel) deliver(ctx context.Context, sub *subscription, event *domain.Event) {
	if err := sub.handler(ctx, event); err != nil {
		log.Warn().Err(err).Str("subscription", sub.ID).Str("event", event.ID).Msg("channel handler failed")
		if sub.AckRequired {
			c.mu.Lock()
			sub.pending[event.ID] = &delivery{event: event, tries: 1, delivered: time.Now(), lastErr: true}
			c.mu.Unlock()
		}
		return
	}
	if !sub.AckRequired {
		return
	}
	c.mu.Lock()
	sub.pending[event.ID] = &delivery{event: event, tries: 1, delivered: time.Now()}
	c.mu.Unlock()
}

// Ack finalizes a delivery, stopping further retries.
func (c *Channel) Ack(subID, eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[subID]; ok {
		delete(sub.pending, eventID)
	}
}

// ClearAll drops every pending delivery for pid across every
// subscription, regardless of how many retries it has left, so none of
// that process's in-flight events is redelivered (§9 message.Clear).
func (c *Channel) ClearAll(pid string) {
	c.clear(pid, func(*delivery) bool { return true })
}

// ClearErrors drops only pending deliveries for pid whose most recent
// handler call failed, leaving deliveries that succeeded and are only
// waiting for an Ack alone. The distinction matters when a process is resumed after an
// error: deliveries already under way should keep retrying, while
// deliveries that errored out under the old run should not resume
// against stale state (§9 message.Clear).
func (c *Channel) ClearErrors(pid string) {
	c.clear(pid, func(d *delivery) bool { return d.lastErr })
}

func (c *Channel) clear(pid string, match func(*delivery) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		for id, d := range sub.pending {
			if d.event.ProcessID == pid && match(d) {
				delete(sub.pending, id)
			}
		}
	}
}

// RetryDue redelivers any pending, ack-required event whose retry
// window has elapsed, up to maxRetries times after the first delivery
// (0 disables redelivery); it is driven by the
// scheduler's tick (§4.8, §4.3).
func (c *Channel) RetryDue(ctx context.Context) {
	now := time.Now()

	c.mu.Lock()
	type due struct {
		sub *subscription
		id  string
		d   *delivery
	}
	var dues []due
	for _, sub := range c.subs {
		for id, d := range sub.pending {
			if now.Sub(d.delivered) < c.retryWindow {
				continue
			}
			if d.tries > c.maxRetries {
				log.Warn().Str("subscription", sub.ID).Str("event", id).Msg("event exhausted retries, dropping")
				delete(sub.pending, id)
				continue
			}
			dues = append(dues, due{sub, id, d})
		}
	}
	c.mu.Unlock()

	for _, item := range dues {
		err := item.sub.handler(ctx, item.d.event)
		if err != nil {
			log.Warn().Err(err).Str("subscription", item.sub.ID).Msg("event retry failed")
		}
		c.mu.Lock()
		item.d.tries++
		item.d.delivered = now
		item.d.lastErr = err != nil
		c.mu.Unlock()
	}
}
