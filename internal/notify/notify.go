// Package notify is the local notification sink. Delivery here means a
// redis publish (picked up by the device edge) plus a log line; the OS
// alert itself is outside this process.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const channel = "notify:alerts"

// Quiet hours: no notifications before 7am or after 10pm local time unless
// the all-day override is set.
const (
	windowOpenHour  = 7
	windowCloseHour = 22
)

type message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Notifier struct {
	redis  *redis.Client
	allDay func(context.Context) bool
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewNotifier builds a notifier. allDay reports the user's all-day
// override; nil means the quiet-hours window always applies.
func NewNotifier(client *redis.Client, allDay func(context.Context) bool) *Notifier {
	return &Notifier{
		redis:    client,
		allDay:   allDay,
		now:      time.Now,
		lastSent: map[string]time.Time{},
	}
}

// SendNow fires a notification unless it falls inside the rate-limit
// window for key or outside quiet hours. rateLimitSeconds <= 0 disables
// rate limiting; an empty key falls back to the title. Drops are silent by
// contract.
func (n *Notifier) SendNow(ctx context.Context, title, body string, rateLimitSeconds int, key string) {
	now := n.now()

	if !n.inWindow(ctx, now) {
		return
	}

	if key == "" {
		key = title
	}
	if rateLimitSeconds > 0 {
		n.mu.Lock()
		last, seen := n.lastSent[key]
		if seen && now.Sub(last) < time.Duration(rateLimitSeconds)*time.Second {
			n.mu.Unlock()
			return
		}
		n.lastSent[key] = now
		n.mu.Unlock()
	}

	log.Printf("notify: %s: %s", title, body)

	if n.redis == nil {
		return
	}
	payload, _ := json.Marshal(message{Title: title, Body: body})
	if err := n.redis.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("notify: publish failed: %v", err)
	}
}

func (n *Notifier) inWindow(ctx context.Context, now time.Time) bool {
	if n.allDay != nil && n.allDay(ctx) {
		return true
	}
	h := now.Hour()
	return h >= windowOpenHour && h < windowCloseHour
}
