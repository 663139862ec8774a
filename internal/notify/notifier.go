// Package notify publishes post mutation events to connected clients.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/models"
)

// Channel is the event name every post mutation is published under.
const Channel = "posts"

// ErrUninitialized is returned when publishing before Init or after Close.
var ErrUninitialized = errors.New("notifier is not initialized")

// Transport delivers a named event to every live client.
type Transport interface {
	Broadcast(event string, data any) error
}

// Relay forwards events to a durable sink. Relay failures never fail a publish.
type Relay interface {
	Relay(ctx context.Context, rec models.EventRecord) error
}

// Notifier is the process-wide broadcaster. It is constructed empty, bound
// to a transport with Init once the server is listening, and passed to the
// handlers that publish through it.
type Notifier struct {
	mu        sync.RWMutex
	transport Transport
	relay     Relay
	now       func() time.Time
}

// New returns an uninitialized Notifier. relay may be nil.
func New(relay Relay) *Notifier {
	return &Notifier{relay: relay, now: time.Now}
}

// Init binds the notifier to t. Later calls rebind it.
func (n *Notifier) Init(t Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transport = t
	logg.Info("notify", "Notifier initialized")
}

// Publisher returns the bound transport or ErrUninitialized.
func (n *Notifier) Publisher() (Transport, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.transport == nil {
		return nil, ErrUninitialized
	}
	return n.transport, nil
}

// Publish broadcasts ev on the posts channel, then hands its record to the
// relay if one is configured.
func (n *Notifier) Publish(ctx context.Context, ev models.Event) error {
	t, err := n.Publisher()
	if err != nil {
		return err
	}
	if err := t.Broadcast(Channel, ev); err != nil {
		return err
	}

	n.Forward(ctx, ev)
	return nil
}

// Forward hands the record of ev to the relay without broadcasting. It is
// used when a mutation half-applied, so the reconciler can repair the owner
// list even though clients are never told. No-op without a relay.
func (n *Notifier) Forward(ctx context.Context, ev models.Event) {
	if n.relay == nil {
		return
	}
	if err := n.relay.Relay(ctx, ev.Record(n.now().UTC())); err != nil {
		logg.Error("notify", "Failed to relay event", err,
			logger.F("action", ev.Action), logger.F("post_id", ev.PostID))
	}
}

// Close unbinds the transport; publishing afterwards fails.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transport = nil
	logg.Info("notify", "Notifier closed")
}
