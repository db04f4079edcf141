package chat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/tools/safe"

	"go.uber.org/zap"
)

type PresenceKind string

const (
	PresenceOnline  PresenceKind = "online"
	PresenceOffline PresenceKind = "offline"
)

type PresenceChange struct {
	Kind          PresenceKind `json:"kind"`
	ParticipantID string       `json:"participantId"`
	DisplayName   string       `json:"displayName,omitempty"`
	At            time.Time    `json:"ts"`
}

type DeliveryKind string

const (
	DeliveryDelivered DeliveryKind = "delivered"
	DeliveryDropped   DeliveryKind = "dropped"
	DeliveryRead      DeliveryKind = "read"
)

// DeliveryOutcome never carries the message body.
type DeliveryOutcome struct {
	Kind      DeliveryKind `json:"kind"`
	MessageID string       `json:"messageId,omitempty"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Reason    DropReason   `json:"reason,omitempty"`
	At        time.Time    `json:"ts"`
}

// Observer sees core outcomes after the fact. It can not influence them.
type Observer interface {
	Name() string
	OnPresence(ctx context.Context, c PresenceChange) error
	OnDelivery(ctx context.Context, o DeliveryOutcome) error
}

type notification struct {
	presence *PresenceChange
	delivery *DeliveryOutcome
}

const observerTimeout = 2 * time.Second

// Notifier fans core outcomes out to observers on its own goroutine.
// The hub never waits on it: a full queue drops the notification.
type Notifier struct {
	queue     chan notification
	observers []Observer
	dropped   atomic.Int64
	done      chan struct{}
}

func NewNotifier(size int, observers ...Observer) *Notifier {
	if size <= 0 {
		size = 1024
	}
	return &Notifier{
		queue:     make(chan notification, size),
		observers: observers,
		done:      make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case item := <-n.queue:
					n.deliver(item)
				default:
					return
				}
			}
		case item := <-n.queue:
			n.deliver(item)
		}
	}
}

func (n *Notifier) Done() <-chan struct{} { return n.done }

func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

func (n *Notifier) Presence(c PresenceChange) {
	if n == nil || len(n.observers) == 0 {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	n.push(notification{presence: &c})
}

func (n *Notifier) Delivery(o DeliveryOutcome) {
	if n == nil || len(n.observers) == 0 {
		return
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	n.push(notification{delivery: &o})
}

func (n *Notifier) push(item notification) {
	select {
	case n.queue <- item:
	default:
		n.dropped.Add(1)
	}
}

func (n *Notifier) deliver(item notification) {
	for _, o := range n.observers {
		func() {
			defer safe.Recover("notifier." + o.Name())
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			defer cancel()

			var err error
			switch {
			case item.presence != nil:
				err = o.OnPresence(ctx, *item.presence)
			case item.delivery != nil:
				err = o.OnDelivery(ctx, *item.delivery)
			}
			if err != nil {
				logger.Warn("observer failed", zap.String("observer", o.Name()), zap.Error(err))
			}
		}()
	}
}
