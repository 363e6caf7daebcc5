// Package events implements the runtime's event plane: typed,
// single-producer fan-out busses delivering tuples (not objects) to
// subscribers without ever blocking the producer. A slow or absent
// subscriber only ever drops its own notifications; it never stalls
// ingestion.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// StateTransition is emitted by the connection supervisor on every
// legal state-machine edge.
type StateTransition struct {
	Prev string
	Next string
	At   time.Time
}

// ReconnectAttempt is emitted each time the supervisor schedules a
// reconnect.
type ReconnectAttempt struct {
	Attempt int
	DelayMS int64
	At      time.Time
}

// ValueChange is emitted whenever a subscribed or polled variable's
// value passes the deadband check.
type ValueChange struct {
	Tag       string
	Value     interface{}
	Timestamp time.Time
	Quality   uint8
}

// Alarm is emitted on an alarm-level transition (trigger or clear).
type Alarm struct {
	Tag   string
	Level uint8
	Value float64
	At    time.Time
}

// Completion is emitted when a pipeline request finishes, keyed by its
// request id.
type Completion struct {
	ID      uint64
	Tag     string
	OK      bool
	Value   interface{}
	Err     error
	At      time.Time
}

// bus is a generic single-producer, multi-subscriber fan-out channel
// set. Each subscriber gets its own small buffered channel; a full
// channel causes that event to be dropped for that subscriber only, and
// the drop is logged.
type bus[T any] struct {
	mu   sync.Mutex
	name string
	subs []chan T
}

func newBus[T any](name string) *bus[T] {
	return &bus[T]{name: name}
}

// Subscribe returns a channel that receives every future event. Callers
// must keep draining it; a slow consumer only loses its own events.
func (b *bus[T]) Subscribe() <-chan T {
	ch := make(chan T, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish fans ev out to every subscriber without blocking the caller.
func (b *bus[T]) Publish(ev T) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("events: dropped notification, subscriber channel full", "bus", b.name)
		}
	}
}

// Plane is the runtime's complete event plane: one bus per event kind.
type Plane struct {
	state      *bus[StateTransition]
	reconnect  *bus[ReconnectAttempt]
	valueChg   *bus[ValueChange]
	alarm      *bus[Alarm]
	completion *bus[Completion]
	connected  *bus[struct{}]
	disconnect *bus[struct{}]
	connLost   *bus[struct{}]
	keepalive  *bus[struct{}]
}

// NewPlane constructs an empty event plane.
func NewPlane() *Plane {
	return &Plane{
		state:      newBus[StateTransition]("state"),
		reconnect:  newBus[ReconnectAttempt]("reconnect"),
		valueChg:   newBus[ValueChange]("value_change"),
		alarm:      newBus[Alarm]("alarm"),
		completion: newBus[Completion]("completion"),
		connected:  newBus[struct{}]("connected"),
		disconnect: newBus[struct{}]("disconnected"),
		connLost:   newBus[struct{}]("connection_lost"),
		keepalive:  newBus[struct{}]("keepalive"),
	}
}

func (p *Plane) OnStateChanged() <-chan StateTransition  { return p.state.Subscribe() }
func (p *Plane) OnReconnecting() <-chan ReconnectAttempt  { return p.reconnect.Subscribe() }
func (p *Plane) OnVariableValueChanged() <-chan ValueChange { return p.valueChg.Subscribe() }
func (p *Plane) OnAlarm() <-chan Alarm                    { return p.alarm.Subscribe() }
func (p *Plane) OnCompletion() <-chan Completion          { return p.completion.Subscribe() }
func (p *Plane) OnConnected() <-chan struct{}             { return p.connected.Subscribe() }
func (p *Plane) OnDisconnected() <-chan struct{}          { return p.disconnect.Subscribe() }
func (p *Plane) OnConnectionLost() <-chan struct{}        { return p.connLost.Subscribe() }
func (p *Plane) OnKeepalive() <-chan struct{}             { return p.keepalive.Subscribe() }

func (p *Plane) PublishStateChanged(ev StateTransition)  { p.state.Publish(ev) }
func (p *Plane) PublishReconnecting(ev ReconnectAttempt)  { p.reconnect.Publish(ev) }
func (p *Plane) PublishValueChanged(ev ValueChange)       { p.valueChg.Publish(ev) }
func (p *Plane) PublishAlarm(ev Alarm)                    { p.alarm.Publish(ev) }
func (p *Plane) PublishCompletion(ev Completion)          { p.completion.Publish(ev) }
func (p *Plane) PublishConnected()                        { p.connected.Publish(struct{}{}) }
func (p *Plane) PublishDisconnected()                     { p.disconnect.Publish(struct{}{}) }
func (p *Plane) PublishConnectionLost()                   { p.connLost.Publish(struct{}{}) }
func (p *Plane) PublishKeepalive()                        { p.keepalive.Publish(struct{}{}) }
