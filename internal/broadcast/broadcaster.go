package broadcast

import (
	"context"
	"sync"
	"time"

	"GreenCorridor/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	EventAlertNew       = "alert:new"
	EventAlertResponded = "alert:responded"
	EventAlertPurged    = "alert:purged"

	GroupResponders = "responders"
	GroupDrivers    = "drivers"
)

// Sink is one delivery channel. The websocket and SSE hubs satisfy it directly.
type Sink interface {
	Publish(group, event string, payload interface{}) error
}

type namedSink struct {
	name string
	sink Sink
}

// Recorder receives delivery outcomes; *metrics.Metrics satisfies it.
type Recorder interface {
	RecordBroadcast(event, sink string, err error)
	RecordBroadcastDropped()
}

// Event is one message addressed to one or more groups.
type Event struct {
	ID      string
	Name    string
	Groups  []string
	Payload interface{}
}

// RespondedPayload is what a driver receives when a responder decides.
type RespondedPayload struct {
	Alert         models.Alert         `json:"alert"`
	TrafficStatus models.TrafficStatus `json:"trafficStatus"`
	Message       string               `json:"message"`
	Purged        []models.AlertID     `json:"purged,omitempty"`
}

// PurgedPayload lists alerts removed after an accept.
type PurgedPayload struct {
	DriverName string           `json:"driverName"`
	AlertIDs   []models.AlertID `json:"alertIds"`
}

type Config struct {
	QueueSize int
	Workers   int
}

// Broadcaster fans events out to every sink from a bounded queue.
// Enqueueing never blocks; a full queue drops the event.
type Broadcaster struct {
	sinks    []namedSink
	recorder Recorder
	tasks    chan Event
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

type Option func(*Broadcaster)

// WithSink adds a named delivery channel.
func WithSink(name string, s Sink) Option {
	return func(b *Broadcaster) {
		if s != nil {
			b.sinks = append(b.sinks, namedSink{name: name, sink: s})
		}
	}
}

func WithRecorder(r Recorder) Option { return func(b *Broadcaster) { b.recorder = r } }

func New(cfg Config, opts ...Option) *Broadcaster {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		tasks:  make(chan Event, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	return b
}

// Enqueue schedules ev for delivery and reports whether it was accepted.
func (b *Broadcaster) Enqueue(ev Event) bool {
	if b.ctx.Err() != nil {
		return false
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case b.tasks <- ev:
		return true
	default:
		logrus.Warnf("broadcast queue full, dropping %s (%s)", ev.Name, ev.ID)
		if b.recorder != nil {
			b.recorder.RecordBroadcastDropped()
		}
		return false
	}
}

func (b *Broadcaster) AlertCreated(a models.Alert) bool {
	return b.Enqueue(Event{Name: EventAlertNew, Groups: []string{GroupResponders}, Payload: a})
}

// AlertResponded notifies every driver client once; clients match on driverName.
func (b *Broadcaster) AlertResponded(a models.Alert, purged []models.AlertID) bool {
	ok := b.Enqueue(Event{
		Name:   EventAlertResponded,
		Groups: []string{GroupDrivers},
		Payload: RespondedPayload{
			Alert:         a,
			TrafficStatus: a.TrafficStatus,
			Message:       a.PoliceResponse,
			Purged:        purged,
		},
	})
	if len(purged) > 0 {
		b.AlertsPurged(a.DriverName, purged)
	}
	return ok
}

// AlertsPurged tells responders and drivers to drop alerts they may still be showing.
func (b *Broadcaster) AlertsPurged(driver string, ids []models.AlertID) bool {
	return b.Enqueue(Event{
		Name:    EventAlertPurged,
		Groups:  []string{GroupResponders, GroupDrivers},
		Payload: PurgedPayload{DriverName: driver, AlertIDs: ids},
	})
}

// Close stops the workers after the queue drains or timeout passes.
func (b *Broadcaster) Close(timeout time.Duration) {
	b.once.Do(func() {
		deadline := time.Now().Add(timeout)
		for len(b.tasks) > 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		b.cancel()
		b.wg.Wait()
	})
}

func (b *Broadcaster) worker(id int) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			logrus.Debugf("broadcast worker %d stopped", id)
			return
		case ev := <-b.tasks:
			b.deliver(ev)
		}
	}
}

// deliver sends ev to every sink and group. Failures are logged and swallowed.
func (b *Broadcaster) deliver(ev Event) {
	for _, s := range b.sinks {
		var firstErr error
		for _, g := range ev.Groups {
			if err := s.sink.Publish(g, ev.Name, ev.Payload); err != nil {
				logrus.WithFields(logrus.Fields{"event": ev.Name, "id": ev.ID, "sink": s.name, "group": g}).
					Warnf("broadcast failed: %v", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if b.recorder != nil {
			b.recorder.RecordBroadcast(ev.Name, s.name, firstErr)
		}
	}
}
