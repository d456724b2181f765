package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	group, event string
	payload      interface{}
}

type fakeSink struct {
	mu    sync.Mutex
	got   []published
	err   error
	block chan struct{}
}

func (f *fakeSink) Publish(group, event string, payload interface{}) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, published{group, event, payload})
	return f.err
}

func (f *fakeSink) events() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.got...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string]int
	dropped int
}

func (r *fakeRecorder) RecordBroadcast(event, sink string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	key := sink + "/ok"
	if err != nil {
		key = sink + "/error"
	}
	r.results[key]++
}

func (r *fakeRecorder) RecordBroadcastDropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

func (r *fakeRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[key]
}

func TestAlertCreatedGoesToResponders(t *testing.T) {
	sink := &fakeSink{}
	b := New(Config{QueueSize: 8, Workers: 1}, WithSink("ws", sink))
	defer b.Close(time.Second)

	require.True(t, b.AlertCreated(models.Alert{ID: 1, DriverName: "Asha"}))
	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, time.Second, 5*time.Millisecond)

	ev := sink.events()[0]
	assert.Equal(t, GroupResponders, ev.group)
	assert.Equal(t, EventAlertNew, ev.event)
}

func TestAlertRespondedTargetsDriversOnceAndPurge(t *testing.T) {
	sink := &fakeSink{}
	b := New(Config{QueueSize: 8, Workers: 1}, WithSink("sse", sink))
	defer b.Close(time.Second)

	a := models.Alert{ID: 4, DriverName: " Asha ", TrafficStatus: models.TrafficAccepted, PoliceResponse: "go"}
	b.AlertResponded(a, []models.AlertID{5, 6})
	require.Eventually(t, func() bool { return len(sink.events()) == 3 }, time.Second, 5*time.Millisecond)

	var groups []string
	for _, ev := range sink.events() {
		groups = append(groups, ev.event+"@"+ev.group)
	}
	assert.ElementsMatch(t, []string{
		"alert:responded@drivers",
		"alert:purged@responders",
		"alert:purged@drivers",
	}, groups)

	for _, ev := range sink.events() {
		if p, ok := ev.payload.(RespondedPayload); ok {
			assert.Equal(t, "go", p.Message)
			assert.Equal(t, models.TrafficAccepted, p.TrafficStatus)
		}
	}
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	bad := &fakeSink{err: errors.New("connection reset")}
	good := &fakeSink{}
	rec := &fakeRecorder{}
	b := New(Config{QueueSize: 8, Workers: 2}, WithSink("bad", bad), WithSink("good", good), WithRecorder(rec))
	defer b.Close(time.Second)

	b.AlertCreated(models.Alert{ID: 1, DriverName: "Asha"})
	require.Eventually(t, func() bool { return len(good.events()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rec.count("bad/error") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count("good/ok"))
}

func TestFullQueueDrops(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	rec := &fakeRecorder{}
	b := New(Config{QueueSize: 1, Workers: 1}, WithSink("ws", sink), WithRecorder(rec))

	// the first event parks the worker, the second fills the queue
	require.True(t, b.AlertCreated(models.Alert{ID: 1}))
	require.Eventually(t, func() bool { return len(b.tasks) == 0 }, time.Second, time.Millisecond)
	require.True(t, b.AlertCreated(models.Alert{ID: 2}))
	assert.False(t, b.AlertCreated(models.Alert{ID: 3}))
	assert.Equal(t, 1, rec.dropped)

	close(sink.block)
	b.Close(time.Second)
	assert.False(t, b.AlertCreated(models.Alert{ID: 4}), "closed broadcaster rejects events")
}

type recordingPush struct {
	mu       sync.Mutex
	titles   []string
	audience []map[string]interface{}
}

func (r *recordingPush) Push(_ context.Context, title, _ string, audience map[string]interface{}, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.audience = append(r.audience, audience)
	return nil
}

func TestPushSink(t *testing.T) {
	cli := &recordingPush{}
	s := NewPushSink(notification.NewJPush(notification.JPushConfig{}, cli))

	require.NoError(t, s.Publish(GroupResponders, EventAlertNew, models.Alert{ID: 1, DriverName: "Asha"}))
	require.NoError(t, s.Publish(GroupDrivers, EventAlertResponded, RespondedPayload{TrafficStatus: models.TrafficRejected, Message: "busy"}))
	require.NoError(t, s.Publish(GroupResponders, EventAlertPurged, PurgedPayload{}))

	assert.Equal(t, []string{"Ambulance nearby", "Route rejected"}, cli.titles)
	assert.Equal(t, []string{GroupDrivers}, cli.audience[1]["tag"])

	unconfigured := NewPushSink(notification.NewJPush(notification.JPushConfig{}, nil))
	assert.ErrorIs(t, unconfigured.Publish(GroupResponders, EventAlertNew, models.Alert{}), notification.ErrNotConfigured)
}
