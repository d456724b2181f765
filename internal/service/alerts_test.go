package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"GreenCorridor/internal/matching"
	"GreenCorridor/internal/models"
	"GreenCorridor/internal/store"
	"GreenCorridor/pkg/cache"
	"GreenCorridor/pkg/config"
	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/geo"
	"GreenCorridor/pkg/i18n"
	"GreenCorridor/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	created   []models.Alert
	responded []models.Alert
	purged    [][]models.AlertID
}

func (n *recordingNotifier) AlertCreated(a models.Alert) bool {
	n.created = append(n.created, a)
	return true
}

func (n *recordingNotifier) AlertResponded(a models.Alert, purged []models.AlertID) bool {
	n.responded = append(n.responded, a)
	n.purged = append(n.purged, purged)
	return true
}

type decisionCounter map[string]int

func (d decisionCounter) RecordMatchDecision(result string) { d[result]++ }

type fixture struct {
	svc       *AlertService
	clock     *fakeClock
	notifier  *recordingNotifier
	decisions decisionCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := util.InitDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Responder{}))

	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	policy := config.DefaultPolicy()
	cooldowns := cache.NewGoCache(cache.DefaultLocalConfig())
	tr, err := i18n.NewI18nSupport("en", "")
	require.NoError(t, err)

	f := &fixture{clock: clk, notifier: &recordingNotifier{}, decisions: decisionCounter{}}
	f.svc = NewAlertService(
		store.New(policy, store.WithClock(clk.Now)),
		matching.NewEngine(policy, cooldowns, matching.WithClock(clk.Now)),
		db,
		WithNotifier(f.notifier),
		WithI18n(tr),
		WithDecisionRecorder(f.decisions),
		WithClock(clk.Now),
	)
	return f
}

func (f *fixture) responder(t *testing.T, id string, dLat float64) {
	t.Helper()
	_, err := f.svc.UpsertResponder(context.Background(), id, models.LocationUpdate{Name: "Officer " + id, Area: "central", Lat: 12.9716 + dLat, Lng: 77.5946})
	require.NoError(t, err)
}

func proximity(driver string) models.ProximityRequest {
	amb := geo.Point{Lat: 12.9716, Lng: 77.5946}
	return models.ProximityRequest{AlertInput: models.AlertInput{
		DriverName:        driver,
		AmbulanceLocation: &amb,
		RouteCoordinates:  []geo.Point{amb, {Lat: 12.98, Lng: 77.60}},
		StartAddress:      "MG Road",
		EndAddress:        "City Hospital",
	}}
}

func TestProximityCreatesAndThrottles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.responder(t, "p1", 0.001)
	f.responder(t, "p2", 0.005)
	f.responder(t, "p3", 0.05)

	res, err := f.svc.Proximity(ctx, proximity("Asha"))
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "p1", res.Created[0].PoliceID)
	assert.Equal(t, "central", res.Created[0].Area)
	assert.Len(t, f.notifier.created, 2)

	res, err = f.svc.Proximity(ctx, proximity("asha"))
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 2, f.decisions[string(matching.SkipResponderCooldown)])

	f.clock.Advance(3 * time.Minute)
	_, err = f.svc.Proximity(ctx, proximity("Asha"))
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	res, err = f.svc.Proximity(ctx, proximity("Asha"))
	require.NoError(t, err)
	require.Len(t, res.Created, 1, "fifth pending alert fills the total cap")
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, matching.SkipTotalCap, res.Skipped[0].Reason)
	assert.Equal(t, 5, f.decisions["emit"])
}

func TestProximityNeedsRouteContext(t *testing.T) {
	f := newFixture(t)
	f.responder(t, "p1", 0.001)

	req := proximity("Asha")
	req.EndAddress = ""
	res, err := f.svc.Proximity(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, matching.SkipMissingContext, res.Skipped[0].Reason)

	_, err = f.svc.Proximity(context.Background(), models.ProximityRequest{})
	assert.True(t, errors.IsValidation(err))
}

func TestRespondAcceptPurgesAndStartsCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.responder(t, "p1", 0.001)
	f.responder(t, "p2", 0.002)

	res, err := f.svc.Proximity(ctx, proximity("Asha"))
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	out, err := f.svc.Respond(ctx, models.RespondRequest{AlertID: res.Created[0].ID, TrafficStatus: "clear", OfficerName: "K"}, "hi")
	require.NoError(t, err)
	assert.Equal(t, models.TrafficAccepted, out.Alert.TrafficStatus)
	assert.Equal(t, "रास्ता साफ़ है। आगे बढ़ें।", out.Alert.PoliceResponse)
	assert.Equal(t, []models.AlertID{res.Created[1].ID}, out.Purged)
	require.Len(t, f.notifier.purged, 1)
	assert.Equal(t, out.Purged, f.notifier.purged[0])

	f.clock.Advance(time.Minute)
	again, err := f.svc.Proximity(ctx, proximity("Asha"))
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 4*time.Minute, again.CooldownRemaining)
	assert.Equal(t, 1, f.decisions["accept_cooldown"])
}

func TestRespondErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Respond(ctx, models.RespondRequest{AlertID: 99, TrafficStatus: "accepted"}, "en")
	assert.True(t, errors.IsNotFound(err))

	_, err = f.svc.Respond(ctx, models.RespondRequest{AlertID: 1, TrafficStatus: "maybe"}, "en")
	assert.True(t, errors.IsValidation(err))
}

func TestListAlertsAndSweep(t *testing.T) {
	f := newFixture(t)
	start := geo.Point{Lat: 1, Lng: 1}
	_, err := f.svc.CreateAlert(models.AlertInput{DriverName: "Asha", StartLocation: &start})
	require.NoError(t, err)
	b, err := f.svc.CreateAlert(models.AlertInput{DriverName: "Ravi", StartLocation: &start})
	require.NoError(t, err)
	_, err = f.svc.Respond(context.Background(), models.RespondRequest{AlertID: b.ID, TrafficStatus: "rejected"}, "en")
	require.NoError(t, err)

	assert.Len(t, f.svc.ListAlerts(""), 1, "responders see pending only")
	assert.Len(t, f.svc.ListAlerts("RAVI"), 1)

	f.clock.Advance(16 * time.Minute)
	f.svc.SweepExpired(context.Background())
	assert.Equal(t, 0, f.svc.Store().Len())
}

func TestProximityDropsAlertsWhenAcceptLandsDuringMatching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.responder(t, "p1", 0.001)

	start := geo.Point{Lat: 12.9716, Lng: 77.5946}
	first, err := f.svc.CreateAlert(models.AlertInput{DriverName: "Asha", PoliceID: "p9", StartLocation: &start})
	require.NoError(t, err)

	// the engine reads the clock once for the cooldown and once more after
	// the history snapshot; accept the earlier alert on the second read
	calls := 0
	f.svc.engine = matching.NewEngine(config.DefaultPolicy(), cache.NewGoCache(cache.DefaultLocalConfig()),
		matching.WithClock(func() time.Time {
			calls++
			if calls == 2 {
				_, err := f.svc.Respond(ctx, models.RespondRequest{AlertID: first.ID, TrafficStatus: "accepted"}, "en")
				require.NoError(t, err)
			}
			return f.clock.Now()
		}))

	res, err := f.svc.Proximity(ctx, proximity("Asha"))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	assert.Empty(t, res.Created)
	assert.Equal(t, 5*time.Minute, res.CooldownRemaining)

	alerts := f.svc.ListAlerts("Asha")
	require.Len(t, alerts, 1)
	assert.Equal(t, first.ID, alerts[0].ID)
	assert.Equal(t, models.TrafficAccepted, alerts[0].TrafficStatus)
	assert.Len(t, f.notifier.created, 1, "only the manual alert was announced")
}
