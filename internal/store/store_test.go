package store

import (
	"sync"
	"testing"
	"time"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/config"
	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
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

type countingObserver struct {
	created, responded, purged, expired int
}

func (o *countingObserver) AlertCreated(models.Alert)   { o.created++ }
func (o *countingObserver) AlertResponded(models.Alert) { o.responded++ }
func (o *countingObserver) AlertsPurged(n int)          { o.purged += n }
func (o *countingObserver) AlertsExpired(n int)         { o.expired += n }

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(config.DefaultPolicy(), opts...), clk
}

func input(driver, police string) models.AlertInput {
	return models.AlertInput{
		DriverName:       driver,
		PoliceID:         police,
		PoliceName:       "Officer " + police,
		StartLocation:    &geo.Point{Lat: 12.97, Lng: 77.59},
		RouteCoordinates: []geo.Point{{Lat: 12.97, Lng: 77.59}, {Lat: 12.99, Lng: 77.61}},
		StartAddress:     "MG Road",
		EndAddress:       "City Hospital",
	}
}

func inputAt(driver string, ts time.Time) models.AlertInput {
	in := input(driver, "P1")
	in.Timestamp = ts.Format(time.RFC3339Nano)
	return in
}

func TestCreateAssignsMonotonicIDsAndDefaults(t *testing.T) {
	s, clk := newTestStore(t)

	a1, err := s.Create(input("Asha", "P1"))
	require.NoError(t, err)
	a2, err := s.Create(input("Ravi", "P2"))
	require.NoError(t, err)

	assert.Equal(t, models.AlertID(1), a1.ID)
	assert.Equal(t, models.AlertID(2), a2.ID)
	assert.Equal(t, models.StatusPending, a1.Status)
	assert.Equal(t, models.TrafficUnset, a1.TrafficStatus)
	assert.True(t, a1.ForAllPolice)
	assert.Equal(t, clk.Now(), a1.ReceivedAt)
	assert.Equal(t, clk.Now().Format(time.RFC3339Nano), a1.Timestamp)

	assert.Equal(t, 2, s.ClearAll())
	a3, err := s.Create(input("Asha", "P1"))
	require.NoError(t, err)
	assert.Equal(t, models.AlertID(3), a3.ID, "ids are never reused")
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Create(models.AlertInput{StartLocation: &geo.Point{Lat: 1, Lng: 1}})
	assert.True(t, errors.IsValidation(err))

	_, err = s.Create(models.AlertInput{DriverName: "Asha"})
	assert.True(t, errors.IsValidation(err))

	assert.Equal(t, 0, s.Len(), "no partial alert is stored")
}

func TestReturnedAlertsAreCopies(t *testing.T) {
	s, _ := newTestStore(t)
	a, err := s.Create(input("Asha", "P1"))
	require.NoError(t, err)

	a.Status = models.StatusAcknowledged
	a.RouteCoordinates[0].Lat = 0

	got, err := s.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 12.97, got.RouteCoordinates[0].Lat)
}

func TestExpiryMonotonicity(t *testing.T) {
	obs := &countingObserver{}
	s, clk := newTestStore(t, WithObserver(obs))
	now := clk.Now()

	stale, err := s.Create(inputAt("Asha", now.Add(-16*time.Minute)))
	require.NoError(t, err)
	fresh, err := s.Create(inputAt("Asha", now.Add(-14*time.Minute)))
	require.NoError(t, err)

	got := s.ListActive(ListFilter{DriverName: "Asha"})
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)
	assert.Equal(t, 1, s.Len(), "the stale alert is swept during the read")
	assert.Equal(t, 1, obs.expired)

	_, err = s.Get(stale.ID)
	assert.True(t, errors.IsNotFound(err))

	clk.Advance(2 * time.Minute)
	assert.Empty(t, s.ListActive(ListFilter{}))
}

func TestSortNewestFirst(t *testing.T) {
	s, clk := newTestStore(t)
	now := clk.Now()

	_, err := s.Create(inputAt("Asha", now.Add(-1*time.Minute)))
	require.NoError(t, err)
	_, err = s.Create(inputAt("Asha", now.Add(-3*time.Minute)))
	require.NoError(t, err)
	_, err = s.Create(inputAt("Asha", now.Add(-2*time.Minute)))
	require.NoError(t, err)

	got := s.ListActive(ListFilter{DriverName: "asha"})
	require.Len(t, got, 3)
	assert.Equal(t, models.AlertID(1), got[0].ID)
	assert.Equal(t, models.AlertID(3), got[1].ID)
	assert.Equal(t, models.AlertID(2), got[2].ID)
}

func TestListFilters(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Create(input("Asha", "P1"))
	_, _ = s.Create(input("Ravi", "P2"))
	_, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficRejected})
	require.NoError(t, err)

	pending := s.ListActive(ListFilter{PendingOnly: true})
	require.Len(t, pending, 1)
	assert.Equal(t, "Ravi", pending[0].DriverName)

	mine := s.ListActive(ListFilter{DriverName: "ASHA"})
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusAcknowledged, mine[0].Status, "driver view is unfiltered by status")
}

func TestAcceptFlow(t *testing.T) {
	s, clk := newTestStore(t)
	a, err := s.Create(input("Asha", "P1"))
	require.NoError(t, err)
	require.Equal(t, models.AlertID(1), a.ID)

	res, err := s.Respond(1, models.Decision{TrafficStatus: models.TrafficAccepted, Message: "Proceed", Officer: "Officer K"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, res.Alert.Status)
	assert.Equal(t, models.TrafficAccepted, res.Alert.TrafficStatus)
	assert.Equal(t, "Officer K", res.Alert.PoliceOfficer)
	assert.Equal(t, "Proceed", res.Alert.PoliceResponse)
	require.NotNil(t, res.Alert.RespondedAt)
	assert.Equal(t, clk.Now(), *res.Alert.RespondedAt)
	require.NotNil(t, res.Alert.AcknowledgedAt)
	assert.Nil(t, res.Previous)

	got := s.ListActive(ListFilter{DriverName: "Asha"})
	require.Len(t, got, 1)
	assert.Equal(t, models.TrafficAccepted, got[0].TrafficStatus)
}

func TestRespondCannedMessage(t *testing.T) {
	s, _ := newTestStore(t, WithCannedMessage(func(ts models.TrafficStatus) string { return "canned:" + string(ts) }))
	a, _ := s.Create(input("Asha", "P1"))

	res, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficRejected})
	require.NoError(t, err)
	assert.Equal(t, "canned:rejected", res.Alert.PoliceResponse)
}

func TestRespondUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	_, _ = s.Create(input("Asha", "P1"))
	before := s.ListActive(ListFilter{})

	_, err := s.Respond(9999, models.Decision{TrafficStatus: models.TrafficAccepted})
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, before, s.ListActive(ListFilter{}))
}

func TestPurgeOnAccept(t *testing.T) {
	obs := &countingObserver{}
	s, _ := newTestStore(t, WithObserver(obs))

	p1, _ := s.Create(input("Asha", "P1"))
	p2, _ := s.Create(input("Asha", "P2"))
	p3, _ := s.Create(input("asha", "P3"))
	other, _ := s.Create(input("Ravi", "P1"))

	res, err := s.Respond(p2.ID, models.Decision{TrafficStatus: models.TrafficAccepted})
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.AlertID{p1.ID, p3.ID}, res.Purged)
	assert.Equal(t, 2, obs.purged)

	got := s.ListActive(ListFilter{DriverName: "Asha"})
	require.Len(t, got, 1)
	assert.Equal(t, p2.ID, got[0].ID)

	_, err = s.Get(other.ID)
	assert.NoError(t, err, "other drivers are untouched")
}

func TestPurgeKeepsAcknowledged(t *testing.T) {
	s, _ := newTestStore(t)

	rejected, _ := s.Create(input("Asha", "P1"))
	_, err := s.Respond(rejected.ID, models.Decision{TrafficStatus: models.TrafficRejected})
	require.NoError(t, err)
	pending, _ := s.Create(input("Asha", "P3"))
	accepted, _ := s.Create(input("Asha", "P2"))

	res, err := s.Respond(accepted.ID, models.Decision{TrafficStatus: models.TrafficAccepted})
	require.NoError(t, err)
	assert.Equal(t, []models.AlertID{pending.ID}, res.Purged)

	got := s.ListActive(ListFilter{DriverName: "Asha"})
	require.Len(t, got, 2)
	ids := []models.AlertID{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []models.AlertID{rejected.ID, accepted.ID}, ids)

	assert.Empty(t, s.PurgeAcceptedDuplicates(res.Alert))
}

func TestRespondOverwrite(t *testing.T) {
	t.Run("last write wins by default", func(t *testing.T) {
		s, _ := newTestStore(t)
		a, _ := s.Create(input("Asha", "P1"))
		_, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficRejected})
		require.NoError(t, err)

		res, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficAccepted, Officer: "Officer M"})
		require.NoError(t, err)
		require.NotNil(t, res.Previous)
		assert.Equal(t, models.TrafficRejected, *res.Previous)
		assert.Equal(t, models.TrafficAccepted, res.Alert.TrafficStatus)
		assert.Equal(t, "Officer M", res.Alert.PoliceOfficer)
	})

	t.Run("guarded", func(t *testing.T) {
		policy := config.DefaultPolicy()
		policy.AllowOverwrite = false
		s := New(policy)
		a, _ := s.Create(input("Asha", "P1"))
		_, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficRejected})
		require.NoError(t, err)

		_, err = s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficAccepted})
		assert.True(t, errors.IsCode(err, errors.CodeConflict))
		got, _ := s.Get(a.ID)
		assert.Equal(t, models.TrafficRejected, got.TrafficStatus)
	})
}

func TestRespondExpiredIsNotFound(t *testing.T) {
	s, clk := newTestStore(t)
	a, _ := s.Create(input("Asha", "P1"))
	clk.Advance(16 * time.Minute)

	_, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficAccepted})
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 0, s.Len())
}

func TestDeleteAndClear(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Create(input("Asha", "P1"))
	_, _ = s.Create(input("Ravi", "P2"))

	deleted, err := s.Delete(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)

	_, err = s.Delete(a.ID)
	assert.True(t, errors.IsNotFound(err))

	assert.Equal(t, 1, s.ClearAll())
	assert.Empty(t, s.ListActive(ListFilter{}))
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	in := input("Asha", "P1")
	in.Area = "north"
	a, _ := s.Create(in)
	in = input("Ravi", "P2")
	in.Area = "north"
	_, _ = s.Create(in)
	_, _ = s.Create(input("Mina", "P3"))
	_, err := s.Respond(a.ID, models.Decision{TrafficStatus: models.TrafficAccepted})
	require.NoError(t, err)

	st := s.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, StatusCounts{Pending: 2, Acknowledged: 1}, st.ByStatus)
	assert.Equal(t, 1, st.ByTrafficStatus["accepted"])
	assert.Equal(t, 2, st.ByTrafficStatus["unset"])
	assert.Equal(t, StatusCounts{Pending: 1, Acknowledged: 1}, st.ByArea["north"])
	assert.Equal(t, StatusCounts{Pending: 1}, st.ByArea[models.DefaultArea])
}

func TestSweepExpired(t *testing.T) {
	s, clk := newTestStore(t)
	_, _ = s.Create(input("Asha", "P1"))
	clk.Advance(10 * time.Minute)
	_, _ = s.Create(input("Ravi", "P1"))
	clk.Advance(6 * time.Minute)

	assert.Equal(t, 1, s.SweepExpired())
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentRespondAndCreate(t *testing.T) {
	s, _ := newTestStore(t)
	accepted, _ := s.Create(input("Asha", "P0"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Create(input("Ravi", "P1"))
			_ = s.ListActive(ListFilter{PendingOnly: true})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Respond(accepted.ID, models.Decision{TrafficStatus: models.TrafficAccepted})
	}()
	wg.Wait()

	assert.Equal(t, 51, s.Len())
	got, err := s.Get(accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrafficAccepted, got.TrafficStatus)
}

func TestCreateMatchedRefusedDuringAcceptCooldown(t *testing.T) {
	s, clk := newTestStore(t)

	created, remaining, err := s.CreateMatched("Asha", []models.AlertInput{input("Asha", "p1"), input("Asha", "p2")})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Zero(t, remaining)

	_, err = s.Respond(created[0].ID, models.Decision{TrafficStatus: models.TrafficAccepted})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	created, remaining, err = s.CreateMatched("asha", []models.AlertInput{input("Asha", "p3")})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 4*time.Minute, remaining)
	assert.Len(t, s.ListActive(ListFilter{DriverName: "Asha", PendingOnly: true}), 0)

	other, _, err := s.CreateMatched("Ravi", []models.AlertInput{input("Ravi", "p3")})
	require.NoError(t, err)
	assert.Len(t, other, 1, "other drivers are not affected")

	clk.Advance(5 * time.Minute)
	created, remaining, err = s.CreateMatched("Asha", []models.AlertInput{input("Asha", "p3")})
	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Zero(t, remaining)

	_, _, err = s.CreateMatched("Asha", []models.AlertInput{{DriverName: "Asha"}})
	assert.True(t, errors.IsValidation(err))
}

func TestFutureClientTimestampStillExpires(t *testing.T) {
	s, clk := newTestStore(t)
	now := clk.Now()

	future, err := s.Create(inputAt("Asha", now.Add(24*time.Hour)))
	require.NoError(t, err)
	_, err = s.Create(inputAt("Asha", now))
	require.NoError(t, err)

	list := s.ListActive(ListFilter{DriverName: "Asha"})
	require.Len(t, list, 2)
	assert.NotEqual(t, future.ID, list[0].ID, "a skewed clock does not pin the alert to the top")

	clk.Advance(16 * time.Minute)
	assert.Empty(t, s.ListActive(ListFilter{DriverName: "Asha"}))
}
