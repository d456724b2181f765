package store

import (
	"sort"
	"sync"
	"time"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/config"
	"GreenCorridor/pkg/errors"
)

// Observer receives lifecycle notifications. Calls happen with the store lock
// held, so implementations must not call back into the store.
type Observer interface {
	AlertCreated(a models.Alert)
	AlertResponded(a models.Alert)
	AlertsPurged(n int)
	AlertsExpired(n int)
}

type nopObserver struct{}

func (nopObserver) AlertCreated(models.Alert)   {}
func (nopObserver) AlertResponded(models.Alert) {}
func (nopObserver) AlertsPurged(int)            {}
func (nopObserver) AlertsExpired(int)           {}

// CannedMessage returns the default response text for a decision.
type CannedMessage func(models.TrafficStatus) string

func DefaultCannedMessage(ts models.TrafficStatus) string {
	switch ts {
	case models.TrafficAccepted:
		return "Route is clear. Proceed."
	case models.TrafficRejected:
		return "Route is busy. Please take another way."
	default:
		return "Alert acknowledged by traffic police."
	}
}

// Store is the in-memory alert registry. One mutex guards every operation,
// so a respond and its duplicate purge never interleave with a create.
type Store struct {
	mu       sync.Mutex
	alerts   map[models.AlertID]*models.Alert
	order    []models.AlertID
	lastID   int64
	policy   config.Policy
	now      func() time.Time
	canned   CannedMessage
	observer Observer
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithCannedMessage(fn CannedMessage) Option { return func(s *Store) { s.canned = fn } }

func WithObserver(o Observer) Option { return func(s *Store) { s.observer = o } }

func New(policy config.Policy, opts ...Option) *Store {
	if policy.AlertExpiry <= 0 {
		policy.AlertExpiry = config.DefaultPolicy().AlertExpiry
	}
	s := &Store{
		alerts:   make(map[models.AlertID]*models.Alert),
		policy:   policy,
		now:      time.Now,
		canned:   DefaultCannedMessage,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, assigns the next id and stores a pending alert.
func (s *Store) Create(in models.AlertInput) (models.Alert, error) {
	if err := in.Normalize(); err != nil {
		return models.Alert{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(in), nil
}

// CreateMatched stores the alerts a matching pass decided to emit for driver.
// Matching reads history before this call, so an accept may have landed in
// between; when the driver has a live accepted alert inside AcceptCooldown
// nothing is created and the remaining cooldown is returned.
func (s *Store) CreateMatched(driver string, inputs []models.AlertInput) ([]models.Alert, time.Duration, error) {
	for i := range inputs {
		if err := inputs[i].Normalize(); err != nil {
			return nil, 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	if r := s.acceptCooldownLocked(driver); r > 0 {
		return nil, r, nil
	}
	out := make([]models.Alert, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, s.createLocked(in))
	}
	return out, 0, nil
}

// acceptCooldownLocked is how long driver stays suppressed by its newest accepted alert.
func (s *Store) acceptCooldownLocked(driver string) time.Duration {
	if s.policy.AcceptCooldown <= 0 {
		return 0
	}
	now := s.now()
	var remaining time.Duration
	for _, id := range s.order {
		a := s.alerts[id]
		if a.TrafficStatus != models.TrafficAccepted || a.RespondedAt == nil || !models.SameDriver(a.DriverName, driver) {
			continue
		}
		if r := a.RespondedAt.Add(s.policy.AcceptCooldown).Sub(now); r > remaining {
			remaining = r
		}
	}
	return remaining
}

func (s *Store) createLocked(in models.AlertInput) models.Alert {
	now := s.now()
	s.lastID++
	a := &models.Alert{
		ID:               models.AlertID(s.lastID),
		DriverName:       in.DriverName,
		PoliceID:         in.PoliceID,
		PoliceName:       in.PoliceName,
		ForAllPolice:     true,
		Area:             in.Area,
		RouteCoordinates: in.RouteCoordinates,
		StartLocation:    in.StartLocation,
		EndLocation:      in.EndLocation,
		StartAddress:     in.StartAddress,
		EndAddress:       in.EndAddress,
		DistanceMeters:   in.DistanceMeters,
		Timestamp:        in.Timestamp,
		ReceivedAt:       now,
		Status:           models.StatusPending,
	}
	if a.Timestamp == "" {
		a.Timestamp = now.UTC().Format(time.RFC3339Nano)
	}
	stored := a.Clone()
	s.alerts[a.ID] = &stored
	s.order = append(s.order, a.ID)

	out := stored.Clone()
	s.observer.AlertCreated(out)
	return out
}

// ListFilter selects alerts for driver polling (DriverName) or responder dashboards (PendingOnly).
type ListFilter struct {
	DriverName  string
	PendingOnly bool
}

// ListActive sweeps expired alerts, then returns the matching ones newest first.
func (s *Store) ListActive(f ListFilter) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	out := make([]models.Alert, 0, len(s.order))
	for _, id := range s.order {
		a := s.alerts[id]
		if f.DriverName != "" && !models.SameDriver(a.DriverName, f.DriverName) {
			continue
		}
		if f.PendingOnly && !a.IsPending() {
			continue
		}
		out = append(out, a.Clone())
	}
	sortNewestFirst(out)
	return out
}

// Get returns one live alert.
func (s *Store) Get(id models.AlertID) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.liveLocked(id)
	if err != nil {
		return models.Alert{}, err
	}
	return a.Clone(), nil
}

// RespondResult is the outcome of a responder decision.
type RespondResult struct {
	Alert models.Alert
	// Purged holds the ids of the driver's other pending alerts removed by an accept.
	Purged []models.AlertID
	// Previous is the decision that was overwritten, if the alert was already acknowledged.
	Previous *models.TrafficStatus
}

// Respond records a decision on alert id. When the decision is an accept, the
// driver's other pending alerts are purged in the same critical section.
func (s *Store) Respond(id models.AlertID, d models.Decision) (RespondResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.liveLocked(id)
	if err != nil {
		return RespondResult{}, err
	}

	var res RespondResult
	if a.Status.Terminal() {
		if !s.policy.AllowOverwrite {
			return RespondResult{}, errors.Conflictf("alert %d already responded", id)
		}
		prev := a.TrafficStatus
		res.Previous = &prev
	}

	now := s.now()
	msg := d.Message
	if msg == "" {
		msg = s.canned(d.TrafficStatus)
	}
	a.Status = models.StatusAcknowledged
	a.TrafficStatus = d.TrafficStatus
	a.PoliceResponse = msg
	a.PoliceOfficer = d.Officer
	a.RespondedAt = &now
	ack := now
	a.AcknowledgedAt = &ack

	if d.TrafficStatus == models.TrafficAccepted {
		res.Purged = s.purgeLocked(*a)
	}
	res.Alert = a.Clone()
	s.observer.AlertResponded(res.Alert)
	return res, nil
}

// PurgeAcceptedDuplicates removes every other pending alert of accepted's driver.
// Acknowledged alerts are kept so earlier rejections stay visible.
func (s *Store) PurgeAcceptedDuplicates(accepted models.Alert) []models.AlertID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(accepted)
}

func (s *Store) purgeLocked(accepted models.Alert) []models.AlertID {
	var purged []models.AlertID
	s.removeLocked(func(a *models.Alert) bool {
		if a.ID == accepted.ID || !a.IsPending() || !models.SameDriver(a.DriverName, accepted.DriverName) {
			return false
		}
		purged = append(purged, a.ID)
		return true
	})
	if len(purged) > 0 {
		s.observer.AlertsPurged(len(purged))
	}
	return purged
}

func (s *Store) Delete(id models.AlertID) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, errors.NotFoundf("alert %d not found", id)
	}
	out := a.Clone()
	s.removeLocked(func(x *models.Alert) bool { return x.ID == id })
	return out, nil
}

// ClearAll drops every alert and returns how many were held. Ids keep increasing.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.alerts)
	s.alerts = make(map[models.AlertID]*models.Alert)
	s.order = nil
	return n
}

// SweepExpired removes expired alerts without listing. Used by the scheduled sweep.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// StatusCounts is a pending/acknowledged breakdown.
type StatusCounts struct {
	Pending      int `json:"pending"`
	Acknowledged int `json:"acknowledged"`
}

type Stats struct {
	Total           int                     `json:"total"`
	ByStatus        StatusCounts            `json:"byStatus"`
	ByTrafficStatus map[string]int          `json:"byTrafficStatus"`
	ByArea          map[string]StatusCounts `json:"byArea"`
}

// Stats sweeps and then aggregates live alerts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	st := Stats{
		ByTrafficStatus: map[string]int{"accepted": 0, "rejected": 0, "unset": 0},
		ByArea:          make(map[string]StatusCounts),
	}
	for _, id := range s.order {
		a := s.alerts[id]
		st.Total++
		area := st.ByArea[a.Area]
		if a.IsPending() {
			st.ByStatus.Pending++
			area.Pending++
		} else {
			st.ByStatus.Acknowledged++
			area.Acknowledged++
		}
		st.ByArea[a.Area] = area
		switch a.TrafficStatus {
		case models.TrafficAccepted:
			st.ByTrafficStatus["accepted"]++
		case models.TrafficRejected:
			st.ByTrafficStatus["rejected"]++
		default:
			st.ByTrafficStatus["unset"]++
		}
	}
	return st
}

// liveLocked finds id, treating an expired alert as absent and dropping it.
func (s *Store) liveLocked(id models.AlertID) (*models.Alert, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.NotFoundf("alert %d not found", id)
	}
	if s.expired(a, s.now()) {
		s.removeLocked(func(x *models.Alert) bool { return x.ID == id })
		s.observer.AlertsExpired(1)
		return nil, errors.NotFoundf("alert %d not found", id)
	}
	return a, nil
}

func (s *Store) expired(a *models.Alert, now time.Time) bool {
	return now.Sub(a.EffectiveTime()) > s.policy.AlertExpiry
}

func (s *Store) sweepLocked() int {
	now := s.now()
	n := s.removeLocked(func(a *models.Alert) bool { return s.expired(a, now) })
	if n > 0 {
		s.observer.AlertsExpired(n)
	}
	return n
}

// removeLocked deletes every alert matching drop, keeping insertion order for the rest.
func (s *Store) removeLocked(drop func(*models.Alert) bool) int {
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if a := s.alerts[id]; drop(a) {
			delete(s.alerts, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

func sortNewestFirst(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ti, tj := alerts[i].EffectiveTime(), alerts[j].EffectiveTime()
		if ti.Equal(tj) {
			return alerts[i].ID > alerts[j].ID
		}
		return ti.After(tj)
	})
}
