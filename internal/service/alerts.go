package service

import (
	"context"
	"time"

	"GreenCorridor/internal/matching"
	"GreenCorridor/internal/models"
	"GreenCorridor/internal/store"
	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/geo"
	"GreenCorridor/pkg/i18n"
	"GreenCorridor/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier publishes alert lifecycle events; *broadcast.Broadcaster satisfies it.
type Notifier interface {
	AlertCreated(a models.Alert) bool
	AlertResponded(a models.Alert, purged []models.AlertID) bool
}

// DecisionRecorder counts matching outcomes; *metrics.Metrics satisfies it.
type DecisionRecorder interface {
	RecordMatchDecision(result string)
}

type nopNotifier struct{}

func (nopNotifier) AlertCreated(models.Alert) bool                    { return true }
func (nopNotifier) AlertResponded(models.Alert, []models.AlertID) bool { return true }

// AlertService ties the alert store, the responder directory and the matching
// engine together. Every mutation is broadcast after the store lock is released.
type AlertService struct {
	store    *store.Store
	engine   *matching.Engine
	db       *gorm.DB
	notifier Notifier
	i18n     *i18n.I18nSupport
	recorder DecisionRecorder
	// responders not heard from within maxAge are ignored by proximity matching
	maxAge time.Duration
	now    func() time.Time
}

type Option func(*AlertService)

func WithNotifier(n Notifier) Option { return func(s *AlertService) { s.notifier = n } }

func WithI18n(t *i18n.I18nSupport) Option { return func(s *AlertService) { s.i18n = t } }

func WithDecisionRecorder(r DecisionRecorder) Option { return func(s *AlertService) { s.recorder = r } }

func WithResponderMaxAge(d time.Duration) Option { return func(s *AlertService) { s.maxAge = d } }

func WithClock(now func() time.Time) Option { return func(s *AlertService) { s.now = now } }

func NewAlertService(st *store.Store, engine *matching.Engine, db *gorm.DB, opts ...Option) *AlertService {
	s := &AlertService{
		store:    st,
		engine:   engine,
		db:       db,
		notifier: nopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AlertService) Store() *store.Store { return s.store }

func (s *AlertService) CreateAlert(in models.AlertInput) (models.Alert, error) {
	a, err := s.store.Create(in)
	if err != nil {
		return models.Alert{}, err
	}
	logger.Info("alert created", zap.Int64("id", int64(a.ID)), zap.String("driver", a.DriverName), zap.String("police", a.PoliceID))
	s.notifier.AlertCreated(a)
	return a, nil
}

// ListAlerts returns a driver's alerts when driver is set, else every pending alert.
func (s *AlertService) ListAlerts(driver string) []models.Alert {
	if driver != "" {
		return s.store.ListActive(store.ListFilter{DriverName: driver})
	}
	return s.store.ListActive(store.ListFilter{PendingOnly: true})
}

func (s *AlertService) GetAlert(id models.AlertID) (models.Alert, error) { return s.store.Get(id) }

// Respond records a responder decision. An empty message is replaced with the
// canned text in lang.
func (s *AlertService) Respond(ctx context.Context, req models.RespondRequest, lang string) (store.RespondResult, error) {
	d, err := req.Decision()
	if err != nil {
		return store.RespondResult{}, err
	}
	if d.Message == "" && s.i18n != nil {
		d.Message = s.i18n.T(lang, cannedMessageID(d.TrafficStatus), nil)
	}
	res, err := s.store.Respond(req.AlertID, d)
	if err != nil {
		return store.RespondResult{}, err
	}
	if res.Previous != nil {
		logger.Warn("alert decision overwritten",
			zap.Int64("id", int64(req.AlertID)),
			zap.String("previous", string(*res.Previous)),
			zap.String("decision", d.String()))
	}
	logger.Info("alert responded",
		zap.Int64("id", int64(res.Alert.ID)),
		zap.String("decision", d.String()),
		zap.Int("purged", len(res.Purged)))
	if res.Alert.TrafficStatus == models.TrafficAccepted && res.Alert.RespondedAt != nil {
		s.engine.StartAcceptCooldown(ctx, res.Alert.DriverName, *res.Alert.RespondedAt)
	}
	s.notifier.AlertResponded(res.Alert, res.Purged)
	return res, nil
}

func (s *AlertService) DeleteAlert(id models.AlertID) (models.Alert, error) {
	return s.store.Delete(id)
}

func (s *AlertService) ClearAlerts() int {
	n := s.store.ClearAll()
	logger.Info("alerts cleared", zap.Int("count", n))
	return n
}

func (s *AlertService) Stats() store.Stats { return s.store.Stats() }

// SweepExpired is the scheduled expiry job.
func (s *AlertService) SweepExpired(ctx context.Context) {
	if n := s.store.SweepExpired(); n > 0 {
		logger.Info("expired alerts swept", zap.Int("count", n))
	}
}

// ProximityResult reports what one position update produced.
type ProximityResult struct {
	Created           []models.Alert  `json:"created"`
	Skipped           []matching.Skip `json:"skipped"`
	CooldownRemaining time.Duration   `json:"cooldownRemaining,omitempty"`
}

// Proximity runs matching for a moving ambulance against the responder
// directory and creates one alert per emitted responder.
func (s *AlertService) Proximity(ctx context.Context, req models.ProximityRequest) (ProximityResult, error) {
	tpl := req.AlertInput
	if err := tpl.Normalize(); err != nil {
		return ProximityResult{}, err
	}
	pos := tpl.StartLocation
	if tpl.AmbulanceLocation != nil {
		pos = tpl.AmbulanceLocation
	}
	if pos == nil {
		return ProximityResult{}, errors.Validationf("ambulanceLocation is required")
	}

	var since time.Time
	if s.maxAge > 0 {
		since = s.now().Add(-s.maxAge)
	}
	responders, err := models.ListActiveResponders(s.db.WithContext(ctx), "", since)
	if err != nil {
		return ProximityResult{}, err
	}

	history := req.History
	if len(history) == 0 {
		history = s.store.ListActive(store.ListFilter{DriverName: tpl.DriverName})
	}

	decision := s.engine.Evaluate(ctx, matching.Request{
		DriverName: tpl.DriverName,
		Ambulance:  geo.Point{Lat: pos.Lat, Lng: pos.Lng},
		Responders: responders,
		History:    history,
		Template:   tpl,
	})

	out := ProximityResult{Skipped: decision.Skipped, CooldownRemaining: decision.CooldownRemaining}
	if decision.CooldownRemaining > 0 {
		s.record("accept_cooldown")
		logger.Debug("proximity suppressed by accept cooldown",
			zap.String("driver", tpl.DriverName), zap.Duration("remaining", decision.CooldownRemaining))
		return out, nil
	}
	for _, sk := range decision.Skipped {
		s.record(string(sk.Reason))
	}
	if len(decision.Emit) == 0 {
		return out, nil
	}

	inputs := make([]models.AlertInput, 0, len(decision.Emit))
	for _, c := range decision.Emit {
		inputs = append(inputs, c.AlertInput(tpl))
	}
	created, remaining, err := s.store.CreateMatched(tpl.DriverName, inputs)
	if err != nil {
		return ProximityResult{}, err
	}
	if remaining > 0 {
		// an accept landed while matching ran
		s.record("accept_cooldown")
		logger.Info("proximity alerts dropped after concurrent accept",
			zap.String("driver", tpl.DriverName), zap.Int("dropped", len(inputs)), zap.Duration("remaining", remaining))
		out.CooldownRemaining = remaining
		return out, nil
	}
	for _, a := range created {
		logger.Info("alert created", zap.Int64("id", int64(a.ID)), zap.String("driver", a.DriverName), zap.String("police", a.PoliceID))
		s.notifier.AlertCreated(a)
		s.record("emit")
	}
	out.Created = created
	return out, nil
}

func (s *AlertService) UpsertResponder(ctx context.Context, id string, u models.LocationUpdate) (*models.Responder, error) {
	return models.UpsertResponderLocation(s.db.WithContext(ctx), id, u)
}

func (s *AlertService) ListResponders(ctx context.Context, area string) ([]models.Responder, error) {
	var since time.Time
	if s.maxAge > 0 {
		since = s.now().Add(-s.maxAge)
	}
	return models.ListActiveResponders(s.db.WithContext(ctx), area, since)
}

func (s *AlertService) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	return models.GetResponder(s.db.WithContext(ctx), id)
}

// RespondersAlongRoute lists active responders within bufferMeters of route; a
// non-positive buffer uses the policy corridor width.
func (s *AlertService) RespondersAlongRoute(ctx context.Context, area string, route []geo.Point, bufferMeters float64) ([]models.Responder, error) {
	if len(route) == 0 {
		return nil, errors.Validationf("route is required")
	}
	if bufferMeters <= 0 {
		bufferMeters = s.engine.Policy().CorridorBufferMeters
	}
	list, err := s.ListResponders(ctx, area)
	if err != nil {
		return nil, err
	}
	out := geo.FilterAlongRoute(list, models.Responder.Position, route, bufferMeters)
	if out == nil {
		out = []models.Responder{}
	}
	return out, nil
}

func (s *AlertService) DeactivateResponder(ctx context.Context, id string) error {
	return models.DeactivateResponder(s.db.WithContext(ctx), id)
}

func (s *AlertService) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordMatchDecision(result)
	}
}

func cannedMessageID(ts models.TrafficStatus) string {
	switch ts {
	case models.TrafficAccepted:
		return i18n.MsgRouteAccepted
	case models.TrafficRejected:
		return i18n.MsgRouteRejected
	default:
		return i18n.MsgAlertAcknowledged
	}
}
