package matching

import (
	"context"
	"strings"
	"time"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/cache"
	"GreenCorridor/pkg/config"
	"GreenCorridor/pkg/geo"
	"GreenCorridor/pkg/logger"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// SkipReason explains why an in-range responder was not alerted.
type SkipReason string

const (
	SkipAcceptCooldown    SkipReason = "accept_cooldown"
	SkipAlreadyResponded  SkipReason = "already_responded"
	SkipResponderCap      SkipReason = "responder_cap"
	SkipResponderCooldown SkipReason = "responder_cooldown"
	SkipTotalCap          SkipReason = "total_cap"
	SkipMissingContext    SkipReason = "missing_context"
)

const cooldownKeyPrefix = "accept-cooldown:"

// Request is one ambulance position update.
type Request struct {
	DriverName string
	Ambulance  geo.Point
	Responders []models.Responder
	// History is every live alert the driver has sent, any status.
	History []models.Alert
	// Template carries the route snapshot copied into each emitted alert.
	Template models.AlertInput
}

// Candidate is a responder the engine decided to alert.
type Candidate struct {
	Responder      models.Responder `json:"responder"`
	DistanceMeters float64          `json:"distanceMeters"`
}

// AlertInput builds the create payload for this candidate from the route template.
func (c Candidate) AlertInput(tpl models.AlertInput) models.AlertInput {
	in := tpl
	in.PoliceID = c.Responder.ID
	in.PoliceName = c.Responder.Name
	if c.Responder.Area != "" {
		in.Area = c.Responder.Area
	}
	in.DistanceMeters = c.DistanceMeters
	return in
}

type Skip struct {
	ResponderID string     `json:"responderId"`
	Reason      SkipReason `json:"reason"`
}

type Result struct {
	Emit    []Candidate `json:"emit"`
	Skipped []Skip      `json:"skipped"`
	// CooldownRemaining is set when an accept cooldown suppressed everything.
	CooldownRemaining time.Duration `json:"cooldownRemaining,omitempty"`
}

// Engine decides whether a moving ambulance should alert nearby responders.
type Engine struct {
	policy    config.Policy
	cooldowns cache.Cache
	now       func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(policy config.Policy, cooldowns cache.Cache, opts ...Option) *Engine {
	def := config.DefaultPolicy()
	if policy.MatchRadiusKm <= 0 {
		policy.MatchRadiusKm = def.MatchRadiusKm
	}
	if policy.MaxPendingTotal <= 0 {
		policy.MaxPendingTotal = def.MaxPendingTotal
	}
	if policy.MaxPendingPerResponder <= 0 {
		policy.MaxPendingPerResponder = def.MaxPendingPerResponder
	}
	e := &Engine{policy: policy, cooldowns: cooldowns, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() config.Policy { return e.policy }

// StartAcceptCooldown suppresses alert generation for driver until AcceptCooldown after at.
func (e *Engine) StartAcceptCooldown(ctx context.Context, driver string, at time.Time) {
	if e.cooldowns == nil || e.policy.AcceptCooldown <= 0 {
		return
	}
	key := cooldownKey(driver)
	if prev, ok := e.cooldowns.Get(ctx, key); ok {
		if t, err := cast.ToTimeE(prev); err == nil && t.After(at) {
			return
		}
	}
	_ = e.cooldowns.Set(ctx, key, at, e.policy.AcceptCooldown)
	logger.Info("accept cooldown started", zap.String("driver", driver), zap.Duration("for", e.policy.AcceptCooldown))
}

// CooldownRemaining reports how long alert generation stays suppressed for driver.
// Both the recorded cooldown and accepted alerts in history count.
func (e *Engine) CooldownRemaining(ctx context.Context, driver string, history []models.Alert) time.Duration {
	if e.policy.AcceptCooldown <= 0 {
		return 0
	}
	now := e.now()
	var remaining time.Duration
	consider := func(at time.Time) {
		if r := at.Add(e.policy.AcceptCooldown).Sub(now); r > remaining {
			remaining = r
		}
	}
	if e.cooldowns != nil {
		if v, ok := e.cooldowns.Get(ctx, cooldownKey(driver)); ok {
			// shared caches hand back the RFC 3339 string
			if at, err := cast.ToTimeE(v); err == nil {
				consider(at)
			}
		}
	}
	for _, a := range history {
		if a.TrafficStatus == models.TrafficAccepted && a.RespondedAt != nil && models.SameDriver(a.DriverName, driver) {
			consider(*a.RespondedAt)
		}
	}
	return remaining
}

// Evaluate runs the matching steps for one position update.
func (e *Engine) Evaluate(ctx context.Context, req Request) Result {
	var res Result
	if r := e.CooldownRemaining(ctx, req.DriverName, req.History); r > 0 {
		res.CooldownRemaining = r
		return res
	}

	nearby := geo.WithinRadius(req.Ambulance, req.Responders, models.Responder.Position, e.policy.MatchRadiusKm)
	if len(nearby) == 0 {
		return res
	}

	now := e.now()
	totalPending := 0
	for _, a := range req.History {
		if a.IsPending() {
			totalPending++
		}
	}
	hasContext := len(req.Template.RouteCoordinates) > 0 &&
		models.KnownAddress(req.Template.StartAddress) && models.KnownAddress(req.Template.EndAddress)

	for _, n := range nearby {
		r := n.Item
		reason, ok := e.admit(r, req.History, totalPending, hasContext, now)
		if !ok {
			res.Skipped = append(res.Skipped, Skip{ResponderID: r.ID, Reason: reason})
			continue
		}
		res.Emit = append(res.Emit, Candidate{Responder: r, DistanceMeters: n.DistanceKm * 1000})
		totalPending++
	}
	return res
}

func (e *Engine) admit(r models.Responder, history []models.Alert, totalPending int, hasContext bool, now time.Time) (SkipReason, bool) {
	pendingToThis := 0
	var latestPending time.Time
	for _, a := range history {
		if !addressedTo(a, r) {
			continue
		}
		if !a.IsPending() {
			// an accept or reject is final for this responder and journey
			return SkipAlreadyResponded, false
		}
		pendingToThis++
		if t := a.EffectiveTime(); t.After(latestPending) {
			latestPending = t
		}
	}
	if pendingToThis >= e.policy.MaxPendingPerResponder {
		return SkipResponderCap, false
	}
	if pendingToThis > 0 && now.Sub(latestPending) < e.policy.ResponderCooldown {
		return SkipResponderCooldown, false
	}
	if totalPending >= e.policy.MaxPendingTotal {
		return SkipTotalCap, false
	}
	if !hasContext {
		return SkipMissingContext, false
	}
	return "", true
}

func addressedTo(a models.Alert, r models.Responder) bool {
	if a.PoliceID != "" {
		return a.PoliceID == r.ID
	}
	return a.PoliceName != "" && strings.EqualFold(a.PoliceName, r.Name)
}

func cooldownKey(driver string) string {
	return cooldownKeyPrefix + strings.ToLower(strings.TrimSpace(driver))
}
