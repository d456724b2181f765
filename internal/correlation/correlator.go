package correlation

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"GreenCorridor/internal/matching"
	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Outcome is the resolved result of a responder decision as seen by the driver.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	// OutcomeResponded means a decision exists but its direction could not be determined.
	OutcomeResponded Outcome = "responded"
)

const DefaultProcessedSize = 1024

var (
	acceptWords = regexp.MustCompile(`(?i)approved|proceed|accept`)
	rejectWords = regexp.MustCompile(`(?i)rejected|another way|reject`)
)

// ResponseEvent is emitted once per responseId.
type ResponseEvent struct {
	ResponseID string           `json:"responseId"`
	Alert      models.Alert     `json:"alert"`
	Outcome    Outcome          `json:"trafficStatus"`
	Message    string           `json:"message"`
	Inferred   bool             `json:"inferred"`
	Cleared    []models.AlertID `json:"cleared,omitempty"`
}

// Hooks are optional side effects of a new response.
type Hooks struct {
	OnAccepted func(ctx context.Context, ev ResponseEvent)
	// OnRejected is where re-routing plugs in.
	OnRejected func(ctx context.Context, ev ResponseEvent)
}

// Correlator matches polled alerts back to a driver's own requests.
type Correlator struct {
	driver    string
	engine    *matching.Engine
	hooks     Hooks
	now       func() time.Time
	mu        sync.Mutex
	processed *lru.Cache[string, struct{}]
	local     map[models.AlertID]models.Alert
}

type Option func(*Correlator)

// WithEngine lets accepted responses start the engine's alert-generation cooldown.
func WithEngine(e *matching.Engine) Option { return func(c *Correlator) { c.engine = e } }

func WithHooks(h Hooks) Option { return func(c *Correlator) { c.hooks = h } }

func WithClock(now func() time.Time) Option { return func(c *Correlator) { c.now = now } }

func New(driver string, processedSize int, opts ...Option) (*Correlator, error) {
	if processedSize <= 0 {
		processedSize = DefaultProcessedSize
	}
	processed, err := lru.New[string, struct{}](processedSize)
	if err != nil {
		return nil, err
	}
	c := &Correlator{
		driver:    strings.TrimSpace(driver),
		now:       time.Now,
		processed: processed,
		local:     make(map[models.AlertID]models.Alert),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Correlator) Driver() string { return c.driver }

// Track remembers an alert this driver sent.
func (c *Correlator) Track(a models.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[a.ID] = a.Clone()
}

// Local returns the locally held alerts, pending ones included.
func (c *Correlator) Local() []models.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Alert, 0, len(c.local))
	for _, a := range c.local {
		out = append(out, a.Clone())
	}
	return out
}

// Process returns the new response events in batch. Repeating a batch yields nothing.
func (c *Correlator) Process(ctx context.Context, batch []models.Alert) []ResponseEvent {
	var events []ResponseEvent
	c.mu.Lock()
	for _, a := range batch {
		if !IsResponded(a) || !c.isOursLocked(a) {
			continue
		}
		id := ResponseID(a)
		if c.processed.Contains(id) {
			continue
		}
		c.processed.Add(id, struct{}{})

		outcome, inferred := ResolveOutcome(a)
		if inferred {
			logger.Info("traffic status inferred from response text",
				zap.Int64("alertId", int64(a.ID)),
				zap.String("policeResponse", a.PoliceResponse),
				zap.String("outcome", string(outcome)))
		}
		ev := ResponseEvent{ResponseID: id, Alert: a.Clone(), Outcome: outcome, Message: a.PoliceResponse, Inferred: inferred}
		if outcome == OutcomeAccepted {
			ev.Cleared = c.clearPendingLocked(a.ID)
		}
		if l, ok := c.local[a.ID]; ok {
			l.Status = models.StatusAcknowledged
			l.TrafficStatus = a.TrafficStatus
			c.local[a.ID] = l
		}
		events = append(events, ev)
	}
	c.mu.Unlock()

	for _, ev := range events {
		c.dispatch(ctx, ev)
	}
	return events
}

func (c *Correlator) dispatch(ctx context.Context, ev ResponseEvent) {
	switch ev.Outcome {
	case OutcomeAccepted:
		if c.engine != nil {
			at := c.now()
			if ev.Alert.RespondedAt != nil {
				at = *ev.Alert.RespondedAt
			}
			c.engine.StartAcceptCooldown(ctx, c.driver, at)
		}
		if c.hooks.OnAccepted != nil {
			c.hooks.OnAccepted(ctx, ev)
		}
	case OutcomeRejected:
		logger.Info("route rejected", zap.String("driver", c.driver), zap.String("message", ev.Message))
		if c.hooks.OnRejected != nil {
			c.hooks.OnRejected(ctx, ev)
		}
	}
}

// clearPendingLocked drops local pending duplicates of an accepted alert.
func (c *Correlator) clearPendingLocked(accepted models.AlertID) []models.AlertID {
	var cleared []models.AlertID
	for id, a := range c.local {
		if id == accepted || !a.IsPending() {
			continue
		}
		delete(c.local, id)
		cleared = append(cleared, id)
	}
	return cleared
}

// isOursLocked: the server already filters by driver; local tracking is a second check.
func (c *Correlator) isOursLocked(a models.Alert) bool {
	if a.DriverName != "" && c.driver != "" && !models.SameDriver(a.DriverName, c.driver) {
		return false
	}
	if len(c.local) == 0 {
		return true
	}
	if _, ok := c.local[a.ID]; ok {
		return true
	}
	for _, l := range c.local {
		if a.PoliceID != "" && a.PoliceID == l.PoliceID {
			return true
		}
		if a.PoliceName != "" && strings.EqualFold(a.PoliceName, l.PoliceName) {
			return true
		}
		if models.KnownAddress(a.StartAddress) && a.StartAddress == l.StartAddress && a.EndAddress == l.EndAddress {
			return true
		}
	}
	return false
}

// IsResponded reports whether a responder has made a decision on a.
func IsResponded(a models.Alert) bool {
	if a.Status.Terminal() {
		return true
	}
	ts, err := models.ParseTrafficStatus(string(a.TrafficStatus))
	return err == nil && ts.Decided()
}

// ResponseID is the alert id when present, else responder identity plus response time.
func ResponseID(a models.Alert) string {
	if a.ID > 0 {
		return "alert:" + a.ID.String()
	}
	who := a.PoliceID
	if who == "" {
		who = a.PoliceName
	}
	if who == "" {
		who = a.PoliceOfficer
	}
	when := a.PoliceResponse
	if a.RespondedAt != nil {
		when = a.RespondedAt.UTC().Format(time.RFC3339Nano)
	}
	return "resp:" + strings.ToLower(who) + "@" + when
}

// ResolveOutcome prefers the explicit traffic status and falls back to keyword inference.
func ResolveOutcome(a models.Alert) (Outcome, bool) {
	if ts, err := models.ParseTrafficStatus(string(a.TrafficStatus)); err == nil && ts.Decided() {
		return Outcome(ts), false
	}
	switch {
	case acceptWords.MatchString(a.PoliceResponse):
		return OutcomeAccepted, true
	case rejectWords.MatchString(a.PoliceResponse):
		return OutcomeRejected, true
	}
	return OutcomeResponded, false
}
