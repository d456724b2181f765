package correlation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"GreenCorridor/internal/models"
	"GreenCorridor/internal/store"
	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	DriverPollInterval    = 2 * time.Second
	ResponderPollInterval = 3 * time.Second
)

// Fetcher returns the alerts the server holds for a driver.
type Fetcher interface {
	FetchAlerts(ctx context.Context, driver string) ([]models.Alert, error)
}

type FetcherFunc func(ctx context.Context, driver string) ([]models.Alert, error)

func (f FetcherFunc) FetchAlerts(ctx context.Context, driver string) ([]models.Alert, error) {
	return f(ctx, driver)
}

// StoreFetcher reads straight from an in-process store.
func StoreFetcher(s *store.Store) Fetcher {
	return FetcherFunc(func(_ context.Context, driver string) ([]models.Alert, error) {
		return s.ListActive(store.ListFilter{DriverName: driver}), nil
	})
}

// HTTPFetcher polls GET {base}/alerts?driverName=.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

type listResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Alerts  []models.Alert `json:"alerts"`
	Message string         `json:"message"`
}

func (f *HTTPFetcher) FetchAlerts(ctx context.Context, driver string) ([]models.Alert, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	u := strings.TrimRight(f.BaseURL, "/") + "/alerts?driverName=" + url.QueryEscape(driver)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build poll request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Transient(err, "poll alerts")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Transient(errors.Errorf("status %d", resp.StatusCode), "poll alerts")
	}
	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Transient(err, "decode alerts")
	}
	if !body.Success {
		return nil, errors.Transient(errors.New(body.Message), "poll alerts")
	}
	return body.Alerts, nil
}

// Poller runs one fetch-and-correlate pass per Run. It is a scheduler.Job.
type Poller struct {
	fetcher    Fetcher
	correlator *Correlator
	handle     func(ResponseEvent)
}

func NewPoller(f Fetcher, c *Correlator, handle func(ResponseEvent)) *Poller {
	return &Poller{fetcher: f, correlator: c, handle: handle}
}

// Run never fails: fetch errors are logged and the next tick retries.
func (p *Poller) Run(ctx context.Context) {
	alerts, err := p.fetcher.FetchAlerts(ctx, p.correlator.Driver())
	if err != nil {
		logger.Warn("poll failed", zap.String("driver", p.correlator.Driver()), zap.Error(err))
		return
	}
	for _, ev := range p.correlator.Process(ctx, alerts) {
		if p.handle != nil {
			p.handle(ev)
		}
	}
}

// DashboardPoller is the responder-side loop: it lists pending alerts and
// reports each one the first time it shows up. It is a scheduler.Job.
type DashboardPoller struct {
	fetcher Fetcher
	seen    *lru.Cache[models.AlertID, struct{}]
	handle  func(models.Alert)
}

func NewDashboardPoller(f Fetcher, size int, handle func(models.Alert)) (*DashboardPoller, error) {
	if size <= 0 {
		size = DefaultProcessedSize
	}
	seen, err := lru.New[models.AlertID, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &DashboardPoller{fetcher: f, seen: seen, handle: handle}, nil
}

// Run reports new pending alerts oldest first. Fetch errors are logged and retried next tick.
func (p *DashboardPoller) Run(ctx context.Context) {
	alerts, err := p.fetcher.FetchAlerts(ctx, "")
	if err != nil {
		logger.Warn("dashboard poll failed", zap.Error(err))
		return
	}
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		if !a.IsPending() {
			continue
		}
		if seen, _ := p.seen.ContainsOrAdd(a.ID, struct{}{}); seen {
			continue
		}
		if p.handle != nil {
			p.handle(a)
		}
	}
}
