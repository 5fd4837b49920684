// Package scheduler watches backend connectivity and drives the
// periodic sync loops. It owns the online/offline flag the checkout
// logic consults; a transition back to online immediately triggers an
// auto sync so queued operations drain without waiting for the timer.
package scheduler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/logging"
	syncpkg "github.com/ldttech/poscore/internal/sync"
)

// Prober answers whether the backend is reachable right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Syncer is the slice of the sync engine the monitor drives.
type Syncer interface {
	AutoSync(ctx context.Context) (*syncpkg.Report, error)
}

// HTTPProber checks reachability with a cheap ping request.
type HTTPProber struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPProber creates a prober against the given backend URL.
func NewHTTPProber(baseURL string) *HTTPProber {
	return &HTTPProber{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Probe implements Prober. Any HTTP answer counts as online; only a
// transport failure means unreachable.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	if p.BaseURL == "" {
		return false
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/api/method/ping"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Config holds monitor configuration.
type Config struct {
	ProbeInterval time.Duration // how often to check connectivity
	SyncInterval  time.Duration // how often to auto-sync while online
}

// DefaultConfig returns default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 10 * time.Second,
		SyncInterval:  5 * time.Minute,
	}
}

// Monitor runs the connectivity probe and the periodic sync ticker.
type Monitor struct {
	prober        Prober
	syncer        Syncer
	events        syncpkg.EventSink
	probeInterval time.Duration
	syncInterval  time.Duration

	stopCh chan struct{} // created by Start, closed by Stop
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	online    bool
	changedAt time.Time
}

// NewMonitor creates a Monitor. A nil sink is replaced with NopSink.
// The terminal starts offline; the first successful probe flips it.
func NewMonitor(prober Prober, syncer Syncer, events syncpkg.EventSink, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if events == nil {
		events = syncpkg.NopSink{}
	}
	return &Monitor{
		prober:        prober,
		syncer:        syncer,
		events:        events,
		probeInterval: config.ProbeInterval,
		syncInterval:  config.SyncInterval,
	}
}

// Start launches the probe and periodic sync goroutines. A stopped
// monitor can be started again; each run gets a fresh stop channel.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	m.wg.Add(2)
	go m.probeLoop(ctx, stop)
	go m.periodicSyncLoop(ctx, stop)

	logging.Info("Connectivity monitor started", map[string]interface{}{
		"probe_interval": m.probeInterval.String(),
		"sync_interval":  m.syncInterval.String(),
	})
}

// Stop shuts the loops down and waits for them.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	logging.Info("Connectivity monitor stopped", nil)
}

// IsOnline returns the current connectivity flag.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastChange returns when the flag last flipped.
func (m *Monitor) LastChange() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changedAt
}

// SetOnline records a connectivity observation. An offline-to-online
// transition triggers an immediate auto sync; going offline is just a
// flag flip for the checkout logic.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	if wasOnline != online {
		m.changedAt = time.Now()
	}
	m.mu.Unlock()

	if wasOnline == online {
		return
	}

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})
	m.events.Publish("connectivity.changed", map[string]interface{}{
		"online": online,
	})

	if online {
		go m.runAutoSync(ctx, "reconnect")
	}
}

// probeLoop polls the backend and feeds SetOnline.
func (m *Monitor) probeLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	// First observation right away instead of one interval in.
	m.SetOnline(ctx, m.prober.Probe(ctx))

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.SetOnline(ctx, m.prober.Probe(ctx))
		}
	}
}

// periodicSyncLoop auto-syncs on a timer while online.
func (m *Monitor) periodicSyncLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !m.IsOnline() {
				continue
			}
			m.runAutoSync(ctx, "periodic")
		}
	}
}

// runAutoSync triggers one auto sync cycle. The engine enforces the
// single-active-cycle rule, so an overlapping trigger just drops out.
func (m *Monitor) runAutoSync(ctx context.Context, reason string) {
	syncCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	report, err := m.syncer.AutoSync(syncCtx)
	if err != nil {
		if errors.Is(err, errors.ErrSyncInProgress) {
			logging.Debug("Sync already in progress, trigger dropped", map[string]interface{}{
				"reason": reason,
			})
			return
		}
		logging.ErrorWithCode("Auto sync failed", string(errors.ErrSyncFailed), err,
			map[string]interface{}{"reason": reason})
		return
	}

	logging.Info("Auto sync finished", map[string]interface{}{
		"reason":    reason,
		"succeeded": report.Succeeded(),
	})
}
