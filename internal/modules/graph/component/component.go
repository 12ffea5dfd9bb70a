// Package component holds the graph's load-then-render lifecycle: one
// asynchronous fetch on mount, a loading view until it succeeds, a chart after.
package component

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/chart"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/graph/provider"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

type State struct {
	IsLoaded bool
	Records  []types.Measurement
}

// View is what the component renders: Loading, or a Chart.
type View struct {
	Loading bool
	Chart   *chart.Chart
}

type Option func(*Component)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Component) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Component) { c.metrics = m }
}

func WithTitle(title string) Option {
	return func(c *Component) { c.title = title }
}

type Component struct {
	provider provider.DataProvider
	logger   *slog.Logger
	metrics  *metrics.Metrics
	title    string

	mu     sync.RWMutex
	state  State
	alive  bool
	cancel context.CancelFunc

	mountOnce sync.Once
	loaded    chan struct{}
	done      chan struct{}
}

func New(p provider.DataProvider, opts ...Option) *Component {
	c := &Component{
		provider: p,
		logger:   slog.Default(),
		title:    chart.DefaultTitle,
		state:    State{Records: []types.Measurement{}},
		alive:    true,
		loaded:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount starts the single fetch and returns immediately. Calls after the
// first, and calls after Unmount, do nothing.
func (c *Component) Mount(ctx context.Context) {
	c.mountOnce.Do(func() {
		c.mu.Lock()
		if !c.alive {
			c.mu.Unlock()
			close(c.done)
			return
		}
		fetchCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.mu.Unlock()

		go c.fetch(fetchCtx)
	})
}

func (c *Component) fetch(ctx context.Context) {
	defer close(c.done)
	resp, err := c.provider.FetchAll(ctx)
	c.resolve(ctx, resp, err)
}

func (c *Component) resolve(ctx context.Context, resp provider.Response, err error) {
	c.mu.Lock()
	if !c.alive || ctx.Err() != nil {
		c.mu.Unlock()
		c.logger.Debug("graph fetch result discarded after unmount")
		c.metrics.GraphFetch("discarded", 0)
		return
	}
	if err != nil {
		c.mu.Unlock()
		result := "fetch_error"
		if errors.Is(err, provider.ErrValidation) {
			result = "validation_error"
		}
		c.logger.Error("graph data fetch failed", "result", result, "error", err)
		c.metrics.GraphFetch(result, 0)
		return
	}

	records := resp.Data
	if records == nil {
		records = []types.Measurement{}
	}
	c.state = State{IsLoaded: true, Records: records}
	close(c.loaded)
	c.mu.Unlock()

	c.logger.Info("graph data loaded", "records", len(records))
	c.metrics.GraphFetch("ok", len(records))
}

// Unmount cancels an in-flight fetch. A result that still arrives is discarded.
func (c *Component) Unmount() {
	c.mu.Lock()
	c.alive = false
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Component) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{IsLoaded: c.state.IsLoaded, Records: slices.Clone(c.state.Records)}
}

func (c *Component) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.state.IsLoaded {
		return View{Loading: true}
	}
	ch := chart.Build(c.state.Records, c.title)
	return View{Chart: &ch}
}

// Loaded is closed when the fetch succeeds.
func (c *Component) Loaded() <-chan struct{} { return c.loaded }

// Done is closed once the fetch has resolved, however it ended.
func (c *Component) Done() <-chan struct{} { return c.done }
