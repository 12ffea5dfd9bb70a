package component

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
)

var ErrPoolClosed = errors.New("graph view pool closed")

// PoolConfig bounds the views a Pool keeps open.
type PoolConfig struct {
	// TTL is how long a view survives without being polled.
	TTL time.Duration
	// MaxViews caps open views; opening one more unmounts the least recently polled.
	MaxViews int
}

type pooledView struct {
	component *Component
	lastSeen  time.Time
}

// Pool gives every page view its own Component. Open mounts a fresh one under
// a new id, so each view fetches once on its own. Views that stop polling are
// unmounted.
type Pool struct {
	ctx     context.Context
	factory func() *Component
	cfg     PoolConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	views  map[string]*pooledView
	closed bool
}

// NewPool builds components with factory and mounts them under ctx, so
// cancelling ctx cancels every in-flight fetch.
func NewPool(ctx context.Context, factory func() *Component, cfg PoolConfig, logger *slog.Logger, m *metrics.Metrics) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = 1000
	}
	return &Pool{
		ctx:     ctx,
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		views:   make(map[string]*pooledView),
	}
}

// Open creates and mounts a component for a new page view.
func (p *Pool) Open() (string, *Component, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", nil, ErrPoolClosed
	}
	now := p.now()
	evicted := p.expireLocked(now)
	if len(p.views) >= p.cfg.MaxViews {
		if id, v := p.oldestLocked(); v != nil {
			delete(p.views, id)
			evicted = append(evicted, v.component)
		}
	}

	id := uuid.NewString()
	c := p.factory()
	p.views[id] = &pooledView{component: c, lastSeen: now}
	open := len(p.views)
	p.mu.Unlock()

	unmountAll(evicted)
	c.Mount(p.ctx)

	p.logger.Debug("graph view opened", "view", id, "open", open)
	p.metrics.GraphViews(open)
	return id, c, nil
}

// Get returns the view's component and marks it as polled. Expired and
// unknown ids report false.
func (p *Pool) Get(id string) (*Component, bool) {
	p.mu.Lock()
	v, ok := p.views[id]
	if !ok {
		p.mu.Unlock()
		return nil, false
	}
	now := p.now()
	if now.Sub(v.lastSeen) > p.cfg.TTL {
		delete(p.views, id)
		open := len(p.views)
		p.mu.Unlock()

		v.component.Unmount()
		p.metrics.GraphViews(open)
		return nil, false
	}
	v.lastSeen = now
	p.mu.Unlock()
	return v.component, true
}

// Sweep unmounts every expired view and reports how many it removed.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	expired := p.expireLocked(p.now())
	open := len(p.views)
	p.mu.Unlock()

	unmountAll(expired)
	if len(expired) > 0 {
		p.logger.Debug("graph views expired", "expired", len(expired), "open", open)
		p.metrics.GraphViews(open)
	}
	return len(expired)
}

// Run sweeps expired views until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	interval := p.cfg.TTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Len is the number of open views.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.views)
}

// Close unmounts every view. Open fails afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	all := make([]*Component, 0, len(p.views))
	for id, v := range p.views {
		all = append(all, v.component)
		delete(p.views, id)
	}
	p.mu.Unlock()

	unmountAll(all)
	p.metrics.GraphViews(0)
}

func (p *Pool) expireLocked(now time.Time) []*Component {
	var expired []*Component
	for id, v := range p.views {
		if now.Sub(v.lastSeen) > p.cfg.TTL {
			expired = append(expired, v.component)
			delete(p.views, id)
		}
	}
	return expired
}

func (p *Pool) oldestLocked() (string, *pooledView) {
	var (
		oldestID string
		oldest   *pooledView
	)
	for id, v := range p.views {
		if oldest == nil || v.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, v
		}
	}
	return oldestID, oldest
}

func unmountAll(cs []*Component) {
	for _, c := range cs {
		c.Unmount()
	}
}
