package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/Redpill-Linpro/hegemone-client/internal/metrics"
	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

var (
	ErrForwardUnavailable = errors.New("forward target unavailable")
	ErrForwardQueueFull   = errors.New("forward queue full")
	ErrForwardClosed      = errors.New("forward sink closed")
)

type ForwardOptions struct {
	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	// BreakerFailures consecutive failed deliveries open the breaker for BreakerOpen.
	BreakerFailures uint32
	BreakerOpen     time.Duration
	// QueueSize bounds messages waiting for delivery. Accept rejects once it is full.
	QueueSize int
}

func DefaultForwardOptions() ForwardOptions {
	return ForwardOptions{
		Timeout:         2 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		BreakerFailures: 5,
		BreakerOpen:     30 * time.Second,
		QueueSize:       256,
	}
}

// Forward POSTs each message as JSON to another collector. Accept only
// enqueues; a single worker delivers in order with retries behind a breaker,
// so a slow target never holds up ingest.
type Forward struct {
	url     string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	opts    ForwardOptions
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewForward(url string, opts ForwardOptions, logger *slog.Logger, m *metrics.Metrics) *Forward {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultForwardOptions().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Forward{
		url:     url,
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  logger,
		metrics: m,
		queue:   make(chan []byte, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "forward",
			Timeout: opts.BreakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= opts.BreakerFailures
			},
		}),
	}
	go s.run()
	return s
}

func (s *Forward) Name() string { return "forward" }

// Accept queues t for delivery and returns without waiting on the target.
func (s *Forward) Accept(_ context.Context, t types.Telemetry) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrForwardClosed
	}
	select {
	case s.queue <- body:
		return nil
	default:
		return fmt.Errorf("%w (%d waiting)", ErrForwardQueueFull, cap(s.queue))
	}
}

// Close stops accepting, abandons retries in flight and waits for the worker.
// Messages still queued are dropped.
func (s *Forward) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *Forward) run() {
	defer close(s.done)
	dropped := 0
	for body := range s.queue {
		if s.ctx.Err() != nil {
			dropped++
			continue
		}
		if err := s.deliver(s.ctx, body); err != nil {
			s.metrics.SinkError(s.Name())
			s.logger.Warn("forward delivery failed", "url", s.url, "error", err)
		}
	}
	if dropped > 0 {
		s.logger.Warn("forward queue dropped on close", "dropped", dropped)
	}
}

func (s *Forward) deliver(ctx context.Context, body []byte) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = s.opts.InitialInterval
		bo.MaxElapsedTime = 0
		return nil, backoff.Retry(func() error {
			return s.post(ctx, body)
		}, backoff.WithContext(backoff.WithMaxRetries(bo, s.opts.MaxRetries), ctx))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrForwardUnavailable, err)
	}
	return err
}

func (s *Forward) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("forward rejected: %s", resp.Status))
	default:
		return fmt.Errorf("forward failed: %s", resp.Status)
	}
}
