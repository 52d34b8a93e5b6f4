package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/healthconnect/feed-engine/pkg/logger"
)

// Probe watches reachability by issuing HEAD requests against a known
// endpoint on an interval, emitting only on edges.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   logger.Logger

	out    chan bool
	cancel context.CancelFunc
}

type ProbeOpts struct {
	URL      string
	Interval time.Duration
	Logger   logger.Logger
}

func NewProbe(opts ProbeOpts) *Probe {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Probe{
		url:      opts.URL,
		interval: opts.Interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   opts.Logger.WithComponent("ConnectivityProbe"),
		out:      make(chan bool, 1),
		cancel:   cancel,
	}
	go p.loop(ctx)
	return p
}

var _ Monitor = (*Probe)(nil)

func (p *Probe) Transitions() <-chan bool {
	return p.out
}

func (p *Probe) Close() {
	p.cancel()
}

func (p *Probe) loop(ctx context.Context) {
	defer close(p.out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	known := false
	online := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := p.check(ctx)
		if known && current == online {
			continue
		}
		known = true
		online = current
		p.logger.Info("Connectivity transition", "online", online)

		select {
		case p.out <- online:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
