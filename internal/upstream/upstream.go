package upstream

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the probed reachability of one upstream service.
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusHealthy     Status = "healthy"
	StatusUnreachable Status = "unreachable"
)

// Upstream describes one external service the gateway depends on.
type Upstream struct {
	Name      string
	Category  string // "transcription", "generation", "synthesis", "knowledge"
	HealthURL string
}

// Info is the probe result for one upstream.
type Info struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// Registry is the whitelist of upstreams this deployment is wired to.
// Registration happens once at startup; probing is read-only after that.
type Registry struct {
	mu        sync.Mutex
	upstreams []Upstream
	client    *http.Client
}

// NewRegistry creates a registry probing with the given client. A nil
// client gets a short-timeout default so a hung upstream cannot stall the
// status route.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return &Registry{client: client}
}

// Add registers an upstream. Entries without a name are ignored so callers
// can register optional backends unconditionally.
func (r *Registry) Add(u Upstream) {
	if u.Name == "" {
		return
	}
	r.mu.Lock()
	r.upstreams = append(r.upstreams, u)
	r.mu.Unlock()
}

// Names returns all registered upstream names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		names = append(names, u.Name)
	}
	sort.Strings(names)
	return names
}

// ProbeAll checks every registered upstream concurrently and returns the
// results in registration order.
func (r *Registry) ProbeAll(ctx context.Context) []Info {
	r.mu.Lock()
	upstreams := make([]Upstream, len(r.upstreams))
	copy(upstreams, r.upstreams)
	r.mu.Unlock()

	results := make([]Info, len(upstreams))
	var wg sync.WaitGroup
	for i, u := range upstreams {
		wg.Add(1)
		go func(i int, u Upstream) {
			defer wg.Done()
			results[i] = r.probe(ctx, u)
		}(i, u)
	}
	wg.Wait()
	return results
}

func (r *Registry) probe(ctx context.Context, u Upstream) Info {
	info := Info{Name: u.Name, Category: u.Category, Status: StatusUnknown}
	if u.HealthURL == "" {
		return info
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", u.HealthURL, nil)
	if err != nil {
		info.Status = StatusUnreachable
		return info
	}
	resp, err := r.client.Do(req)
	if err != nil {
		info.Status = StatusUnreachable
		return info
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		info.Status = StatusHealthy
		info.LatencyMs = time.Since(start).Milliseconds()
	} else {
		info.Status = StatusUnreachable
	}
	return info
}
