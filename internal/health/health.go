// Package health reports daemon liveness and readiness over HTTP.
//
// Components register a check function; /healthz always answers while the
// process is up and /readyz answers 503 until the daemon marks itself ready
// and every critical component passes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the state of one component or of the whole daemon.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 2 * time.Second

// CheckFunc returns nil when the component is usable.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of the last check of a component.
type Result struct {
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Checked  time.Time     `json:"checked"`
	Duration time.Duration `json:"duration_ns"`
}

type component struct {
	name     string
	critical bool
	check    CheckFunc
}

// Checker holds the registered components and the readiness flag.
type Checker struct {
	mu         sync.RWMutex
	components map[string]component
	results    map[string]Result
	ready      bool
	started    time.Time
	timeout    time.Duration
}

// NewChecker returns a Checker that is not ready.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]component),
		results:    make(map[string]Result),
		started:    time.Now(),
		timeout:    DefaultTimeout,
	}
}

// Register adds or replaces a component. A failing critical component makes
// the daemon unhealthy; a failing optional one only degrades it.
func (c *Checker) Register(name string, critical bool, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = component{name: name, critical: critical, check: check}
	c.results[name] = Result{Status: StatusUnknown}
}

// SetReady flips the readiness flag.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Ready reports the readiness flag.
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every component concurrently and records the results.
func (c *Checker) Check(ctx context.Context) map[string]Result {
	c.mu.RLock()
	comps := make([]component, 0, len(c.components))
	for _, comp := range c.components {
		comps = append(comps, comp)
	}
	timeout := c.timeout
	c.mu.RUnlock()

	out := make(map[string]Result, len(comps))
	var (
		wg  sync.WaitGroup
		omu sync.Mutex
	)
	for _, comp := range comps {
		wg.Add(1)
		go func(comp component) {
			defer wg.Done()
			res := run(ctx, comp.check, timeout)
			omu.Lock()
			out[comp.name] = res
			omu.Unlock()
		}(comp)
	}
	wg.Wait()

	c.mu.Lock()
	for name, res := range out {
		if _, ok := c.components[name]; ok {
			c.results[name] = res
		}
	}
	c.mu.Unlock()
	return out
}

func run(ctx context.Context, check CheckFunc, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("check panicked: %v", r)
			}
		}()
		done <- check(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	res := Result{Status: StatusHealthy, Checked: start, Duration: time.Since(start)}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	return res
}

// Overall folds the last recorded results into one status.
func (c *Checker) Overall() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusHealthy
	for name, res := range c.results {
		comp := c.components[name]
		switch res.Status {
		case StatusUnhealthy:
			if comp.critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		case StatusUnknown:
			if comp.critical && status == StatusHealthy {
				status = StatusUnknown
			}
		}
	}
	return status
}

// Report is the JSON body served by the handlers.
type Report struct {
	Status     Status            `json:"status"`
	Ready      bool              `json:"ready"`
	Uptime     string            `json:"uptime"`
	Components map[string]Result `json:"components,omitempty"`
}

// Mount registers /healthz and /readyz on mux.
func (c *Checker) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", c.serveLive)
	mux.HandleFunc("/readyz", c.serveReady)
}

func (c *Checker) serveLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{
		Status: StatusHealthy,
		Ready:  c.Ready(),
		Uptime: time.Since(c.started).Round(time.Second).String(),
	})
}

func (c *Checker) serveReady(w http.ResponseWriter, r *http.Request) {
	results := c.Check(r.Context())
	rep := Report{
		Status:     c.Overall(),
		Ready:      c.Ready(),
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: results,
	}
	code := http.StatusOK
	if !rep.Ready || rep.Status == StatusUnhealthy || rep.Status == StatusUnknown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Names lists the registered components in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for n := range c.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
