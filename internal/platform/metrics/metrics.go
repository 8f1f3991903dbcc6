// Package metrics is a small registry that renders counters and gauges in the
// Prometheus text exposition format.
package metrics

import (
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Opts struct {
	Name string
	Help string
}

type sample struct {
	labels string
	value  float64
}

type family interface {
	opts() Opts
	kind() string
	collect() []sample
}

type Registry struct {
	mu       sync.RWMutex
	families map[string]family
}

func NewRegistry() *Registry {
	return &Registry{families: map[string]family{}}
}

func (r *Registry) MustRegister(items ...family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		name := item.opts().Name
		if _, exists := r.families[name]; exists {
			panic("metrics collector already registered: " + name)
		}
		r.families[name] = item
	}
}

// Render writes every registered family, sorted by name.
func (r *Registry) Render() string {
	r.mu.RLock()
	families := make([]family, 0, len(r.families))
	for _, f := range r.families {
		families = append(families, f)
	}
	r.mu.RUnlock()
	slices.SortFunc(families, func(a, b family) int { return strings.Compare(a.opts().Name, b.opts().Name) })

	var sb strings.Builder
	for _, f := range families {
		o := f.opts()
		sb.WriteString("# HELP " + o.Name + " " + o.Help + "\n")
		sb.WriteString("# TYPE " + o.Name + " " + f.kind() + "\n")
		for _, s := range f.collect() {
			sb.WriteString(o.Name + s.labels + " " + strconv.FormatFloat(s.value, 'f', -1, 64) + "\n")
		}
	}
	return sb.String()
}

func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}

var Default = NewRegistry()

var processStart = time.Now()

type GaugeFunc struct {
	o  Opts
	fn func() float64
}

func NewGaugeFunc(opts Opts, fn func() float64) *GaugeFunc {
	return &GaugeFunc{o: opts, fn: fn}
}

func (g *GaugeFunc) opts() Opts   { return g.o }
func (g *GaugeFunc) kind() string { return "gauge" }

func (g *GaugeFunc) collect() []sample {
	return []sample{{value: g.fn()}}
}

// CounterVec is a counter partitioned by label values.
type CounterVec struct {
	o          Opts
	labelNames []string

	mu     sync.Mutex
	values map[string]float64
}

func NewCounterVec(opts Opts, labelNames ...string) *CounterVec {
	return &CounterVec{
		o:          opts,
		labelNames: slices.Clone(labelNames),
		values:     map[string]float64{},
	}
}

func (c *CounterVec) opts() Opts   { return c.o }
func (c *CounterVec) kind() string { return "counter" }

// Inc adds one to the series with the given label values. A call with the
// wrong number of values is ignored.
func (c *CounterVec) Inc(labelValues ...string) {
	if len(labelValues) != len(c.labelNames) {
		return
	}
	key := c.format(labelValues)
	c.mu.Lock()
	c.values[key]++
	c.mu.Unlock()
}

// Value returns the current count of one series.
func (c *CounterVec) Value(labelValues ...string) float64 {
	key := c.format(labelValues)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *CounterVec) collect() []sample {
	c.mu.Lock()
	out := make([]sample, 0, len(c.values))
	for labels, v := range c.values {
		out = append(out, sample{labels: labels, value: v})
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b sample) int { return strings.Compare(a.labels, b.labels) })
	return out
}

func (c *CounterVec) format(values []string) string {
	if len(c.labelNames) == 0 {
		return ""
	}
	parts := make([]string, len(c.labelNames))
	for i, name := range c.labelNames {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		parts[i] = name + `="` + escapeLabelValue(v) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func init() {
	Default.MustRegister(
		NewGaugeFunc(Opts{Name: "process_uptime_seconds", Help: "Seconds since process start."}, func() float64 {
			return time.Since(processStart).Seconds()
		}),
		NewGaugeFunc(Opts{Name: "go_goroutines", Help: "Number of goroutines."}, func() float64 {
			return float64(runtime.NumGoroutine())
		}),
	)
}
