package llm

import (
	"context"

	"github.com/jeremyandrews/argus/internal/config"
	"github.com/jeremyandrews/argus/internal/logger"
)

// Worker binds a Gateway to one configured endpoint (and its optional
// fallback). Each decision/analysis worker in the pool owns exactly one
// Worker; there is no cross-worker LLM multiplexing (spec §5).
type Worker struct {
	gateway  *Gateway
	endpoint config.WorkerEndpoint
	backend  Backend
	apiKey   string
}

// NewWorker creates a Worker for endpoint, dispatching over backend.
func NewWorker(gateway *Gateway, endpoint config.WorkerEndpoint, backend Backend, apiKey string) *Worker {
	return &Worker{gateway: gateway, endpoint: endpoint, backend: backend, apiKey: apiKey}
}

func (w *Worker) paramsFor(ep config.WorkerEndpoint, temperature float64, thinking *ThinkingConfig, noThink bool) Params {
	return Params{
		Backend:     w.backend,
		Host:        ep.Host,
		Port:        ep.Port,
		Model:       ep.Model,
		APIKey:      w.apiKey,
		Temperature: temperature,
		Thinking:    thinking,
		NoThink:     noThink,
	}
}

// GenerateText tries the primary endpoint, then the fallback once if the
// primary yields nothing (spec §4.1: "on timeout or network failure the
// primary is abandoned and the fallback, if any, is tried once").
func (w *Worker) GenerateText(ctx context.Context, prompt string, temperature float64, thinking *ThinkingConfig, noThink bool) string {
	text, _ := w.gateway.GenerateText(ctx, prompt, w.paramsFor(w.endpoint, temperature, thinking, noThink))
	if text != "" {
		return text
	}
	if w.endpoint.Fallback == nil {
		return ""
	}
	logger.Warn("llm worker falling back", "primary_host", w.endpoint.Host, "fallback_host", w.endpoint.Fallback.Host)
	text, _ = w.gateway.GenerateText(ctx, prompt, w.paramsFor(*w.endpoint.Fallback, temperature, thinking, noThink))
	return text
}

// GenerateJSON mirrors GenerateText with JSON-mode enforcement.
func (w *Worker) GenerateJSON(ctx context.Context, prompt string, schema SchemaTag, temperature float64) string {
	text, _ := w.gateway.GenerateJSON(ctx, prompt, w.paramsFor(w.endpoint, temperature, nil, false), schema)
	if text != "" {
		return text
	}
	if w.endpoint.Fallback == nil {
		return ""
	}
	logger.Warn("llm worker falling back", "primary_host", w.endpoint.Host, "fallback_host", w.endpoint.Fallback.Host)
	text, _ = w.gateway.GenerateJSON(ctx, prompt, w.paramsFor(*w.endpoint.Fallback, temperature, nil, false), schema)
	return text
}

// GenerateYesNo mirrors GenerateText for yes/no prompts.
func (w *Worker) GenerateYesNo(ctx context.Context, prompt string, temperature float64) YesNo {
	answer, _ := w.gateway.GenerateYesNo(ctx, prompt, w.paramsFor(w.endpoint, temperature, nil, false))
	if answer != Unknown {
		return answer
	}
	if w.endpoint.Fallback == nil {
		return Unknown
	}
	answer, _ = w.gateway.GenerateYesNo(ctx, prompt, w.paramsFor(*w.endpoint.Fallback, temperature, nil, false))
	return answer
}

// Pool is a set of Workers, one per configured endpoint, handed out
// round-robin to keep every backend equally loaded.
type Pool struct {
	workers []*Worker
	next    int
}

// NewPool builds a Pool from parsed endpoint configs.
func NewPool(gateway *Gateway, endpoints []config.WorkerEndpoint, backend Backend, apiKey string) *Pool {
	p := &Pool{}
	for _, ep := range endpoints {
		p.workers = append(p.workers, NewWorker(gateway, ep, backend, apiKey))
	}
	return p
}

// Next returns the next Worker in round-robin order, or nil if the pool is
// empty.
func (p *Pool) Next() *Worker {
	if len(p.workers) == 0 {
		return nil
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	return w
}

// Len returns the number of workers in the pool.
func (p *Pool) Len() int { return len(p.workers) }

// All returns every worker in the pool, one per configured endpoint, for
// callers that bind one long-lived goroutine per endpoint rather than
// drawing round-robin per call (spec §5: "one worker per entry... no
// cross-worker LLM multiplexing").
func (p *Pool) All() []*Worker { return p.workers }
