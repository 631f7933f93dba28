package runner

import (
	"context"
	"net/url"
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/solver"
	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/transport"
	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Engine exposes the two pool-backed operations: transcribing an audio
// challenge through the solver pool and fetching a URL through the
// proxy pool. Solves have no direct form, so an empty solver pool
// fails fast; fetches fall back to a single direct request.
type Engine struct {
	cfg     *types.Config
	client  *transport.Client
	solvers *Runner
	proxies *Runner
	metrics types.MetricsCollector
	logger  types.Logger
}

// NewEngine wires the runners behind the public operations
func NewEngine(cfg *types.Config, client *transport.Client, solvers, proxies *Runner, metrics types.MetricsCollector, logger types.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		client:  client,
		solvers: solvers,
		proxies: proxies,
		metrics: metrics,
		logger:  logger,
	}
}

// Solve transcribes an audio challenge through the solver chain
func (e *Engine) Solve(ctx context.Context, audioURL, lang string) (*types.SolveResult, error) {
	if audioURL == "" {
		return nil, &types.ValidationError{Field: "audio_url", Message: "is required"}
	}
	if lang == "" {
		lang = e.cfg.Solvers.Language
	}

	start := time.Now()
	op := &solveOp{client: e.client, form: solver.BuildForm(audioURL, lang)}

	res, err := e.solvers.Execute(ctx, op)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordSolve(false)
		}
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordSolve(true)
	}

	return &types.SolveResult{
		Transcription: op.transcription,
		Endpoint:      res.Endpoint,
		Attempts:      res.Attempts,
		ElapsedMs:     time.Since(start).Milliseconds(),
	}, nil
}

// Fetch retrieves a URL through the proxy chain
func (e *Engine) Fetch(ctx context.Context, freq *types.FetchRequest) (*types.FetchResult, error) {
	if freq == nil || freq.URL == "" {
		return nil, &types.ValidationError{Field: "url", Message: "is required"}
	}

	parsed, err := url.ParseRequestURI(freq.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &types.ValidationError{Field: "url", Message: "must be an absolute http or https URL"}
	}

	start := time.Now()
	op := &fetchOp{client: e.client, req: freq}

	res, err := e.proxies.Execute(ctx, op)
	if err != nil {
		return nil, err
	}

	return &types.FetchResult{
		Status:    res.Outcome.Status,
		Headers:   res.Outcome.Header,
		Body:      res.Outcome.Body,
		Endpoint:  res.Endpoint,
		Direct:    res.Direct,
		Attempts:  res.Attempts,
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

// solveOp posts the challenge form to a solver endpoint and validates
// the answer inside the attempt, so an unusable answer is retried on
// another endpoint
type solveOp struct {
	client        *transport.Client
	form          url.Values
	transcription string
}

func (o *solveOp) Name() string { return "solve" }

func (o *solveOp) Attempt(ctx context.Context, ep *types.Endpoint) *types.Outcome {
	outcome := o.client.PostForm(ctx, ep.BaseURL(), o.form)
	if !outcome.OK() {
		return outcome
	}

	text, err := solver.ValidateTranscription(string(outcome.Body))
	if err != nil {
		outcome.Class = types.OutcomeHTTPError
		outcome.Err = err
		return outcome
	}

	o.transcription = text
	return outcome
}

func (o *solveOp) DirectCapable() bool { return false }

func (o *solveOp) Direct(ctx context.Context) *types.Outcome { return nil }

// fetchOp relays the request through a proxy endpoint, or straight to
// the origin on the direct fallback
type fetchOp struct {
	client *transport.Client
	req    *types.FetchRequest
}

func (o *fetchOp) Name() string { return "fetch" }

func (o *fetchOp) Attempt(ctx context.Context, ep *types.Endpoint) *types.Outcome {
	return o.client.FetchVia(ctx, ep, o.req)
}

func (o *fetchOp) DirectCapable() bool { return true }

func (o *fetchOp) Direct(ctx context.Context) *types.Outcome {
	return o.client.FetchDirect(ctx, o.req)
}
