package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftlang/weft/pkg/doc"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
)

// Options configure one driver invocation.
type Options struct {
	// Source is the document to execute: a file path, a package directory,
	// or a remote URI.
	Source string

	// Format overrides format resolution with an explicit identifier or
	// extension.
	Format string

	// Marker selects entry-point candidates; defaults to DefaultMarker.
	Marker string

	// EntryPoint bypasses marker discovery and names the function to run.
	EntryPoint string

	// Nested extends discovery into child scopes. On by default through
	// NewOptions.
	Nested bool

	// Allow is the invocation's capability allow-list.
	Allow []string

	// Policies are additional named Rego policy modules layered on top of
	// the built-in allow-list rule.
	Policies map[string]string

	// Args are passed into the entry function's environment.
	Args map[string]any

	// Credentials authenticate remote source loading.
	Credentials *fetch.Credentials

	// FetchTimeout bounds each remote fetch; zero uses the fetch client
	// default.
	FetchTimeout time.Duration
}

// NewOptions returns invocation options with defaults applied.
func NewOptions(source string) Options {
	return Options{
		Source: source,
		Marker: DefaultMarker,
		Nested: true,
	}
}

// Pipeline wires the driver stages for repeated invocations: the CLI runs it
// once per command, the runner service once per request, watch mode once per
// relevant file change.
type Pipeline struct {
	logger   zerolog.Logger
	registry *format.Registry
	fetcher  fetch.Fetcher
	tracer   trace.Tracer
}

// NewPipeline returns a driver pipeline over the given codec registry and
// fetcher.
func NewPipeline(logger zerolog.Logger, reg *format.Registry, fetcher fetch.Fetcher) *Pipeline {
	return &Pipeline{
		logger:   logger,
		registry: reg,
		fetcher:  fetcher,
		tracer:   otel.Tracer("github.com/weftlang/weft/pkg/engine"),
	}
}

// Registry returns the pipeline's codec registry.
func (p *Pipeline) Registry() *format.Registry { return p.registry }

// Fetcher returns the pipeline's remote fetcher.
func (p *Pipeline) Fetcher() fetch.Fetcher { return p.fetcher }

// Run executes one invocation end to end: policy setup, load, discovery,
// execution. The result always comes back non-nil; committing it is the
// caller's responsibility so each caller can pick its own sinks.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	ctx, span := p.tracer.Start(ctx, "weft.run",
		trace.WithAttributes(attribute.String("weft.source", opts.Source)))
	defer span.End()

	pol, err := policy.NewEngine(p.logger, opts.Allow)
	if err != nil {
		return p.failed(span, NewExecutionError(StageResolve, "", err))
	}
	for name, module := range opts.Policies {
		if err := pol.AddPolicy(ctx, name, module); err != nil {
			return p.failed(span, NewExecutionError(StageResolve, "", err))
		}
	}

	d, id, err := p.load(ctx, opts, pol)
	if err != nil {
		return p.failed(span, asDriverError(StageLoad, opts.Source, err))
	}
	span.SetAttributes(attribute.String("weft.format", string(id)))

	return p.execute(ctx, span, d, pol, opts)
}

// RunData executes a document supplied as raw bytes instead of a loadable
// source; the runner service feeds request bodies through here. Format
// resolution uses the explicit override, the supplied name, and the
// content-type hint.
func (p *Pipeline) RunData(ctx context.Context, name string, data []byte, contentType string, opts Options) *Result {
	ctx, span := p.tracer.Start(ctx, "weft.run",
		trace.WithAttributes(attribute.String("weft.source", name)))
	defer span.End()

	pol, err := policy.NewEngine(p.logger, opts.Allow)
	if err != nil {
		return p.failed(span, NewExecutionError(StageResolve, "", err))
	}
	for name, module := range opts.Policies {
		if err := pol.AddPolicy(ctx, name, module); err != nil {
			return p.failed(span, NewExecutionError(StageResolve, "", err))
		}
	}

	id, err := p.registry.Resolve(opts.Format, name, contentType)
	if err != nil {
		return p.failed(span, NewUnknownFormatError(name, err))
	}
	codec, err := p.registry.Codec(id)
	if err != nil {
		return p.failed(span, NewUnknownFormatError(name, err))
	}
	d, err := codec.Decode(name, data)
	if err != nil {
		return p.failed(span, NewLoadError(string(id), name, err))
	}
	span.SetAttributes(attribute.String("weft.format", string(id)))

	return p.execute(ctx, span, d, pol, opts)
}

// execute runs discovery and the coordinator over a loaded handle.
func (p *Pipeline) execute(ctx context.Context, span trace.Span, d *doc.Document, pol *policy.Engine, opts Options) *Result {
	entry, err := p.discover(ctx, d, opts)
	if err != nil {
		return p.failed(span, asDriverError(StageDiscover, opts.Source, err))
	}
	span.SetAttributes(attribute.String("weft.entry_point", entry.Path))

	ec := NewExecutionContext(ctx, p.logger, p.fetcher, p.registry, pol)
	defer ec.Close()
	if opts.FetchTimeout > 0 {
		ec.SetFetchTimeout(opts.FetchTimeout)
	}

	res := NewCoordinator(p.logger).Execute(d, entry, ec, opts.Args)
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (p *Pipeline) load(ctx context.Context, opts Options, pol *policy.Engine) (*doc.Document, format.ID, error) {
	ctx, span := p.tracer.Start(ctx, "weft.load")
	defer span.End()
	return NewLoader(p.registry, p.fetcher, pol, p.logger).Load(ctx, opts.Source, opts.Format, opts.Credentials)
}

func (p *Pipeline) discover(ctx context.Context, d *doc.Document, opts Options) (*doc.Function, error) {
	_, span := p.tracer.Start(ctx, "weft.discover")
	defer span.End()
	return SelectEntry(d, opts.Marker, opts.EntryPoint, opts.Nested)
}

// failed builds a terminal result for a pre-execution failure.
func (p *Pipeline) failed(span trace.Span, derr *DriverError) *Result {
	span.SetStatus(codes.Error, derr.Error())
	p.logger.Error().
		Str("code", string(derr.Code)).
		Str("stage", string(derr.Stage)).
		Err(derr).
		Msg("Invocation failed before execution")
	return &Result{State: StateFailed, Err: derr}
}
