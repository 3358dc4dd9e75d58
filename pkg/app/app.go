// Package app wires configuration, plugins, and rendering into a runnable
// Application. The Application is the Host handed to every plugin.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/quire/pkg/config"
	"github.com/platinummonkey/quire/pkg/events"
	"github.com/platinummonkey/quire/pkg/models"
	"github.com/platinummonkey/quire/pkg/observability"
	"github.com/platinummonkey/quire/pkg/output"
	"github.com/platinummonkey/quire/pkg/output/plugins/sitemap"
	"github.com/platinummonkey/quire/pkg/plugins"
)

// DefaultVersion is reported to plugins when the build sets no version
const DefaultVersion = "dev"

// ErrAlreadyBootstrapped is returned by a second Bootstrap call
var ErrAlreadyBootstrapped = errors.New("application already bootstrapped")

type builtin struct {
	name     string
	activate plugins.ActivateFunc
}

// Application owns the logger, event dispatcher, plugin loader, and renderer
type Application struct {
	cfg        *config.Config
	log        *logrus.Logger
	dispatcher *events.Dispatcher
	options    map[string]string

	builtins     []builtin
	loader       *plugins.Loader
	loaderOpts   []plugins.LoaderOption
	bootstrapped bool

	theme    output.Theme
	sink     output.Sink
	renderer *output.Renderer

	metrics  *observability.Metrics
	recorder observability.Recorder
}

var _ plugins.Host = (*Application)(nil)

// Option configures an Application
type Option func(*Application)

// WithLogger sets the logger shared with plugins
func WithLogger(log *logrus.Logger) Option {
	return func(a *Application) {
		a.log = log
	}
}

// WithSink writes rendered pages to sink instead of the configured output
func WithSink(sink output.Sink) Option {
	return func(a *Application) {
		a.sink = sink
	}
}

// WithTheme replaces the default theme
func WithTheme(theme output.Theme) Option {
	return func(a *Application) {
		a.theme = theme
	}
}

// WithMetrics registers metrics with the given collector set
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Application) {
		a.metrics = metrics
	}
}

// WithRecorder reports plugin and render observations to recorder instead
// of the Prometheus metrics alone
func WithRecorder(recorder observability.Recorder) Option {
	return func(a *Application) {
		a.recorder = recorder
	}
}

// WithLoaderOptions passes options through to the plugin loader
func WithLoaderOptions(opts ...plugins.LoaderOption) Option {
	return func(a *Application) {
		a.loaderOpts = append(a.loaderOpts, opts...)
	}
}

// WithBuiltin adds a plugin compiled into the binary. Built-ins activate
// before configured plugins, in the order they were added.
func WithBuiltin(name string, activate plugins.ActivateFunc) Option {
	return func(a *Application) {
		a.builtins = append(a.builtins, builtin{name: name, activate: activate})
	}
}

// WithoutBuiltins drops the default built-in plugins
func WithoutBuiltins() Option {
	return func(a *Application) {
		a.builtins = nil
	}
}

// New creates an Application from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Application{
		cfg:        cfg,
		dispatcher: events.NewDispatcher(),
		options:    cfg.HostOptions(),
		builtins: []builtin{
			{name: "sitemap", activate: sitemap.Load},
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.log == nil {
		a.log = logrus.New()
	}
	if a.metrics == nil {
		a.metrics = observability.NewMetrics(nil)
	}
	if a.recorder == nil {
		a.recorder = a.metrics
	}
	if a.theme == nil {
		theme, err := output.NewDefaultTheme()
		if err != nil {
			return nil, err
		}
		a.theme = theme
	}

	loaderOpts := append([]plugins.LoaderOption{
		plugins.WithConcurrency(cfg.Concurrency),
		plugins.WithRecorder(a.recorder),
	}, a.loaderOpts...)
	a.loader = plugins.NewLoader(a.log, loaderOpts...)

	return a, nil
}

// Logger implements plugins.Host
func (a *Application) Logger() logrus.FieldLogger {
	return a.log
}

// On implements plugins.Host
func (a *Application) On(event string, listener events.Listener, priority int) events.ListenerID {
	return a.dispatcher.On(event, listener, priority)
}

// Options implements plugins.Host. The returned map is a copy.
func (a *Application) Options() map[string]string {
	opts := make(map[string]string, len(a.options))
	for k, v := range a.options {
		opts[k] = v
	}
	return opts
}

// Version implements plugins.Host
func (a *Application) Version() string {
	if a.cfg.Version == "" {
		return DefaultVersion
	}
	return a.cfg.Version
}

// Config returns the configuration the application was built with
func (a *Application) Config() *config.Config {
	return a.cfg
}

// Registry returns the activated plugins
func (a *Application) Registry() *plugins.Registry {
	return a.loader.Registry()
}

// Metrics returns the Prometheus metrics
func (a *Application) Metrics() *observability.Metrics {
	return a.metrics
}

// Bootstrap activates the built-in plugins, then loads the configured
// plugin paths. Plugin failures are reported in the results only.
func (a *Application) Bootstrap(ctx context.Context) ([]plugins.Result, error) {
	if a.bootstrapped {
		return nil, ErrAlreadyBootstrapped
	}
	a.bootstrapped = true

	results := make([]plugins.Result, 0, len(a.builtins)+len(a.cfg.Plugins))
	for _, b := range a.builtins {
		results = append(results, a.loader.ActivateBuiltin(ctx, a, b.name, b.activate))
	}
	results = append(results, a.loader.Load(ctx, a, a.cfg.Plugins)...)

	return results, nil
}

// Generate reads the project from the input directory and renders it. It
// returns the run ID attached to the run's log lines.
func (a *Application) Generate(ctx context.Context) (string, error) {
	runID := uuid.NewString()
	log := a.log.WithField("run_id", runID)

	renderer, err := a.rendererFor(ctx)
	if err != nil {
		return runID, err
	}

	start := time.Now()
	project, err := models.LoadProject(a.cfg.Input, a.cfg.Name)
	if err != nil {
		return runID, fmt.Errorf("failed to load project: %w", err)
	}
	log.Debugf("Loaded %d documents from %s in %v", len(project.Documents), a.cfg.Input, time.Since(start))

	if err := renderer.Render(ctx, project, runID); err != nil {
		return runID, fmt.Errorf("render failed: %w", err)
	}

	return runID, nil
}

// WriteMetrics writes the Prometheus textfile when a metrics file is configured
func (a *Application) WriteMetrics() error {
	path := a.cfg.Observability.MetricsFile
	if path == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// Close releases every activated plugin
func (a *Application) Close() error {
	return a.loader.Registry().Close()
}

// rendererFor creates the sink and renderer on first use so commands that
// never render do not touch the output location
func (a *Application) rendererFor(ctx context.Context) (*output.Renderer, error) {
	if a.renderer != nil {
		return a.renderer, nil
	}

	if a.sink == nil {
		sink, err := NewSink(ctx, a.cfg.Output)
		if err != nil {
			return nil, err
		}
		a.sink = sink
	}

	a.renderer = output.NewRenderer(a.theme, a.dispatcher, a.sink, a.log)
	a.renderer.SetRecorder(a.recorder)
	return a.renderer, nil
}

// NewSink creates the sink selected by the output configuration
func NewSink(ctx context.Context, cfg config.OutputConfig) (output.Sink, error) {
	switch cfg.Type {
	case config.SinkFilesystem:
		return output.NewFileSink(cfg.Dir)
	case config.SinkS3:
		return output.NewS3Sink(ctx, cfg.S3.SinkConfig())
	default:
		return nil, fmt.Errorf("unknown output type: %s", cfg.Type)
	}
}
