package plugins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/quire/pkg/observability"
)

var loaderTracer = otel.Tracer("quire/plugins/loader")

// Recorder receives one observation per plugin load attempt
type Recorder interface {
	RecordPluginLoad(status string, duration time.Duration)
}

// Loader imports, validates, and activates plugins. Failures are isolated
// per plugin: they are logged and reported in the results, never returned.
type Loader struct {
	importers   map[Convention]Importer
	registry    *Registry
	recorder    Recorder
	concurrency int
	mu          sync.RWMutex
	log         *logrus.Logger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithImporter sets the importer used for a convention
func WithImporter(convention Convention, importer Importer) LoaderOption {
	return func(l *Loader) {
		l.importers[convention] = importer
	}
}

// WithRegistry records activated plugins in registry
func WithRegistry(registry *Registry) LoaderOption {
	return func(l *Loader) {
		l.registry = registry
	}
}

// WithRecorder reports load outcomes to a metrics recorder
func WithRecorder(recorder Recorder) LoaderOption {
	return func(l *Loader) {
		l.recorder = recorder
	}
}

// WithConcurrency bounds how many plugins load at once
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewLoader creates a new plugin loader with the native and rpc importers
func NewLoader(log *logrus.Logger, opts ...LoaderOption) *Loader {
	if log == nil {
		log = logrus.New()
	}

	l := &Loader{
		importers: map[Convention]Importer{
			ConventionNative: NewNativeImporter(),
			ConventionRPC:    NewRPCImporter(log.IsLevelEnabled(logrus.DebugLevel)),
		},
		registry:    NewRegistry(),
		concurrency: 1,
		log:         log,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// SetImporter replaces the importer for a convention
func (l *Loader) SetImporter(convention Convention, importer Importer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.importers[convention] = importer
}

// Registry returns the registry of activated plugins
func (l *Loader) Registry() *Registry {
	return l.registry
}

// Load loads every plugin path and returns one result per path, in order.
// It never fails as a whole.
func (l *Loader) Load(ctx context.Context, host Host, paths []string) []Result {
	results := make([]Result, len(paths))

	if l.concurrency <= 1 {
		for i, path := range paths {
			results[i] = l.LoadPlugin(ctx, host, path)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(l.concurrency)

	for i, path := range paths {
		i, path := i, path // capture loop variables
		g.Go(func() error {
			results[i] = l.LoadPlugin(ctx, host, path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// LoadPlugin runs one load-or-fail cycle and logs exactly one outcome message
func (l *Loader) LoadPlugin(ctx context.Context, host Host, path string) (res Result) {
	start := time.Now()
	ctx, span := loaderTracer.Start(ctx, "plugins.Load",
		trace.WithAttributes(attribute.String("plugin.path", path)),
	)
	defer span.End()

	res = Result{Path: path, Status: StatusLoaded}
	defer func() {
		res.Duration = time.Since(start)
		l.report(ctx, res, span)
	}()

	var module Module
	err := guard(func() error {
		manifest, m, err := l.importPlugin(ctx, path)
		res.Manifest = manifest
		module = m
		return err
	})
	if err == nil && module == nil {
		err = fmt.Errorf("importer returned no module")
	}
	if err != nil {
		res.Status, res.Err = StatusImportFailed, &LoadError{Path: path, Status: StatusImportFailed, Err: err}
		return res
	}

	l.activate(host, module, &res)
	return res
}

// ActivateBuiltin activates a plugin compiled into the host. It goes through
// the same validation, logging, and registry steps as a loaded plugin.
func (l *Loader) ActivateBuiltin(ctx context.Context, host Host, name string, fn ActivateFunc) (res Result) {
	start := time.Now()
	ctx, span := loaderTracer.Start(ctx, "plugins.ActivateBuiltin",
		trace.WithAttributes(attribute.String("plugin.path", name)),
	)
	defer span.End()

	res = Result{
		Path:     name,
		Status:   StatusLoaded,
		Manifest: &Manifest{ID: name, Name: name, Version: host.Version()},
	}
	defer func() {
		res.Duration = time.Since(start)
		l.report(ctx, res, span)
	}()

	l.activate(host, builtinModule{activate: fn}, &res)
	return res
}

// activate checks the module's load member and calls it with host
func (l *Loader) activate(host Host, module Module, res *Result) {
	var activate ActivateFunc
	err := guard(func() error {
		fn, err := Activation(module)
		activate = fn
		return err
	})
	if err != nil {
		closeModule(module)
		res.Status, res.Err = StatusInvalidStructure, &LoadError{Path: res.Path, Status: StatusInvalidStructure, Err: err}
		return
	}

	if err := guard(func() error { return activate(host) }); err != nil {
		closeModule(module)
		res.Status, res.Err = StatusActivationFailed, &LoadError{Path: res.Path, Status: StatusActivationFailed, Err: err}
		return
	}

	if l.registry != nil {
		l.registry.add(res.Path, res.Manifest, module)
	}
}

// closeModule releases a module that is not kept in a registry
func closeModule(module Module) {
	if module == nil {
		return
	}
	_ = guard(module.Close)
}

// builtinModule exposes a host-provided activation function as a Module
type builtinModule struct {
	activate ActivateFunc
}

func (m builtinModule) Lookup(name string) (any, bool) {
	if name != LoadMember || m.activate == nil {
		return nil, false
	}
	return m.activate, true
}

func (m builtinModule) Close() error {
	return nil
}

// importPlugin detects the convention from the manifest before any import
// side effect, then imports the resolved entry file.
func (l *Loader) importPlugin(ctx context.Context, path string) (*Manifest, Module, error) {
	manifest, err := FindManifest(path)
	if err != nil {
		return nil, nil, err
	}

	if errs := ValidateManifest(manifest); len(errs) > 0 {
		return manifest, nil, fmt.Errorf("manifest validation failed: %v", errs)
	}

	convention := manifest.ResolvedConvention()
	l.mu.RLock()
	importer, ok := l.importers[convention]
	l.mu.RUnlock()
	if !ok {
		return manifest, nil, fmt.Errorf("no importer for convention %q", convention)
	}

	entry, err := manifest.EntryFor(path)
	if err != nil {
		return manifest, nil, err
	}

	l.log.Debugf("Importing plugin %s (convention: %s, entry: %s)", path, convention, entry)

	module, err := importer.Import(ctx, entry, manifest)
	if err != nil {
		return manifest, nil, err
	}
	return manifest, module, nil
}

func (l *Loader) report(ctx context.Context, res Result, span trace.Span) {
	log := observability.WithTraceContext(ctx, l.log)
	span.SetAttributes(attribute.String("plugin.status", string(res.Status)))

	switch res.Status {
	case StatusLoaded:
		span.SetStatus(codes.Ok, "plugin loaded")
		log.Infof("Loaded plugin %s", res.Path)
	case StatusInvalidStructure:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "invalid plugin structure")
		log.WithError(res.Err).Errorf("Invalid structure in plugin %s, no load function found", res.Path)
	default:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "plugin could not be loaded")
		log.WithError(res.Err).Errorf("The plugin %s could not be loaded", res.Path)
	}

	if l.recorder != nil {
		l.recorder.RecordPluginLoad(string(res.Status), res.Duration)
	}
}

// guard runs fn and converts a panic into an error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
