package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"plugin"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// fakeTable is an in-memory shared object
type fakeTable map[string]plugin.Symbol

func (f fakeTable) Lookup(name string) (plugin.Symbol, error) {
	sym, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", name)
	}
	return sym, nil
}

// fakeObjects maps entry paths to shared objects; a missing path fails to open
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]fakeTable
	opened  []string
}

func (f *fakeObjects) open(path string) (SymbolTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, path)
	table, ok := f.objects[path]
	if !ok {
		return nil, errors.New("invalid ELF header")
	}
	if sym, ok := table["init"]; ok {
		sym.(func())()
	}
	return table, nil
}

func newFakeLoader(t *testing.T, objects map[string]fakeTable, opts ...LoaderOption) (*Loader, *testHost, *fakeObjects) {
	t.Helper()

	host, _ := newTestHost()
	fake := &fakeObjects{objects: objects}
	opts = append([]LoaderOption{WithImporter(ConventionNative, NewNativeImporterWithOpener(fake.open))}, opts...)
	return NewLoader(host.log, opts...), host, fake
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader(nil)

	assert.NotNil(t, loader)
	assert.NotNil(t, loader.log)
	assert.NotNil(t, loader.Registry())
	assert.Equal(t, 1, loader.concurrency)
	assert.Contains(t, loader.importers, ConventionNative)
	assert.Contains(t, loader.importers, ConventionRPC)
}

func TestNewLoader_WithCustomLogger(t *testing.T) {
	customLogger := logrus.New()
	customLogger.SetLevel(logrus.DebugLevel)

	loader := NewLoader(customLogger, WithConcurrency(4))

	assert.Equal(t, customLogger, loader.log)
	assert.Equal(t, 4, loader.concurrency)
}

func TestLoadPlugin_BasicPlugin(t *testing.T) {
	dir := writePlugin(t, "convention: native\nmain: plugin.so\n", "plugin.so", 0644)
	entry := filepath.Join(dir, "plugin.so")

	called := 0
	loader, host, _ := newFakeLoader(t, map[string]fakeTable{
		entry: {"Load": func(h Host) error {
			called++
			assert.Equal(t, "test", h.Version())
			return nil
		}},
	})

	res := loader.LoadPlugin(context.Background(), host, dir)

	assert.True(t, res.OK())
	assert.Equal(t, StatusLoaded, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, called)
	assert.True(t, loader.Registry().Has(dir))
}

func TestLoad_Messages(t *testing.T) {
	tests := []struct {
		name     string
		symbols  fakeTable
		open     bool
		status   Status
		sentinel error
		message  string
	}{
		{
			name:    "valid activation",
			symbols: fakeTable{"Load": func(Host) error { return nil }},
			open:    true,
			status:  StatusLoaded,
			message: "info: Loaded plugin %s",
		},
		{
			name:     "import error",
			open:     false,
			status:   StatusImportFailed,
			sentinel: ErrImport,
			message:  "error: The plugin %s could not be loaded",
		},
		{
			name:     "panic during import",
			symbols:  fakeTable{"init": func() { panic("bad") }, "Load": func(Host) error { return nil }},
			open:     true,
			status:   StatusImportFailed,
			sentinel: ErrImport,
			message:  "error: The plugin %s could not be loaded",
		},
		{
			name:     "activation error",
			symbols:  fakeTable{"Load": func(Host) error { return errors.New("bad") }},
			open:     true,
			status:   StatusActivationFailed,
			sentinel: ErrActivation,
			message:  "error: The plugin %s could not be loaded",
		},
		{
			name:     "activation panic",
			symbols:  fakeTable{"Load": func(Host) error { panic("bad") }},
			open:     true,
			status:   StatusActivationFailed,
			sentinel: ErrActivation,
			message:  "error: The plugin %s could not be loaded",
		},
		{
			name:     "missing load",
			symbols:  fakeTable{"Setup": func(Host) error { return nil }},
			open:     true,
			status:   StatusInvalidStructure,
			sentinel: ErrNoLoadFunction,
			message:  "error: Invalid structure in plugin %s, no load function found",
		},
		{
			name:     "load is not a function",
			symbols:  fakeTable{"Load": new(int)},
			open:     true,
			status:   StatusInvalidStructure,
			sentinel: ErrNoLoadFunction,
			message:  "error: Invalid structure in plugin %s, no load function found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writePlugin(t, "main: plugin.so\n", "plugin.so", 0644)
			entry := filepath.Join(dir, "plugin.so")
			pluginPath := entry

			objects := map[string]fakeTable{}
			if tt.open {
				objects[entry] = tt.symbols
			}

			host, hook := newTestHost()
			fake := &fakeObjects{objects: objects}
			loader := NewLoader(host.log, WithImporter(ConventionNative, NewNativeImporterWithOpener(fake.open)))

			results := loader.Load(context.Background(), host, []string{pluginPath})

			require.Len(t, results, 1)
			assert.Equal(t, tt.status, results[0].Status)
			if tt.sentinel != nil {
				assert.ErrorIs(t, results[0].Err, tt.sentinel)
			}
			assert.Equal(t, []string{fmt.Sprintf(tt.message, pluginPath)}, messages(hook))
			assert.Equal(t, tt.status == StatusLoaded, loader.Registry().Has(pluginPath))
		})
	}
}

func TestLoad_MissingManifestDefaultsToNative(t *testing.T) {
	dir := writePlugin(t, "", "plugin.so", 0644)
	entry := filepath.Join(dir, "plugin.so")

	loader, host, fake := newFakeLoader(t, map[string]fakeTable{
		entry: {"Load": func(Host) {}},
	})

	res := loader.LoadPlugin(context.Background(), host, dir)

	assert.Equal(t, StatusLoaded, res.Status)
	assert.Equal(t, []string{entry}, fake.opened)
	require.NotNil(t, res.Manifest)
	assert.Equal(t, ConventionNative, res.Manifest.ResolvedConvention())
}

func TestLoad_ExplicitFileWinsOverManifestMain(t *testing.T) {
	dir := writePlugin(t, "main: plugin.so\n", "plugin.so", 0644)
	other := filepath.Join(dir, "other.so")
	require.NoError(t, writeFile(other))

	loader, host, fake := newFakeLoader(t, map[string]fakeTable{
		other: {"Load": func(Host) error { return nil }},
	})

	res := loader.LoadPlugin(context.Background(), host, other)

	assert.Equal(t, StatusLoaded, res.Status)
	assert.Equal(t, []string{other}, fake.opened)
}

func TestLoad_MalformedManifest(t *testing.T) {
	dir := writePlugin(t, "convention: [native\n", "plugin.so", 0644)

	loader, host, fake := newFakeLoader(t, nil)
	res := loader.LoadPlugin(context.Background(), host, dir)

	assert.Equal(t, StatusImportFailed, res.Status)
	assert.Empty(t, fake.opened, "nothing is imported before the manifest is understood")
}

func TestLoad_UnknownConvention(t *testing.T) {
	dir := writePlugin(t, "convention: wasm\n", "plugin.so", 0644)

	loader, host, fake := newFakeLoader(t, nil)
	res := loader.LoadPlugin(context.Background(), host, dir)

	assert.Equal(t, StatusImportFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "Unknown convention")
	assert.Empty(t, fake.opened)
}

func TestLoad_NonexistentPath(t *testing.T) {
	loader, host, _ := newFakeLoader(t, nil)

	res := loader.LoadPlugin(context.Background(), host, "/nonexistent/plugin")

	assert.Equal(t, StatusImportFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrImport)
}

func TestLoad_BatchIsolation(t *testing.T) {
	failures := []struct {
		name    string
		symbols fakeTable
		status  Status
		message string
	}{
		{
			name:    "import failure",
			status:  StatusImportFailed,
			message: "error: The plugin %s could not be loaded",
		},
		{
			name:    "missing load",
			symbols: fakeTable{"Setup": func(Host) error { return nil }},
			status:  StatusInvalidStructure,
			message: "error: Invalid structure in plugin %s, no load function found",
		},
		{
			name:    "activation failure",
			symbols: fakeTable{"Load": func(Host) error { return errors.New("bad") }},
			status:  StatusActivationFailed,
			message: "error: The plugin %s could not be loaded",
		},
	}

	for _, failure := range failures {
		for _, concurrency := range []int{1, 4} {
			t.Run(fmt.Sprintf("%s/concurrency=%d", failure.name, concurrency), func(t *testing.T) {
				var paths []string
				objects := map[string]fakeTable{}
				for i := 0; i < 5; i++ {
					dir := writePlugin(t, "", "plugin.so", 0644)
					entry := filepath.Join(dir, "plugin.so")
					paths = append(paths, dir)

					delay := time.Duration(5-i) * time.Millisecond
					objects[entry] = fakeTable{"Load": func(Host) error {
						time.Sleep(delay)
						return nil
					}}
				}

				// The middle plugin fails; a nil table cannot be opened
				broken := filepath.Join(paths[2], "plugin.so")
				if failure.symbols == nil {
					delete(objects, broken)
				} else {
					objects[broken] = failure.symbols
				}

				host, hook := newTestHost()
				fake := &fakeObjects{objects: objects}
				loader := NewLoader(host.log,
					WithImporter(ConventionNative, NewNativeImporterWithOpener(fake.open)),
					WithConcurrency(concurrency),
				)

				results := loader.Load(context.Background(), host, paths)

				require.Len(t, results, len(paths))
				for i, res := range results {
					assert.Equal(t, paths[i], res.Path, "results keep input order")
					if i == 2 {
						assert.Equal(t, failure.status, res.Status)
					} else {
						assert.Equal(t, StatusLoaded, res.Status)
					}
				}

				msgs := messages(hook)
				assert.Len(t, msgs, len(paths))
				for i, path := range paths {
					if i == 2 {
						assert.Contains(t, msgs, fmt.Sprintf(failure.message, path))
						assert.NotContains(t, msgs, "info: Loaded plugin "+path)
					} else {
						assert.Contains(t, msgs, "info: Loaded plugin "+path)
					}
				}
				assert.Equal(t, 4, loader.Registry().Count())
				assert.False(t, loader.Registry().Has(paths[2]))
			})
		}
	}
}

func TestLoad_ImporterReturningNoModule(t *testing.T) {
	empty := writePlugin(t, "convention: rpc\n", "plugin", 0755)
	good := writePlugin(t, "convention: rpc\n", "plugin", 0755)

	host, hook := newTestHost()
	loader := NewLoader(host.log, WithImporter(ConventionRPC, importerFunc(
		func(_ context.Context, entry string, _ *Manifest) (Module, error) {
			if entry == filepath.Join(empty, "plugin") {
				return nil, nil
			}
			return staticModule{LoadMember: ActivateFunc(func(Host) error { return nil })}, nil
		},
	)))

	var results []Result
	require.NotPanics(t, func() {
		results = loader.Load(context.Background(), host, []string{empty, good})
	})

	require.Len(t, results, 2)
	assert.Equal(t, StatusImportFailed, results[0].Status)
	assert.ErrorIs(t, results[0].Err, ErrImport)
	assert.ErrorContains(t, results[0].Err, "importer returned no module")
	assert.Equal(t, StatusLoaded, results[1].Status)

	assert.Equal(t, []string{
		"error: The plugin " + empty + " could not be loaded",
		"info: Loaded plugin " + good,
	}, messages(hook))
	assert.False(t, loader.Registry().Has(empty))
	assert.True(t, loader.Registry().Has(good))
}

func TestLoad_LogsTraceContext(t *testing.T) {
	dir := writePlugin(t, "", "plugin.so", 0644)
	loader, host, _ := newFakeLoader(t, map[string]fakeTable{
		filepath.Join(dir, "plugin.so"): {"Load": func(Host) error { return nil }},
	})
	hook := test.NewLocal(host.log)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "build")
	defer span.End()

	loader.LoadPlugin(ctx, host, dir)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Loaded plugin "+dir, entry.Message)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace_id"])
	assert.NotEmpty(t, entry.Data["span_id"])
}

func TestLoad_ActivationCanSubscribe(t *testing.T) {
	dir := writePlugin(t, "", "plugin.so", 0644)
	entry := filepath.Join(dir, "plugin.so")

	loader, host, _ := newFakeLoader(t, map[string]fakeTable{
		entry: {"Load": func(h Host) error {
			h.On("endRender", func(context.Context, any) error { return nil }, 0)
			return nil
		}},
	})

	res := loader.LoadPlugin(context.Background(), host, dir)

	assert.True(t, res.OK())
	assert.Equal(t, 1, host.dispatcher.Count("endRender"))
}

type countingRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *countingRecorder) RecordPluginLoad(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestLoad_RecordsOutcomes(t *testing.T) {
	good := writePlugin(t, "", "plugin.so", 0644)
	bad := writePlugin(t, "", "plugin.so", 0644)

	recorder := &countingRecorder{}
	loader, host, _ := newFakeLoader(t, map[string]fakeTable{
		filepath.Join(good, "plugin.so"): {"Load": func(Host) error { return nil }},
		filepath.Join(bad, "plugin.so"):  {},
	}, WithRecorder(recorder))

	loader.Load(context.Background(), host, []string{good, bad})

	assert.Equal(t, []string{"loaded", "invalid_structure"}, recorder.statuses)
}

func TestSetImporter(t *testing.T) {
	dir := writePlugin(t, "convention: rpc\n", "plugin", 0755)

	loader, host, _ := newFakeLoader(t, nil)
	loader.SetImporter(ConventionRPC, importerFunc(func(ctx context.Context, entry string, m *Manifest) (Module, error) {
		assert.Equal(t, filepath.Join(dir, "plugin"), entry)
		return staticModule{"load": ActivateFunc(func(Host) error { return nil })}, nil
	}))

	res := loader.LoadPlugin(context.Background(), host, dir)

	assert.Equal(t, StatusLoaded, res.Status)
}

type importerFunc func(ctx context.Context, entry string, m *Manifest) (Module, error)

func (f importerFunc) Import(ctx context.Context, entry string, m *Manifest) (Module, error) {
	return f(ctx, entry, m)
}

type staticModule map[string]any

func (s staticModule) Lookup(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

func (s staticModule) Close() error { return nil }

func TestActivateBuiltin(t *testing.T) {
	host, hook := newTestHost()
	loader := NewLoader(host.log)

	ok := loader.ActivateBuiltin(context.Background(), host, "sitemap", func(h Host) error {
		h.On("endRender", func(context.Context, any) error { return nil }, 0)
		return nil
	})
	failed := loader.ActivateBuiltin(context.Background(), host, "broken", func(Host) error {
		return errors.New("bad option")
	})
	missing := loader.ActivateBuiltin(context.Background(), host, "empty", nil)

	assert.Equal(t, StatusLoaded, ok.Status)
	assert.Equal(t, "sitemap", ok.Manifest.ID)
	assert.Equal(t, "test", ok.Manifest.Version)
	assert.ErrorIs(t, failed.Err, ErrActivation)
	assert.ErrorIs(t, missing.Err, ErrNoLoadFunction)

	assert.True(t, loader.Registry().Has("sitemap"))
	assert.False(t, loader.Registry().Has("broken"))
	assert.Equal(t, 1, host.dispatcher.Count("endRender"))
	assert.Equal(t, []string{
		"info: Loaded plugin sitemap",
		"error: The plugin broken could not be loaded",
		"error: Invalid structure in plugin empty, no load function found",
	}, messages(hook))
}
