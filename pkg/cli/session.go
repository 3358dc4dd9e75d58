package cli

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/quire/pkg/app"
	"github.com/platinummonkey/quire/pkg/config"
	"github.com/platinummonkey/quire/pkg/observability"
	"github.com/platinummonkey/quire/pkg/plugins"
	"github.com/platinummonkey/quire/pkg/watch"
)

const otelShutdownTimeout = 5 * time.Second

// buildFlags are the project flags shared by generate and serve
type buildFlags struct {
	name          string
	input         string
	out           string
	outputType    string
	hostedBaseURL string
	metricsFile   string
	plugins       []string
	options       map[string]string
	concurrency   int
	watch         bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "", "project name")
	flags.StringVarP(&f.input, "input", "i", "", "input directory of markdown documents")
	flags.StringVarP(&f.out, "out", "o", "", "output directory")
	flags.StringVar(&f.outputType, "output-type", "", "output sink: fs or s3")
	flags.StringVar(&f.hostedBaseURL, "hosted-base-url", "", "public base URL of the generated site")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after each build")
	flags.StringArrayVarP(&f.plugins, "plugin", "p", nil, "plugin path to load (repeatable)")
	flags.StringToStringVar(&f.options, "option", nil, "host option passed to plugins as key=value (repeatable)")
	flags.IntVar(&f.concurrency, "concurrency", 0, "number of plugins loaded in parallel")
	flags.BoolVarP(&f.watch, "watch", "w", false, "rebuild when the input directory changes")
}

// apply overrides the configuration with the flags set on the command line
func (f *buildFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Name = f.name
	}
	if flags.Changed("input") {
		cfg.Input = f.input
	}
	if flags.Changed("out") {
		cfg.Output.Dir = f.out
	}
	if flags.Changed("output-type") {
		cfg.Output.Type = f.outputType
	}
	if flags.Changed("hosted-base-url") {
		cfg.HostedBaseURL = f.hostedBaseURL
	}
	if flags.Changed("metrics-file") {
		cfg.Observability.MetricsFile = f.metricsFile
	}
	if flags.Changed("plugin") {
		cfg.Plugins = append(cfg.Plugins, f.plugins...)
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if len(f.options) > 0 {
		if cfg.Options == nil {
			cfg.Options = make(map[string]string, len(f.options))
		}
		for k, v := range f.options {
			cfg.Options[k] = v
		}
	}
}

// loadConfig resolves defaults, file, environment, and flags, in that order,
// and validates the result
func loadConfig(opts *rootOptions, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	cfg.Version = opts.version
	if cfg.Observability.OTelServiceVersion == "" {
		cfg.Observability.OTelServiceVersion = opts.version
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Observability.LogFormat = opts.logFormat
	}
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is one command's running application with its logger and
// telemetry providers
type session struct {
	cfg  *config.Config
	log  *logrus.Logger
	app  *app.Application
	otel *observability.OTelProviders
}

func newSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts ...app.Option) (*session, error) {
	log, err := observability.NewLogger(cfg.Observability.LogLevel, observability.LogFormat(cfg.Observability.LogFormat), cmd.ErrOrStderr())
	if err != nil {
		log.Warnf("Invalid log level %q, using info", cfg.Observability.LogLevel)
	}

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), log)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(nil)
	otelMetrics, err := observability.NewOTelMetrics(nil)
	if err != nil {
		return nil, errors.Join(err, observability.ShutdownOTel(ctx, providers, log))
	}

	appOpts := append([]app.Option{
		app.WithLogger(log),
		app.WithMetrics(metrics),
		app.WithRecorder(observability.Fanout(metrics, otelMetrics)),
	}, opts...)

	a, err := app.New(cfg, appOpts...)
	if err != nil {
		return nil, errors.Join(err, observability.ShutdownOTel(ctx, providers, log))
	}

	return &session{cfg: cfg, log: log, app: a, otel: providers}, nil
}

// bootstrap activates the plugins and returns the results
func (s *session) bootstrap(ctx context.Context) ([]plugins.Result, error) {
	results, err := s.app.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	if failed > 0 {
		s.log.Warnf("%d of %d plugins failed to load", failed, len(results))
	} else {
		s.log.Debugf("Loaded %d plugins", len(results))
	}

	return results, nil
}

// build renders the site once and writes the metrics file
func (s *session) build(ctx context.Context) error {
	start := time.Now()
	runID, err := s.app.Generate(ctx)
	if err != nil {
		return err
	}
	s.log.WithField("run_id", runID).Infof("Generated %s in %v", s.cfg.Input, time.Since(start).Round(time.Millisecond))

	return s.app.WriteMetrics()
}

// watch rebuilds on input changes until ctx is done. onBuild, when set,
// receives every rebuild outcome.
func (s *session) watch(ctx context.Context, onBuild func(error)) error {
	opts := []watch.Option{watch.WithDebounce(s.cfg.Watch.Debounce)}
	if s.cfg.Output.Type == config.SinkFilesystem {
		opts = append(opts, watch.WithIgnore(s.cfg.Output.Dir))
	}

	w := watch.New(s.cfg.Input, func(ctx context.Context, changed []string) error {
		s.log.Debugf("Changed: %v", changed)
		err := s.build(ctx)
		if onBuild != nil {
			onBuild(err)
		}
		return err
	}, s.log, opts...)

	return w.Run(ctx)
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()

	return errors.Join(s.app.Close(), observability.ShutdownOTel(ctx, s.otel, s.log))
}
