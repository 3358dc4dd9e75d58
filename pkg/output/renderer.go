package output

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/quire/pkg/events"
	"github.com/platinummonkey/quire/pkg/models"
	"github.com/platinummonkey/quire/pkg/observability"
)

var rendererTracer = otel.Tracer("quire/output/renderer")

// Recorder receives render observations
type Recorder interface {
	RecordRender(pages int, duration time.Duration)
}

// Renderer drives a theme over a project
type Renderer struct {
	theme    Theme
	events   *events.Dispatcher
	sink     Sink
	recorder Recorder
	log      *logrus.Logger
}

// NewRenderer creates a renderer
func NewRenderer(theme Theme, dispatcher *events.Dispatcher, sink Sink, log *logrus.Logger) *Renderer {
	if log == nil {
		log = logrus.New()
	}
	if dispatcher == nil {
		dispatcher = events.NewDispatcher()
	}

	return &Renderer{
		theme:  theme,
		events: dispatcher,
		sink:   sink,
		log:    log,
	}
}

// SetRecorder reports render metrics to recorder
func (r *Renderer) SetRecorder(recorder Recorder) {
	r.recorder = recorder
}

// Sink returns the sink pages are written to
func (r *Renderer) Sink() Sink {
	return r.sink
}

// Render renders every page of the project. A failing listener, theme, or
// sink write aborts the run.
func (r *Renderer) Render(ctx context.Context, project *models.Project, runID string) error {
	ctx, span := rendererTracer.Start(ctx, "output.Render",
		trace.WithAttributes(
			attribute.String("render.run_id", runID),
			attribute.Int("render.documents", len(project.Documents)),
		),
	)
	defer span.End()

	if err := r.render(ctx, project, runID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return err
	}

	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (r *Renderer) render(ctx context.Context, project *models.Project, runID string) error {
	start := time.Now()
	log := observability.WithTraceContext(ctx, r.log).WithField("run_id", runID)

	urls, err := r.theme.URLs(project)
	if err != nil {
		return fmt.Errorf("failed to map urls: %w", err)
	}

	nav, err := r.theme.Navigation(project)
	if err != nil {
		return fmt.Errorf("failed to build navigation: %w", err)
	}

	event := &RenderEvent{
		RunID:   runID,
		Project: project,
		URLs:    urls,
		Sink:    r.sink,
	}

	if err := r.events.Trigger(ctx, EventBeginRender, event); err != nil {
		return fmt.Errorf("%s: %w", EventBeginRender, err)
	}

	for _, mapping := range event.URLs {
		if err := ctx.Err(); err != nil {
			return err
		}

		page := &PageEvent{
			Project:    project,
			URL:        mapping.URL,
			Model:      mapping.Model,
			Template:   mapping.Template,
			Navigation: nav,
		}

		if err := r.renderPage(ctx, page); err != nil {
			return err
		}
		log.Debugf("Rendered %s", page.URL)
	}

	if err := r.events.Trigger(ctx, EventEndRender, event); err != nil {
		return fmt.Errorf("%s: %w", EventEndRender, err)
	}

	duration := time.Since(start)
	if r.recorder != nil {
		r.recorder.RecordRender(len(event.URLs), duration)
	}
	log.Infof("Rendered %d pages in %v", len(event.URLs), duration.Round(time.Millisecond))

	return nil
}

func (r *Renderer) renderPage(ctx context.Context, page *PageEvent) error {
	if err := r.events.Trigger(ctx, EventBeginPage, page); err != nil {
		return fmt.Errorf("%s %s: %w", EventBeginPage, page.URL, err)
	}

	contents, err := r.theme.Render(page)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", page.URL, err)
	}
	page.Contents = contents

	if err := r.events.Trigger(ctx, EventEndPage, page); err != nil {
		return fmt.Errorf("%s %s: %w", EventEndPage, page.URL, err)
	}

	if err := r.sink.Write(ctx, page.URL, []byte(page.Contents)); err != nil {
		return fmt.Errorf("failed to write %s: %w", page.URL, err)
	}

	return nil
}
