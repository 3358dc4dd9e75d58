package output

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/platinummonkey/quire/pkg/events"
	"github.com/platinummonkey/quire/pkg/models"
)

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
	err   error
}

func newMemSink() *memSink {
	return &memSink{files: make(map[string][]byte)}
}

func (s *memSink) Write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.files[name] = data
	s.order = append(s.order, name)
	return nil
}

func testProject() *models.Project {
	return &models.Project{
		Name: "Docs",
		Documents: []*models.Document{
			{Title: "Intro", Path: "intro.md", Content: "# Intro\n\nHello **world**", Modified: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
			{Title: "Setup", Path: "guides/setup.md", Content: "See [intro](../intro.md)", Modified: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		},
	}
}

type recordedRender struct {
	pages    int
	duration time.Duration
}

func (r *recordedRender) RecordRender(pages int, duration time.Duration) {
	r.pages = pages
	r.duration = duration
}

func newTestRenderer(t *testing.T) (*Renderer, *events.Dispatcher, *memSink) {
	t.Helper()

	theme, err := NewDefaultTheme()
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	dispatcher := events.NewDispatcher()
	sink := newMemSink()
	return NewRenderer(theme, dispatcher, sink, log), dispatcher, sink
}

func TestRenderer_Render(t *testing.T) {
	renderer, dispatcher, sink := newTestRenderer(t)
	recorder := &recordedRender{}
	renderer.SetRecorder(recorder)

	var seen []string
	dispatcher.On(EventBeginRender, func(_ context.Context, p any) error {
		seen = append(seen, "begin:"+p.(*RenderEvent).RunID)
		return nil
	}, 0)
	dispatcher.On(EventBeginPage, func(_ context.Context, p any) error {
		seen = append(seen, "page:"+p.(*PageEvent).URL)
		return nil
	}, 0)
	dispatcher.On(EventEndPage, func(_ context.Context, p any) error {
		page := p.(*PageEvent)
		page.Contents += "<!-- " + page.URL + " -->"
		return nil
	}, 0)
	dispatcher.On(EventEndRender, func(_ context.Context, p any) error {
		seen = append(seen, "end")
		return nil
	}, 0)

	err := renderer.Render(context.Background(), testProject(), "run-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"begin:run-1", "page:index.html", "page:intro.html", "page:guides/setup.html", "end"}, seen)
	assert.Equal(t, []string{"index.html", "intro.html", "guides/setup.html"}, sink.order)
	assert.Contains(t, string(sink.files["intro.html"]), "<!-- intro.html -->")
	assert.Contains(t, string(sink.files["intro.html"]), "<strong>world</strong>")
	assert.Equal(t, 3, recorder.pages)
}

func TestRenderer_LogsTraceContext(t *testing.T) {
	theme, err := NewDefaultTheme()
	require.NoError(t, err)
	log, hook := test.NewNullLogger()
	renderer := NewRenderer(theme, nil, newMemSink(), log)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "build")
	defer span.End()

	require.NoError(t, renderer.Render(ctx, testProject(), "run-2"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Contains(t, entry.Message, "Rendered 3 pages")
	assert.Equal(t, "run-2", entry.Data["run_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace_id"])
}

func TestRenderer_ListenerErrorAborts(t *testing.T) {
	renderer, dispatcher, sink := newTestRenderer(t)
	dispatcher.On(EventBeginPage, func(_ context.Context, p any) error {
		if p.(*PageEvent).URL == "intro.html" {
			return errors.New("bad page")
		}
		return nil
	}, 0)

	err := renderer.Render(context.Background(), testProject(), "run-1")

	assert.ErrorContains(t, err, "bad page")
	assert.Equal(t, []string{"index.html"}, sink.order)
}

func TestRenderer_SinkError(t *testing.T) {
	renderer, _, sink := newTestRenderer(t)
	sink.err = errors.New("disk full")

	err := renderer.Render(context.Background(), testProject(), "run-1")

	assert.ErrorContains(t, err, "failed to write index.html")
}

func TestRenderer_CancelledContext(t *testing.T) {
	renderer, _, sink := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := renderer.Render(ctx, testProject(), "run-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.order)
}

func TestPageEvent(t *testing.T) {
	project := testProject()

	index := &PageEvent{Project: project}
	assert.Equal(t, "Docs", index.Title())
	assert.Equal(t, project.Documents[1].Modified, index.LastModified())

	page := &PageEvent{Project: project, Model: project.Documents[0]}
	assert.Equal(t, "Intro", page.Title())
	assert.Equal(t, project.Documents[0].Modified, page.LastModified())

	assert.True(t, LatestModified(&models.Project{}).IsZero())
}
