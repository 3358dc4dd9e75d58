package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quire/pkg/events"
)

type testHost struct {
	log        *logrus.Logger
	dispatcher *events.Dispatcher
	options    map[string]string
}

func newTestHost() (*testHost, *test.Hook) {
	log, hook := test.NewNullLogger()
	return &testHost{
		log:        log,
		dispatcher: events.NewDispatcher(),
		options:    map[string]string{"name": "fixture"},
	}, hook
}

func (h *testHost) Logger() logrus.FieldLogger { return h.log }

func (h *testHost) On(event string, listener events.Listener, priority int) events.ListenerID {
	return h.dispatcher.On(event, listener, priority)
}

func (h *testHost) Options() map[string]string { return h.options }

func (h *testHost) Version() string { return "test" }

// messages renders captured entries as "level: message"
func messages(hook *test.Hook) []string {
	var out []string
	for _, entry := range hook.AllEntries() {
		out = append(out, entry.Level.String()+": "+entry.Message)
	}
	return out
}

// writePlugin creates a plugin directory with an optional manifest and an entry file
func writePlugin(t *testing.T, manifest string, entry string, mode os.FileMode) string {
	t.Helper()

	dir := t.TempDir()
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0644))
	}
	if entry != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, entry), []byte("entry"), mode))
	}
	return dir
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("entry"), 0644)
}
