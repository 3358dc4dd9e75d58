package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	log, hook := test.NewNullLogger()

	assert.NotPanics(t, func() {
		defer RecoverPanic(log, "rebuild")
		panic("boom")
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "PANIC recovered", entry.Message)
	assert.Equal(t, "boom", entry.Data["panic"])
	assert.Equal(t, "rebuild", entry.Data["context"])
	assert.NotEmpty(t, entry.Data["stack"])
}

func TestRecoverPanic_NoPanic(t *testing.T) {
	log, hook := test.NewNullLogger()

	func() {
		defer RecoverPanic(log, "rebuild")
	}()

	assert.Empty(t, hook.Entries)
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("boom"), "panic: boom")

	run := func() (err error) {
		defer func() {
			err = MustRecover(recover())
		}()
		var m map[string]int
		m["x"] = 1
		return nil
	}
	assert.ErrorContains(t, run(), "assignment to entry in nil map")
}

func TestRecoveryMiddleware(t *testing.T) {
	log, hook := test.NewNullLogger()
	handler := RecoveryMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "GET /index.html", hook.LastEntry().Data["context"])
}
