package plugins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/quire/pkg/events"
)

// Host is the handle passed to a plugin's activation function
type Host interface {
	Logger() logrus.FieldLogger
	On(event string, listener events.Listener, priority int) events.ListenerID
	Options() map[string]string
	Version() string
}

// ActivateFunc is the entry point a plugin exposes as its load member
type ActivateFunc func(host Host) error

// Module is the uniform shape of an imported plugin, whatever its convention
type Module interface {
	// Lookup returns the exported member with the given name.
	Lookup(name string) (any, bool)
	Close() error
}

// Importer imports the entry file of one packaging convention
type Importer interface {
	Import(ctx context.Context, entry string, manifest *Manifest) (Module, error)
}

// Convention is the declared packaging style of a plugin
type Convention string

const (
	// ConventionNative plugins are Go shared objects opened synchronously.
	ConventionNative Convention = "native"
	// ConventionRPC plugins are executables imported asynchronously over net/rpc.
	ConventionRPC Convention = "rpc"
)

// DefaultEntry returns the entry file used when neither the path nor the manifest names one
func (c Convention) DefaultEntry() string {
	switch c {
	case ConventionRPC:
		return "plugin"
	default:
		return "plugin.so"
	}
}

// Status is the outcome of a single plugin load attempt
type Status string

const (
	StatusLoaded           Status = "loaded"
	StatusImportFailed     Status = "import_failed"
	StatusInvalidStructure Status = "invalid_structure"
	StatusActivationFailed Status = "activation_failed"
)

var (
	// ErrImport marks a plugin that could not be resolved, imported, or executed.
	ErrImport = errors.New("plugin import failed")
	// ErrNoLoadFunction marks a plugin without a callable load member.
	ErrNoLoadFunction = errors.New("no load function found")
	// ErrActivation marks a plugin whose load function failed.
	ErrActivation = errors.New("plugin activation failed")
)

// LoadError carries the failure class and cause of a plugin load attempt
type LoadError struct {
	Path   string
	Status Status
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Status, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches the failure class sentinel for this error's status
func (e *LoadError) Is(target error) bool {
	switch e.Status {
	case StatusImportFailed:
		return target == ErrImport
	case StatusInvalidStructure:
		return target == ErrNoLoadFunction
	case StatusActivationFailed:
		return target == ErrActivation
	}
	return false
}

// Result is the outcome of loading one plugin reference
type Result struct {
	Path     string
	Status   Status
	Manifest *Manifest
	Err      error
	Duration time.Duration
}

// OK reports whether the plugin was activated
func (r Result) OK() bool {
	return r.Status == StatusLoaded
}

// HostInfo is the serialisable view of a Host sent to rpc plugins
type HostInfo struct {
	Version string
	Options map[string]string
}

// ValidationError represents a manifest validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	return e.Field + ": " + e.Message
}
