package plugins

import (
	"context"
	"fmt"
	"os"
	"plugin"
	"unicode"
	"unicode/utf8"
)

// SymbolTable is the lookup surface of an opened shared object
type SymbolTable interface {
	Lookup(name string) (plugin.Symbol, error)
}

// OpenFunc opens a shared object
type OpenFunc func(path string) (SymbolTable, error)

// NativeImporter imports Go shared objects built with -buildmode=plugin.
// Opening is synchronous and runs the object's init functions.
type NativeImporter struct {
	open OpenFunc
}

// NewNativeImporter creates an importer backed by the standard plugin package
func NewNativeImporter() *NativeImporter {
	return NewNativeImporterWithOpener(func(path string) (SymbolTable, error) {
		return plugin.Open(path)
	})
}

// NewNativeImporterWithOpener creates an importer with a custom opener
func NewNativeImporterWithOpener(open OpenFunc) *NativeImporter {
	return &NativeImporter{open: open}
}

// Import opens the shared object at entry
func (i *NativeImporter) Import(_ context.Context, entry string, _ *Manifest) (Module, error) {
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("failed to stat entry: %w", err)
	}

	table, err := i.open(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared object: %w", err)
	}

	return &nativeModule{table: table}, nil
}

type nativeModule struct {
	table SymbolTable
}

// Lookup maps member names onto exported Go identifiers, so "load" finds Load
func (m *nativeModule) Lookup(name string) (any, bool) {
	sym, err := m.table.Lookup(exportedName(name))
	if err != nil {
		return nil, false
	}
	return sym, true
}

// Close is a no-op: shared objects cannot be unloaded
func (m *nativeModule) Close() error {
	return nil
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
