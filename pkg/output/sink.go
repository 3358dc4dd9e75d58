package output

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var sinkTracer = otel.Tracer("quire/output/sink")

// Sink stores rendered artifacts by slash separated name
type Sink interface {
	Write(ctx context.Context, name string, data []byte) error
}

// cleanName normalises an artifact name and rejects names escaping the root
func cleanName(name string) (string, error) {
	cleaned := path.Clean("/" + filepath.ToSlash(name))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid artifact name: %q", name)
	}
	return cleaned, nil
}

// FileSink writes artifacts below a local directory
type FileSink struct {
	rootDir string
}

// NewFileSink creates a filesystem sink, creating the root directory
func NewFileSink(rootDir string) (*FileSink, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{rootDir: rootDir}, nil
}

// Root returns the output directory
func (s *FileSink) Root() string {
	return s.rootDir
}

// Write implements Sink.Write
func (s *FileSink) Write(ctx context.Context, name string, data []byte) error {
	_, span := sinkTracer.Start(ctx, "FileSink.Write",
		trace.WithAttributes(
			attribute.String("sink.name", name),
			attribute.Int("content.size", len(data)),
		),
	)
	defer span.End()

	cleaned, err := cleanName(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid name")
		return err
	}

	target := filepath.Join(s.rootDir, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create directory")
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(target, data, 0644); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write file")
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
