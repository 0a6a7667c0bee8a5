package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	ManifestURI(ctx context.Context, req ResolveRequest) (*Pointer, error)
	Resolve(ctx context.Context, req ResolveRequest) (*Sources, error)
	ListLookups(ctx context.Context, filter LookupFilter, pagination PaginationParams) (*LookupList, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

// level keeps the expected "no source" outcome out of warning logs.
func level(err error) slog.Level {
	if err == nil || errors.Is(err, ErrNoSource) {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func (m *loggingMiddleware) ManifestURI(ctx context.Context, req ResolveRequest) (*Pointer, error) {
	start := time.Now()
	p, err := m.next.ManifestURI(ctx, req)
	attrs := []any{
		"code_hash", req.CodeHash,
		"network", req.Network,
		"verifier", req.Verifier,
		"duration", time.Since(start),
	}
	if p != nil {
		attrs = append(attrs, "manifest_uri", p.ManifestURI, "block", p.BlockSeqNo)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	m.logger.Log(ctx, level(err), "ManifestURI", attrs...)
	return p, err
}

func (m *loggingMiddleware) Resolve(ctx context.Context, req ResolveRequest) (*Sources, error) {
	start := time.Now()
	src, err := m.next.Resolve(ctx, req)
	attrs := []any{
		"code_hash", req.CodeHash,
		"network", req.Network,
		"verifier", req.Verifier,
		"duration", time.Since(start),
	}
	if src != nil {
		attrs = append(attrs, "files", len(src.Files), "compiler", src.Compiler)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	m.logger.Log(ctx, level(err), "Resolve", attrs...)
	return src, err
}

func (m *loggingMiddleware) ListLookups(ctx context.Context, filter LookupFilter, pagination PaginationParams) (*LookupList, error) {
	start := time.Now()
	result, err := m.next.ListLookups(ctx, filter, pagination)
	m.logger.Debug("ListLookups",
		"status", filter.Status,
		"network", filter.Network,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}
