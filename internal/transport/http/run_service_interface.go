package http

import (
	"context"

	"trendscli/internal/pipeline"
)

// RunServiceInterface defines the interface for the run service
type RunServiceInterface interface {
	StartRun(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunSnapshot, error)
	GetRun(ctx context.Context, id string) (*pipeline.RunSnapshot, error)
	ListRuns(ctx context.Context) []*pipeline.RunSnapshot
	CancelRun(ctx context.Context, id string) error
}
