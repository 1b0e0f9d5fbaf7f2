// Package repository keeps job records and finished results in memory.
package repository

import (
	"context"

	"github.com/okian/bowlsense/internal/domain/model"
)

// Store provides read/write access to job state and cached results.
type Store interface {
	// PutJob inserts or replaces a job record.
	PutJob(ctx context.Context, job model.Job) error
	// Job returns ErrNotFound if the id is unknown.
	Job(ctx context.Context, id string) (model.Job, error)
	// Jobs returns every record in insertion order.
	Jobs(ctx context.Context) []model.Job

	PutAnalysis(ctx context.Context, id string, a model.Analysis) error
	Analysis(ctx context.Context, id string) (model.Analysis, error)

	PutMultiAnalysis(ctx context.Context, id string, a model.MultiAnalysis) error
	MultiAnalysis(ctx context.Context, id string) (model.MultiAnalysis, error)

	// Count returns the number of cached results of both kinds.
	Count(ctx context.Context) int
}
