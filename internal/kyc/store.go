package kyc

import "context"

// MutateFunc receives the current case and returns the case to persist. Returning an
// error aborts the write.
type MutateFunc func(current Case) (Case, error)

// Store persists cases. Mutations run atomically per case: implementations must make
// the read, the callback and the write appear as one step to concurrent callers.
type Store interface {
	// Get returns the case for the pair or ErrNotFound.
	Get(ctx context.Context, subjectID string, role Role) (Case, error)
	// GetByID returns the case with the current attempt id or ErrNotFound.
	GetByID(ctx context.Context, id string) (Case, error)
	// MutateSubject loads the pair's case, or a NONE case when absent, and stores fn's result.
	MutateSubject(ctx context.Context, subjectID string, role Role, fn MutateFunc) (Case, error)
	// MutateByID loads the case by id (ErrNotFound when absent) and stores fn's result.
	MutateByID(ctx context.Context, id string, fn MutateFunc) (Case, error)
	// List returns cases with status, oldest submission first.
	List(ctx context.Context, status Status, limit int) ([]Case, error)
	// Count returns the number of cases with status.
	Count(ctx context.Context, status Status) (int, error)
}
