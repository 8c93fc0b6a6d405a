package system

import "context"

// Service represents a lifecycle-managed component. Background workers
// implement it so the manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService occupies a name in the manager without doing any work.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string { return s.ServiceName }
func (s NoopService) Start(ctx context.Context) error { return nil }
func (s NoopService) Stop(ctx context.Context) error { return nil }
