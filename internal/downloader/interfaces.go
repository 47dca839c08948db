package downloader

import (
	"context"

	"serialarr/internal/notify"
	"serialarr/pkg/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

// Compiler bundles a fully downloaded work into a single output file
type Compiler interface {
	CompileFullWork(workID int64) (string, error)
}

// Notifier dispatches work events to the configured channels
type Notifier interface {
	Dispatch(ctx context.Context, work *models.Work, payload notify.Payload) error
}
