package repo

import (
	"context"

	"github.com/tinoosan/debrix/internal/data"
)

type TransferRepo interface {
	TransferReader
	TransferWriter
}

type TransferReader interface {
	List(ctx context.Context) (data.Transfers, error)
	Get(ctx context.Context, id string) (*data.Transfer, error)
}

type TransferWriter interface {
	Add(ctx context.Context, t *data.Transfer) (*data.Transfer, error)
	SetProgress(ctx context.Context, id string, bytes int64) error
	SetStatus(ctx context.Context, id string, status data.TransferStatus, bytes int64, errMsg string) error
}
