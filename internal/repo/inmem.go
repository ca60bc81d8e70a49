package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/debrix/internal/data"
)

type InMemoryTransferRepo struct {
	mu        sync.RWMutex
	transfers data.Transfers
}

func NewInMemoryTransferRepo() *InMemoryTransferRepo {
	return &InMemoryTransferRepo{
		transfers: make(data.Transfers, 0),
	}
}

func (r *InMemoryTransferRepo) List(ctx context.Context) (data.Transfers, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transfers.Clone(), nil
}

func (r *InMemoryTransferRepo) Get(ctx context.Context, id string) (*data.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, err := r.findByID(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (r *InMemoryTransferRepo) Add(ctx context.Context, t *data.Transfer) (*data.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.transfers = append(r.transfers, t)
	return t.Clone(), nil
}

func (r *InMemoryTransferRepo) SetProgress(ctx context.Context, id string, bytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.findByID(id)
	if err != nil {
		return err
	}
	t.Bytes = bytes
	t.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryTransferRepo) SetStatus(ctx context.Context, id string, status data.TransferStatus, bytes int64, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.findByID(id)
	if err != nil {
		return err
	}
	t.Status = status
	t.Bytes = bytes
	t.Error = errMsg
	t.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryTransferRepo) findByID(id string) (*data.Transfer, error) {
	for _, t := range r.transfers {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, data.ErrNotFound
}
