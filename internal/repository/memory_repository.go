package repository

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"momo-payments/internal/domain"
	"momo-payments/internal/errors"
)

// MemoryTransactionRepository keeps transactions in process memory. It is
// used for local runs with STORE_DRIVER=memory and by tests.
type MemoryTransactionRepository struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]*memoryRecord
	byReference map[string]uuid.UUID
	seq         int64
	now         func() time.Time
	logger      *slog.Logger
}

type memoryRecord struct {
	tx  domain.Transaction
	seq int64
}

func NewMemoryTransactionRepository(logger *slog.Logger) *MemoryTransactionRepository {
	return &MemoryTransactionRepository{
		byID:        make(map[uuid.UUID]*memoryRecord),
		byReference: make(map[string]uuid.UUID),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// WithClock replaces the timestamp source.
func (r *MemoryTransactionRepository) WithClock(now func() time.Time) *MemoryTransactionRepository {
	r.now = now
	return r
}

func (r *MemoryTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byReference[tx.Reference]; exists {
		r.logger.Warn("Duplicate transaction reference", "reference", tx.Reference)
		return errors.ErrDuplicateReference
	}
	if _, exists := r.byID[tx.ID]; exists {
		return errors.NewAppError(errors.InternalError, "transaction id already exists")
	}

	now := r.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	r.seq++
	r.byID[tx.ID] = &memoryRecord{tx: copyTransaction(tx), seq: r.seq}
	r.byReference[tx.Reference] = tx.ID

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "reference", tx.Reference)
	return nil
}

func (r *MemoryTransactionRepository) UpdateByID(ctx context.Context, id uuid.UUID, update domain.TransactionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return errors.ErrTransactionNotFound
	}
	stored := &record.tx

	if stored.Status != domain.StatusPending {
		return errors.ErrTransactionNotPending
	}
	if update.Status != nil && !stored.Status.CanTransitionTo(*update.Status) {
		return errors.ErrTransactionNotPending.WithDetails("invalid target status " + string(*update.Status))
	}
	if update.ProviderTransactionID != nil && stored.ProviderTransactionID != nil {
		return errors.ErrTransactionNotPending.WithDetails("provider transaction id already set")
	}

	if update.Status != nil {
		stored.Status = *update.Status
	}
	if update.ProviderTransactionID != nil {
		id := *update.ProviderTransactionID
		stored.ProviderTransactionID = &id
	}
	if len(update.Metadata) > 0 {
		if stored.Metadata == nil {
			stored.Metadata = make(map[string]any, len(update.Metadata))
		}
		maps.Copy(stored.Metadata, update.Metadata)
	}
	stored.UpdatedAt = r.now()

	r.logger.Info("Transaction updated", "transaction_id", id)
	return nil
}

func (r *MemoryTransactionRepository) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[reference]
	if !ok {
		return nil, nil
	}
	tx := copyTransaction(&r.byID[id].tx)
	return &tx, nil
}

func (r *MemoryTransactionRepository) FindByMerchant(ctx context.Context, merchantID string, limit int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*memoryRecord, 0)
	for _, record := range r.byID {
		if record.tx.MerchantID == merchantID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].tx.CreatedAt.Equal(records[j].tx.CreatedAt) {
			return records[i].tx.CreatedAt.After(records[j].tx.CreatedAt)
		}
		return records[i].seq > records[j].seq
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	transactions := make([]*domain.Transaction, 0, len(records))
	for _, record := range records {
		tx := copyTransaction(&record.tx)
		transactions = append(transactions, &tx)
	}
	return transactions, nil
}

func (r *MemoryTransactionRepository) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored transactions.
func (r *MemoryTransactionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func copyTransaction(tx *domain.Transaction) domain.Transaction {
	c := *tx
	if tx.Metadata != nil {
		c.Metadata = maps.Clone(tx.Metadata)
	}
	if tx.ProviderTransactionID != nil {
		id := *tx.ProviderTransactionID
		c.ProviderTransactionID = &id
	}
	return c
}
