package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the only writer of medicine quantities.
type Repository interface {
	// GetMedicines returns the medicines that exist among ids; unknown ids are omitted.
	GetMedicines(ctx context.Context, ids []uuid.UUID) ([]Medicine, error)
	// LockMedicines is GetMedicines with row locks taken in id order. Requires a transaction.
	LockMedicines(ctx context.Context, ids []uuid.UUID) ([]Medicine, error)
	// DecrementStock subtracts qty only if enough is on hand and reports whether it did.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) (*Medicine, error)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
