// Package pharmacy owns medicine stock. Quantities only move through the Ledger,
// and no path through it can leave quantity_on_hand below zero.
package pharmacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
)

var ErrForbidden = apperr.New(apperr.Forbidden, "forbidden", "only administrators may restock medicines")

type Ledger struct {
	repo    Repository
	tx      TxRunner
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewLedger(repo Repository, tx TxRunner, log *zap.Logger, m *metrics.Collector) *Ledger {
	return &Ledger{repo: repo, tx: tx, log: log, metrics: m}
}

type demand struct {
	id  uuid.UUID
	qty int
}

// aggregate sums the quantity per medicine, keeping first-seen order.
func aggregate(lines []Line) ([]demand, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	index := make(map[uuid.UUID]int, len(lines))
	out := make([]demand, 0, len(lines))
	for i, line := range lines {
		if line.MedicineID == uuid.Nil {
			return nil, apperr.Validationf("medicines[%d]: medicine_id is required", i)
		}
		if line.Quantity <= 0 {
			return nil, apperr.Validationf("medicines[%d]: quantity must be greater than zero", i)
		}
		if at, ok := index[line.MedicineID]; ok {
			out[at].qty += line.Quantity
			continue
		}
		index[line.MedicineID] = len(out)
		out = append(out, demand{id: line.MedicineID, qty: line.Quantity})
	}
	return out, nil
}

func demandIDs(demands []demand) []uuid.UUID {
	ids := make([]uuid.UUID, len(demands))
	for i, d := range demands {
		ids[i] = d.id
	}
	return ids
}

func evaluate(demands []demand, meds []Medicine) ([]LineCheck, []uuid.UUID) {
	byID := make(map[uuid.UUID]Medicine, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}

	checks := make([]LineCheck, 0, len(demands))
	var missing []uuid.UUID
	for _, d := range demands {
		m, ok := byID[d.id]
		if !ok {
			missing = append(missing, d.id)
			checks = append(checks, LineCheck{MedicineID: d.id, Requested: d.qty, Reason: "medicine not found"})
			continue
		}

		c := LineCheck{
			MedicineID: d.id,
			Name:       m.Name,
			Requested:  d.qty,
			OnHand:     m.QuantityOnHand,
			Available:  m.QuantityOnHand >= d.qty,
		}
		if !c.Available {
			c.Reason = shortageReason(d.qty, m.QuantityOnHand)
		}
		checks = append(checks, c)
	}
	return checks, missing
}

// CheckAvailability reports, per medicine, whether the requested quantity is on hand.
// It takes no locks and changes nothing.
func (l *Ledger) CheckAvailability(ctx context.Context, lines []Line) ([]LineCheck, error) {
	demands, err := aggregate(lines)
	if err != nil {
		return nil, err
	}

	meds, err := l.repo.GetMedicines(ctx, demandIDs(demands))
	if err != nil {
		return nil, fmt.Errorf("load medicines: %w", err)
	}

	checks, _ := evaluate(demands, meds)
	return checks, nil
}

// Reserve locks the medicines named by lines inside the caller's transaction and fails
// unless every one of them covers its requested quantity. All shortages are reported
// together. The locked rows are returned by id, carrying the prices to snapshot.
func (l *Ledger) Reserve(ctx context.Context, lines []Line) (map[uuid.UUID]Medicine, error) {
	demands, err := aggregate(lines)
	if err != nil {
		return nil, err
	}

	meds, err := l.repo.LockMedicines(ctx, demandIDs(demands))
	if err != nil {
		return nil, fmt.Errorf("lock medicines: %w", err)
	}

	checks, missing := evaluate(demands, meds)
	if len(missing) > 0 {
		return nil, &MedicineNotFoundError{IDs: missing}
	}

	var short []LineCheck
	for _, c := range checks {
		if !c.Available {
			short = append(short, c)
		}
	}
	if len(short) > 0 {
		l.metrics.StockRejected()
		return nil, &InsufficientStockError{Lines: short}
	}

	locked := make(map[uuid.UUID]Medicine, len(meds))
	for _, m := range meds {
		locked[m.ID] = m
	}
	return locked, nil
}

// Decrement removes qty units of a medicine, failing instead of going negative.
func (l *Ledger) Decrement(ctx context.Context, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	return l.tx.InTx(ctx, func(ctx context.Context) error {
		ok, err := l.repo.DecrementStock(ctx, id, qty)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if ok {
			return nil
		}

		meds, err := l.repo.GetMedicines(ctx, []uuid.UUID{id})
		if err != nil {
			return fmt.Errorf("load medicine: %w", err)
		}
		if len(meds) == 0 {
			return ErrMedicineNotFound
		}
		l.metrics.StockRejected()
		return &InsufficientStockError{Lines: []LineCheck{{
			MedicineID: id,
			Name:       meds[0].Name,
			Requested:  qty,
			OnHand:     meds[0].QuantityOnHand,
			Reason:     shortageReason(qty, meds[0].QuantityOnHand),
		}}}
	})
}

// Restock adds qty units. Administrators only.
func (l *Ledger) Restock(ctx context.Context, who actor.Actor, id uuid.UUID, qty int) (*Medicine, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var med *Medicine
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		med, err = l.repo.IncrementStock(ctx, id, qty)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("medicine restocked",
		zap.String("medicine_id", id.String()),
		zap.Int("added", qty),
		zap.Int("on_hand", med.QuantityOnHand),
	)
	return med, nil
}
