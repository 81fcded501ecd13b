package pharmacy_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/db/dbtest"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

func TestPg_ConcurrentDecrementStopsAtZero(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	ledger := pharmacy.NewLedger(pharmacy.NewPgRepository(pool), db.NewTxManager(pool), zap.NewNop(), metrics.NewCollector("test"))

	id := uuid.New()
	if _, err := pool.Exec(ctx,
		`INSERT INTO medicines (id, name, unit, quantity_on_hand, unit_price) VALUES ($1, 'Cetirizine', 'tablet', 7, 1500)`, id); err != nil {
		t.Fatalf("insert medicine: %v", err)
	}

	var (
		wg       sync.WaitGroup
		ok, shrt atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Decrement(ctx, id, 1)
			var short *pharmacy.InsufficientStockError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &short):
				shrt.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 7 || shrt.Load() != 3 {
		t.Errorf("expected 7 decrements and 3 shortages, got %d and %d", ok.Load(), shrt.Load())
	}
	var onHand int
	if err := pool.QueryRow(ctx, `SELECT quantity_on_hand FROM medicines WHERE id = $1`, id).Scan(&onHand); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if onHand != 0 {
		t.Errorf("expected 0 on hand, got %d", onHand)
	}

	if err := ledger.Decrement(ctx, uuid.New(), 1); !errors.Is(err, pharmacy.ErrMedicineNotFound) {
		t.Errorf("expected ErrMedicineNotFound, got %v", err)
	}
}
