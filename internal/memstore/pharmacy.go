package memstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

func (s *Store) GetMedicines(ctx context.Context, ids []uuid.UUID) ([]pharmacy.Medicine, error) {
	var out []pharmacy.Medicine
	s.view(ctx, func(st *state) {
		seen := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			if m, ok := st.medicines[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}

func (s *Store) LockMedicines(ctx context.Context, ids []uuid.UUID) ([]pharmacy.Medicine, error) {
	return s.GetMedicines(ctx, ids)
}

func (s *Store) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	var done bool
	s.write(ctx, func(st *state) {
		m, ok := st.medicines[id]
		if !ok || m.QuantityOnHand < qty {
			return
		}
		m.QuantityOnHand -= qty
		m.UpdatedAt = time.Now()
		st.medicines[id] = m
		done = true
	})
	return done, nil
}

func (s *Store) IncrementStock(ctx context.Context, id uuid.UUID, qty int) (*pharmacy.Medicine, error) {
	var (
		out *pharmacy.Medicine
		err error
	)
	s.write(ctx, func(st *state) {
		m, ok := st.medicines[id]
		if !ok {
			err = pharmacy.ErrMedicineNotFound
			return
		}
		m.QuantityOnHand += qty
		m.UpdatedAt = time.Now()
		st.medicines[id] = m
		out = &m
	})
	return out, err
}
