package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
)

func (s *Store) CreateMedicalRecord(ctx context.Context, rec *clinical.MedicalRecord) error {
	s.write(ctx, func(st *state) { st.records[rec.ID] = *rec })
	return nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *clinical.Invoice) error {
	s.write(ctx, func(st *state) {
		for i := range inv.Lines {
			st.nextLineID++
			inv.Lines[i].ID = st.nextLineID
		}
		stored := *inv
		stored.Lines = append([]clinical.LineItem(nil), inv.Lines...)
		st.invoices[inv.ID] = stored
	})
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*clinical.Invoice, error) {
	var (
		inv clinical.Invoice
		ok  bool
	)
	s.view(ctx, func(st *state) { inv, ok = st.invoices[id] })
	if !ok {
		return nil, clinical.ErrInvoiceNotFound
	}
	inv.Lines = append([]clinical.LineItem{}, inv.Lines...)
	return &inv, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, id uuid.UUID, at time.Time) (*clinical.Invoice, error) {
	var (
		out *clinical.Invoice
		err error
	)
	s.write(ctx, func(st *state) {
		inv, ok := st.invoices[id]
		switch {
		case !ok:
			err = clinical.ErrInvoiceNotFound
		case inv.Status == clinical.InvoicePaid:
			err = clinical.ErrInvoiceAlreadyPaid
		default:
			inv.Status = clinical.InvoicePaid
			inv.PaidAt = &at
			st.invoices[id] = inv
			out = &inv
		}
	})
	return out, err
}
