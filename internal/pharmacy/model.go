package pharmacy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

type Medicine struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Unit           string    `json:"unit"`
	QuantityOnHand int       `json:"quantity_on_hand"`
	UnitPrice      int64     `json:"unit_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Line is one requested medicine of a prescription.
type Line struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
	Note       string    `json:"note,omitempty"`
}

// LineCheck is the stock verdict for one medicine. Requested is the total over
// every line naming that medicine.
type LineCheck struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Name       string    `json:"name,omitempty"`
	Requested  int       `json:"requested"`
	OnHand     int       `json:"on_hand"`
	Available  bool      `json:"available"`
	Reason     string    `json:"reason,omitempty"`
}

var (
	ErrMedicineNotFound = apperr.New(apperr.NotFound, "medicine_not_found", "medicine not found")
	ErrInvalidQuantity  = apperr.New(apperr.Validation, "invalid_quantity", "quantity must be greater than zero")
	ErrNoLines          = apperr.New(apperr.Validation, "no_medicines", "at least one medicine line is required")
)

func shortageReason(requested, onHand int) string {
	return fmt.Sprintf("insufficient stock: requested %d, have %d", requested, onHand)
}

// InsufficientStockError lists every medicine that cannot cover its requested quantity.
type InsufficientStockError struct {
	Lines []LineCheck
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		name := l.Name
		if name == "" {
			name = l.MedicineID.String()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, l.Reason))
	}
	return strings.Join(parts, "; ")
}

func (e *InsufficientStockError) ErrorKind() apperr.Kind { return apperr.Conflict }
func (e *InsufficientStockError) ErrorCode() string      { return "insufficient_stock" }

// MedicineNotFoundError names the unknown medicines of a request.
type MedicineNotFoundError struct {
	IDs []uuid.UUID
}

func (e *MedicineNotFoundError) Error() string {
	ids := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		ids = append(ids, id.String())
	}
	return "medicine not found: " + strings.Join(ids, ", ")
}

func (e *MedicineNotFoundError) Is(target error) bool { return target == ErrMedicineNotFound }

func (e *MedicineNotFoundError) ErrorKind() apperr.Kind { return apperr.NotFound }
func (e *MedicineNotFoundError) ErrorCode() string      { return ErrMedicineNotFound.Code }
