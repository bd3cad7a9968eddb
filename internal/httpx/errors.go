package httpx

import (
	"errors"
	"net/http"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/reservation"
	"github.com/kurniawanc/pos-ledger/internal/rma"
	"github.com/kurniawanc/pos-ledger/internal/transaction"
)

// statusFor maps domain errors onto HTTP codes. Domain errors reach this
// layer unmodified; messaging toward the user happens here and nowhere
// deeper.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAlreadyReserved),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrUnitUnavailable),
		errors.Is(err, ledger.ErrSerialExists),
		errors.Is(err, rma.ErrInvalidState),
		errors.Is(err, transaction.ErrInvalidState),
		errors.Is(err, transaction.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrInsufficientStock),
		errors.Is(err, rma.ErrUnitNotSold):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transaction.ErrValidation),
		errors.Is(err, rma.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrProductNotFound),
		errors.Is(err, ledger.ErrUnitNotFound),
		errors.Is(err, transaction.ErrNotFound),
		errors.Is(err, rma.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
