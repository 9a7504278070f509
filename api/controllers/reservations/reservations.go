package reservations

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/api/validators"
	internalinventory "github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

type reserveItemRequest struct {
	SubjectType string `json:"subject_type" validate:"required,subject_type"`
	SubjectID   string `json:"subject_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity" validate:"gt=0,max=2147483647"`
}

type reserveRequest struct {
	Items        []reserveItemRequest `json:"items" validate:"required,min=1,dive"`
	AllowPartial bool                 `json:"allow_partial"`
}

type resolutionResponse struct {
	OrderID uuid.UUID `json:"order_id"`
	Count   int       `json:"count"`
}

func (req reserveRequest) toInputs() ([]internalinventory.ReserveItemInput, error) {
	items := make([]internalinventory.ReserveItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		subjectType, err := enums.ParseSubjectType(strings.ToLower(strings.TrimSpace(item.SubjectType)))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subject_type")
		}
		subjectID, err := uuid.Parse(strings.TrimSpace(item.SubjectID))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subject_id")
		}
		items = append(items, internalinventory.ReserveItemInput{
			Subject:  internalinventory.SubjectRef{Type: subjectType, ID: subjectID},
			Quantity: item.Quantity,
		})
	}
	return items, nil
}

// Reserve holds stock for every item of an order. A repeated call for an order
// that already holds reservations returns the existing rows.
func Reserve(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reserveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := req.toInputs()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.ReserveForOrder(r.Context(), orderID, items, internalinventory.ReserveOptions{AllowPartial: req.AllowPartial})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if outcome.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, outcome)
	}
}

// Confirm converts the order's reservations into sales.
func Confirm(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(svc, logg, func(r *http.Request, orderID uuid.UUID) (int, error) {
		return svc.ConfirmOrderReservations(r.Context(), orderID)
	})
}

// Release returns the order's reserved quantity to availability.
func Release(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(svc, logg, func(r *http.Request, orderID uuid.UUID) (int, error) {
		return svc.ReleaseOrderReservations(r.Context(), orderID)
	})
}

func resolve(svc internalinventory.Service, logg *logger.Logger, fn func(*http.Request, uuid.UUID) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := fn(r, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolutionResponse{OrderID: orderID, Count: count})
	}
}
