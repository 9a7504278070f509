package inventory

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/middleware"
	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/api/validators"
	internalinventory "github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const maxReasonLength = 500

type adjustRequest struct {
	Quantity      int     `json:"quantity" validate:"gte=0,max=2147483647"`
	Operation     string  `json:"operation" validate:"required,stock_op"`
	Reason        string  `json:"reason" validate:"required,max=500"`
	ReferenceID   *string `json:"reference_id,omitempty" validate:"omitempty,uuid"`
	ReferenceType *string `json:"reference_type,omitempty" validate:"omitempty,reference_type"`
}

type bulkAdjustRequest struct {
	Items []internalinventory.BulkUpdate `json:"items" validate:"required,min=1"`
}

func serviceUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable")
}

func subjectFromPath(r *http.Request) (internalinventory.SubjectRef, error) {
	subjectType, err := validators.URLParamSubjectType(r, "subjectType")
	if err != nil {
		return internalinventory.SubjectRef{}, err
	}
	subjectID, err := validators.URLParamUUID(r, "subjectId")
	if err != nil {
		return internalinventory.SubjectRef{}, err
	}
	return internalinventory.SubjectRef{Type: subjectType, ID: subjectID}, nil
}

// Availability returns on-hand, reserved and available quantities for one subject.
func Availability(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable())
			return
		}
		ref, err := subjectFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := svc.GetAvailableQuantity(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

// Movements pages through the ledger of one subject, newest first.
func Movements(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable())
			return
		}
		ref, err := subjectFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListMovements(r.Context(), ref, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Reconcile compares the replayed ledger against the stored quantity.
func Reconcile(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable())
			return
		}
		ref, err := subjectFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ReconcileSubject(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Adjust applies a direct add, subtract or set to one subject.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable())
			return
		}
		ref, err := subjectFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toInput(ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AdjustStock(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func (req adjustRequest) toInput(ref internalinventory.SubjectRef) (internalinventory.AdjustStockInput, error) {
	op, err := enums.ParseStockOperation(req.Operation)
	if err != nil {
		return internalinventory.AdjustStockInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid operation")
	}
	input := internalinventory.AdjustStockInput{
		Subject:   ref,
		Quantity:  req.Quantity,
		Operation: op,
		Reason:    validators.SanitizeString(req.Reason, maxReasonLength),
	}
	if req.ReferenceID != nil {
		id, err := uuid.Parse(strings.TrimSpace(*req.ReferenceID))
		if err != nil {
			return internalinventory.AdjustStockInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference_id")
		}
		input.ReferenceID = &id
	}
	if req.ReferenceType != nil {
		refType, err := enums.ParseStockReferenceType(*req.ReferenceType)
		if err != nil {
			return internalinventory.AdjustStockInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference_type")
		}
		input.ReferenceType = &refType
	}
	return input, nil
}

// BulkAdjust applies a batch of corrections to the caller's active store.
// Rows are independent, so the response is 200 even when some rows failed.
func BulkAdjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable())
			return
		}
		storeID, ok := middleware.StoreIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "active store required"))
			return
		}

		var req bulkAdjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BulkAdjustStock(r.Context(), storeID, req.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LowStock lists the active store's subjects at or under their threshold.
func LowStock(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable())
			return
		}
		storeID, ok := middleware.StoreIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "active store required"))
			return
		}
		subjects, err := svc.ListLowStockSubjects(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"subjects": subjects})
	}
}
