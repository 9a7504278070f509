package reservations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalinventory "github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

type stubReservationService struct {
	internalinventory.Service
	reserve func(ctx context.Context, orderID uuid.UUID, items []internalinventory.ReserveItemInput, opts internalinventory.ReserveOptions) (*internalinventory.ReservationOutcome, error)
	confirm func(ctx context.Context, orderID uuid.UUID) (int, error)
	release func(ctx context.Context, orderID uuid.UUID) (int, error)
}

func (s *stubReservationService) ReserveForOrder(ctx context.Context, orderID uuid.UUID, items []internalinventory.ReserveItemInput, opts internalinventory.ReserveOptions) (*internalinventory.ReservationOutcome, error) {
	return s.reserve(ctx, orderID, items, opts)
}

func (s *stubReservationService) ConfirmOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error) {
	return s.confirm(ctx, orderID)
}

func (s *stubReservationService) ReleaseOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error) {
	return s.release(ctx, orderID)
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestReserveCreatesReservations(t *testing.T) {
	orderID := uuid.New()
	subjectID := uuid.New()
	svc := &stubReservationService{
		reserve: func(ctx context.Context, gotOrder uuid.UUID, items []internalinventory.ReserveItemInput, opts internalinventory.ReserveOptions) (*internalinventory.ReservationOutcome, error) {
			assert.Equal(t, orderID, gotOrder)
			assert.True(t, opts.AllowPartial)
			require.Len(t, items, 1)
			assert.Equal(t, enums.SubjectVariant, items[0].Subject.Type)
			assert.Equal(t, subjectID, items[0].Subject.ID)
			assert.Equal(t, 2, items[0].Quantity)
			return &internalinventory.ReservationOutcome{
				OrderID:      gotOrder,
				Reservations: []internalinventory.ReservationView{{OrderID: gotOrder, SubjectID: subjectID, Quantity: 2, Status: enums.ReservationStatusReserved}},
			}, nil
		},
	}

	body := `{"items":[{"subject_type":"variant","subject_id":"` + subjectID.String() + `","quantity":2}],"allow_partial":true}`
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), orderID.String())
	rec := httptest.NewRecorder()
	Reserve(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Len(t, data["reservations"], 1)
	assert.Equal(t, false, data["replayed"])
}

func TestReserveReplayReturnsOK(t *testing.T) {
	svc := &stubReservationService{
		reserve: func(ctx context.Context, orderID uuid.UUID, items []internalinventory.ReserveItemInput, opts internalinventory.ReserveOptions) (*internalinventory.ReservationOutcome, error) {
			return &internalinventory.ReservationOutcome{OrderID: orderID, Replayed: true}, nil
		},
	}
	body := `{"items":[{"subject_type":"product","subject_id":"` + uuid.NewString() + `","quantity":1}]}`
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.NewString())
	rec := httptest.NewRecorder()
	Reserve(svc, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReserveInsufficientStockCarriesItemErrors(t *testing.T) {
	svc := &stubReservationService{
		reserve: func(ctx context.Context, orderID uuid.UUID, items []internalinventory.ReserveItemInput, opts internalinventory.ReserveOptions) (*internalinventory.ReservationOutcome, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "cannot complete order, insufficient stock for SKU-X").
				WithDetails(map[string]any{"items": []internalinventory.ItemError{{Index: 0, SKU: "SKU-X", Requested: 1, Available: 0, Code: pkgerrors.CodeInsufficientStock}}})
		},
	}
	body := `{"items":[{"subject_type":"product","subject_id":"` + uuid.NewString() + `","quantity":1}]}`
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.NewString())
	rec := httptest.NewRecorder()
	Reserve(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "cannot complete order, insufficient stock for SKU-X", errBody["message"])
	details := errBody["details"].(map[string]any)
	assert.Len(t, details["items"], 1)
}

func TestReserveValidation(t *testing.T) {
	svc := &stubReservationService{}
	cases := map[string]struct {
		orderID string
		body    string
	}{
		"bad order id":  {"nope", `{"items":[{"subject_type":"product","subject_id":"` + uuid.NewString() + `","quantity":1}]}`},
		"empty items":   {uuid.NewString(), `{"items":[]}`},
		"zero quantity": {uuid.NewString(), `{"items":[{"subject_type":"product","subject_id":"` + uuid.NewString() + `","quantity":0}]}`},
		"huge quantity": {uuid.NewString(), `{"items":[{"subject_type":"product","subject_id":"` + uuid.NewString() + `","quantity":2147483648}]}`},
		"bad type":      {uuid.NewString(), `{"items":[{"subject_type":"bundle","subject_id":"` + uuid.NewString() + `","quantity":1}]}`},
		"bad subject":   {uuid.NewString(), `{"items":[{"subject_type":"product","subject_id":"x","quantity":1}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)), tc.orderID)
			rec := httptest.NewRecorder()
			Reserve(svc, logger.Nop()).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestConfirmAndReleaseReturnCounts(t *testing.T) {
	orderID := uuid.New()
	svc := &stubReservationService{
		confirm: func(ctx context.Context, got uuid.UUID) (int, error) {
			assert.Equal(t, orderID, got)
			return 2, nil
		},
		release: func(ctx context.Context, got uuid.UUID) (int, error) {
			return 0, nil
		},
	}

	rec := httptest.NewRecorder()
	Confirm(svc, logger.Nop()).ServeHTTP(rec, withOrderParam(httptest.NewRequest(http.MethodPost, "/", nil), orderID.String()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["data"].(map[string]any)["count"])

	rec = httptest.NewRecorder()
	Release(svc, logger.Nop()).ServeHTTP(rec, withOrderParam(httptest.NewRequest(http.MethodPost, "/", nil), orderID.String()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["data"].(map[string]any)["count"])
}

func TestConfirmSurfacesDependencyErrors(t *testing.T) {
	svc := &stubReservationService{
		confirm: func(ctx context.Context, orderID uuid.UUID) (int, error) {
			return 0, pkgerrors.New(pkgerrors.CodeDependency, "lock wait exceeded")
		},
	}
	rec := httptest.NewRecorder()
	Confirm(svc, logger.Nop()).ServeHTTP(rec, withOrderParam(httptest.NewRequest(http.MethodPost, "/", nil), uuid.NewString()))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
