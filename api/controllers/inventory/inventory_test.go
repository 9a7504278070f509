package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger/api/middleware"
	internalinventory "github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

type stubInventoryService struct {
	availability func(ctx context.Context, ref internalinventory.SubjectRef) (*internalinventory.Availability, error)
	adjust       func(ctx context.Context, input internalinventory.AdjustStockInput) (*internalinventory.StockChangeResult, error)
	bulk         func(ctx context.Context, storeID uuid.UUID, updates []internalinventory.BulkUpdate) (*internalinventory.BulkResult, error)
	lowStock     func(ctx context.Context, storeID uuid.UUID) ([]internalinventory.LowStockSubject, error)
	movements    func(ctx context.Context, ref internalinventory.SubjectRef, params pagination.Params) (*ledger.MovementList, error)
}

func (s *stubInventoryService) GetAvailableQuantity(ctx context.Context, ref internalinventory.SubjectRef) (*internalinventory.Availability, error) {
	return s.availability(ctx, ref)
}

func (s *stubInventoryService) ReserveForOrder(ctx context.Context, orderID uuid.UUID, items []internalinventory.ReserveItemInput, opts internalinventory.ReserveOptions) (*internalinventory.ReservationOutcome, error) {
	panic("not implemented")
}

func (s *stubInventoryService) ConfirmOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error) {
	panic("not implemented")
}

func (s *stubInventoryService) ReleaseOrderReservations(ctx context.Context, orderID uuid.UUID) (int, error) {
	panic("not implemented")
}

func (s *stubInventoryService) AdjustStock(ctx context.Context, input internalinventory.AdjustStockInput) (*internalinventory.StockChangeResult, error) {
	return s.adjust(ctx, input)
}

func (s *stubInventoryService) BulkAdjustStock(ctx context.Context, storeID uuid.UUID, updates []internalinventory.BulkUpdate) (*internalinventory.BulkResult, error) {
	return s.bulk(ctx, storeID, updates)
}

func (s *stubInventoryService) ListLowStockSubjects(ctx context.Context, storeID uuid.UUID) ([]internalinventory.LowStockSubject, error) {
	return s.lowStock(ctx, storeID)
}

func (s *stubInventoryService) ListMovements(ctx context.Context, ref internalinventory.SubjectRef, params pagination.Params) (*ledger.MovementList, error) {
	return s.movements(ctx, ref, params)
}

func (s *stubInventoryService) ReconcileSubject(ctx context.Context, ref internalinventory.SubjectRef) (*ledger.Reconciliation, error) {
	panic("not implemented")
}

func (s *stubInventoryService) SweepExpiredReservations(ctx context.Context, olderThan time.Duration, limit int) (*internalinventory.SweepResult, error) {
	panic("not implemented")
}

func withSubjectParams(req *http.Request, subjectType, subjectID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("subjectType", subjectType)
	rctx.URLParams.Add("subjectId", subjectID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAvailabilityReturnsSnapshot(t *testing.T) {
	subjectID := uuid.New()
	svc := &stubInventoryService{
		availability: func(ctx context.Context, ref internalinventory.SubjectRef) (*internalinventory.Availability, error) {
			assert.Equal(t, enums.SubjectVariant, ref.Type)
			assert.Equal(t, subjectID, ref.ID)
			return &internalinventory.Availability{SubjectType: ref.Type, SubjectID: ref.ID, OnHand: 10, Reserved: 4, Available: 6}, nil
		},
	}

	req := withSubjectParams(httptest.NewRequest(http.MethodGet, "/", nil), "variant", subjectID.String())
	rec := httptest.NewRecorder()
	Availability(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 6, data["available"])
	assert.EqualValues(t, 4, data["reserved"])
}

func TestAvailabilityRejectsBadPath(t *testing.T) {
	svc := &stubInventoryService{}
	cases := map[string][2]string{
		"unknown type": {"bundle", uuid.NewString()},
		"bad id":       {"product", "not-a-uuid"},
		"nil id":       {"product", uuid.Nil.String()},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			req := withSubjectParams(httptest.NewRequest(http.MethodGet, "/", nil), params[0], params[1])
			rec := httptest.NewRecorder()
			Availability(svc, logger.Nop()).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAvailabilityNotFound(t *testing.T) {
	svc := &stubInventoryService{
		availability: func(ctx context.Context, ref internalinventory.SubjectRef) (*internalinventory.Availability, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		},
	}
	req := withSubjectParams(httptest.NewRequest(http.MethodGet, "/", nil), "product", uuid.NewString())
	rec := httptest.NewRecorder()
	Availability(svc, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMovementsPassesPagination(t *testing.T) {
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), Seq: 7})
	svc := &stubInventoryService{
		movements: func(ctx context.Context, ref internalinventory.SubjectRef, params pagination.Params) (*ledger.MovementList, error) {
			assert.Equal(t, 10, params.Limit)
			assert.Equal(t, cursor, params.Cursor)
			return &ledger.MovementList{NextCursor: "next"}, nil
		},
	}
	req := withSubjectParams(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor="+cursor, nil), "product", uuid.NewString())
	rec := httptest.NewRecorder()
	Movements(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "next", data["next_cursor"])

	for _, query := range []string{"/?limit=1000", "/?cursor=!!"} {
		req = withSubjectParams(httptest.NewRequest(http.MethodGet, query, nil), "product", uuid.NewString())
		rec = httptest.NewRecorder()
		Movements(svc, logger.Nop()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdjustPassesCallerContext(t *testing.T) {
	userID := uuid.New()
	refID := uuid.New()
	var got internalinventory.AdjustStockInput
	svc := &stubInventoryService{
		adjust: func(ctx context.Context, input internalinventory.AdjustStockInput) (*internalinventory.StockChangeResult, error) {
			got = input
			actor := internalinventory.ActorFromContext(ctx)
			require.NotNil(t, actor)
			assert.Equal(t, userID, *actor)
			return &internalinventory.StockChangeResult{PreviousQuantity: 5, NewQuantity: 8, Delta: 3}, nil
		},
	}

	body := `{"quantity":3,"operation":"add","reason":"  restock  ","reference_id":"` + refID.String() + `","reference_type":"return"}`
	req := withSubjectParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "product", uuid.NewString())
	ctx := middleware.WithIdentity(req.Context(), userID, enums.MemberRoleStaff, nil)
	req = req.WithContext(internalinventory.WithActor(ctx, userID))
	rec := httptest.NewRecorder()
	Adjust(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.StockOperationAdd, got.Operation)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, "restock", got.Reason)
	require.NotNil(t, got.ReferenceID)
	assert.Equal(t, refID, *got.ReferenceID)
	require.NotNil(t, got.ReferenceType)
	assert.Equal(t, enums.StockReferenceReturn, *got.ReferenceType)
}

func TestAdjustValidation(t *testing.T) {
	svc := &stubInventoryService{}
	cases := map[string]string{
		"unknown operation":  `{"quantity":1,"operation":"multiply","reason":"x"}`,
		"negative quantity":  `{"quantity":-1,"operation":"add","reason":"x"}`,
		"quantity too large": `{"quantity":2147483648,"operation":"add","reason":"x"}`,
		"missing reason":     `{"quantity":1,"operation":"add"}`,
		"unknown field":      `{"quantity":1,"operation":"add","reason":"x","extra":true}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := withSubjectParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "product", uuid.NewString())
			rec := httptest.NewRecorder()
			Adjust(svc, logger.Nop()).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAdjustInsufficientStock(t *testing.T) {
	svc := &stubInventoryService{
		adjust: func(ctx context.Context, input internalinventory.AdjustStockInput) (*internalinventory.StockChangeResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for SKU-1")
		},
	}
	body := `{"quantity":50,"operation":"subtract","reason":"damaged"}`
	req := withSubjectParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "product", uuid.NewString())
	rec := httptest.NewRecorder()
	Adjust(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeEnvelope(t, rec)["error"].(map[string]any)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), errBody["code"])
}

func TestBulkAdjustScopesToActiveStore(t *testing.T) {
	storeID := uuid.New()
	userID := uuid.New()
	svc := &stubInventoryService{
		bulk: func(ctx context.Context, gotStore uuid.UUID, updates []internalinventory.BulkUpdate) (*internalinventory.BulkResult, error) {
			assert.Equal(t, storeID, gotStore)
			require.Len(t, updates, 2)
			assert.Equal(t, "SKU-A", updates[0].SKU)
			return &internalinventory.BulkResult{Succeeded: 1, Failed: 1}, nil
		},
	}

	body := `{"items":[{"sku":"SKU-A","quantity":5,"operation":"set"},{"sku":"SKU-B","quantity":1,"operation":"subtract"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), userID, enums.MemberRoleManager, &storeID))
	rec := httptest.NewRecorder()
	BulkAdjust(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["failed"])
}

func TestBulkAdjustRequiresStore(t *testing.T) {
	svc := &stubInventoryService{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[]}`))
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), enums.MemberRoleOwner, nil))
	rec := httptest.NewRecorder()
	BulkAdjust(svc, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLowStockListsSubjects(t *testing.T) {
	storeID := uuid.New()
	days := 4
	svc := &stubInventoryService{
		lowStock: func(ctx context.Context, gotStore uuid.UUID) ([]internalinventory.LowStockSubject, error) {
			assert.Equal(t, storeID, gotStore)
			return []internalinventory.LowStockSubject{{SKU: "SKU-1", CurrentStock: 2, Threshold: 5, EstimatedDaysUntilStockout: &days}}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), enums.MemberRoleViewer, &storeID))
	rec := httptest.NewRecorder()
	LowStock(svc, logger.Nop()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	subjects := data["subjects"].([]any)
	require.Len(t, subjects, 1)
	assert.EqualValues(t, 4, subjects[0].(map[string]any)["estimated_days_until_stockout"])
}

func TestHandlersRejectMissingService(t *testing.T) {
	req := withSubjectParams(httptest.NewRequest(http.MethodGet, "/", nil), "product", uuid.NewString())
	rec := httptest.NewRecorder()
	Availability(nil, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
