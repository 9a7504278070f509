package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultBulkReason = "bulk adjustment"

// BulkUpdate is one row of a bulk correction. The subject is named either by
// SubjectID (with SubjectType) or by SKU within the store.
type BulkUpdate struct {
	SubjectType   enums.SubjectType         `json:"subject_type,omitempty"`
	SubjectID     *uuid.UUID                `json:"subject_id,omitempty"`
	SKU           string                    `json:"sku,omitempty"`
	Quantity      int                       `json:"quantity"`
	Operation     enums.StockOperation      `json:"operation"`
	Reason        string                    `json:"reason,omitempty"`
	ReferenceType *enums.StockReferenceType `json:"reference_type,omitempty"`
}

// BulkItemError records why one row was not applied.
type BulkItemError struct {
	Index     int            `json:"index"`
	SKU       string         `json:"sku,omitempty"`
	SubjectID *uuid.UUID     `json:"subject_id,omitempty"`
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
}

// BulkItemResult is an applied row.
type BulkItemResult struct {
	Index  int               `json:"index"`
	SKU    string            `json:"sku,omitempty"`
	Result StockChangeResult `json:"result"`
}

// BulkResult summarises a bulk correction. Rows are independent: a failed row
// never undoes or blocks another.
type BulkResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Errors    []BulkItemError  `json:"errors"`
	Results   []BulkItemResult `json:"results"`
}

func (s *service) BulkAdjustStock(ctx context.Context, storeID uuid.UUID, updates []BulkUpdate) (*BulkResult, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one update is required")
	}
	if len(updates) > s.bulkMax {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d updates per batch", s.bulkMax))
	}

	ctx = s.logg.WithStoreID(ctx, storeID.String())
	result := &BulkResult{
		Errors:  []BulkItemError{},
		Results: []BulkItemResult{},
	}
	for i, update := range updates {
		if err := ctx.Err(); err != nil {
			result.fail(i, update, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "batch canceled"))
			continue
		}

		ref, err := s.resolveBulkSubject(ctx, storeID, update)
		if err != nil {
			result.fail(i, update, nil, err)
			continue
		}

		reason := strings.TrimSpace(update.Reason)
		if reason == "" {
			reason = defaultBulkReason
		}
		refType := enums.StockReferenceImport
		if update.ReferenceType != nil {
			refType = *update.ReferenceType
		}

		change, err := s.AdjustStock(ctx, AdjustStockInput{
			Subject:       ref,
			Quantity:      update.Quantity,
			Operation:     update.Operation,
			Reason:        reason,
			ReferenceType: &refType,
		})
		if err != nil {
			result.fail(i, update, &ref.ID, err)
			continue
		}
		result.Succeeded++
		result.Results = append(result.Results, BulkItemResult{Index: i, SKU: update.SKU, Result: *change})
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}), "bulk stock adjustment finished")
	return result, nil
}

func (r *BulkResult) fail(index int, update BulkUpdate, subjectID *uuid.UUID, err error) {
	if subjectID == nil {
		subjectID = update.SubjectID
	}
	item := BulkItemError{
		Index:     index,
		SKU:       update.SKU,
		SubjectID: subjectID,
		Code:      pkgerrors.CodeInternal,
		Message:   pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage,
	}
	if typed := pkgerrors.As(err); typed != nil {
		item.Code = typed.Code()
		item.Message = typed.Message()
	}
	r.Failed++
	r.Errors = append(r.Errors, item)
}

// resolveBulkSubject finds the subject for a row and checks it belongs to the store.
// SKU lookups prefer a variant over a product with the same SKU.
func (s *service) resolveBulkSubject(ctx context.Context, storeID uuid.UUID, update BulkUpdate) (SubjectRef, error) {
	db := s.tx.DB()
	if update.SubjectID != nil {
		subjectType := update.SubjectType
		if subjectType == "" {
			subjectType = enums.SubjectProduct
		}
		subject, err := NewSubject(SubjectRef{Type: subjectType, ID: *update.SubjectID})
		if err != nil {
			return SubjectRef{}, err
		}
		info, err := subject.Describe(ctx, db)
		if err != nil {
			return SubjectRef{}, err
		}
		if info.StoreID != storeID {
			return SubjectRef{}, pkgerrors.New(pkgerrors.CodeNotFound, string(subjectType)+" not found")
		}
		return info.Ref, nil
	}

	sku := strings.TrimSpace(update.SKU)
	if sku == "" {
		return SubjectRef{}, pkgerrors.New(pkgerrors.CodeValidation, "subject_id or sku is required")
	}

	if update.SubjectType != enums.SubjectProduct {
		var variant models.ProductVariant
		err := db.WithContext(ctx).
			Joins("JOIN products ON products.id = product_variants.product_id").
			Where("products.store_id = ? AND product_variants.sku = ?", storeID, sku).
			Take(&variant).Error
		if err == nil {
			return SubjectRef{Type: enums.SubjectVariant, ID: variant.ID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return SubjectRef{}, pkgerrors.ClassifyStore(err, "lookup variant by sku")
		}
	}
	if update.SubjectType != enums.SubjectVariant {
		var product models.Product
		err := db.WithContext(ctx).
			Where("store_id = ? AND sku = ?", storeID, sku).
			Take(&product).Error
		if err == nil {
			return SubjectRef{Type: enums.SubjectProduct, ID: product.ID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return SubjectRef{}, pkgerrors.ClassifyStore(err, "lookup product by sku")
		}
	}
	return SubjectRef{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no stock record with sku %q", sku))
}
