package validators

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// URLParamUUID reads a chi path parameter as a uuid.
func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" must be a valid uuid").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// URLParamSubjectType reads a chi path parameter naming a stock subject kind.
func URLParamSubjectType(r *http.Request, key string) (enums.SubjectType, error) {
	raw := strings.ToLower(strings.TrimSpace(chi.URLParam(r, key)))
	st, err := enums.ParseSubjectType(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, key+" must be product or variant").WithDetails(map[string]any{"field": key})
	}
	return st, nil
}
