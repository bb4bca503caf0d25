package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stockledger-api/internal/middleware"
	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// toAPIError maps service failures onto the HTTP error envelope.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rerr *service.ReconciliationError
	if errors.As(err, &rerr) {
		if rerr.RolledBack {
			return apierror.ReconciliationRequired("The operation failed and was rolled back; no changes were saved.", rerr.GroupID)
		}
		return apierror.ReconciliationRequired("The outcome of the operation is unknown; quantities must be reconciled against the ledger.", rerr.GroupID)
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case service.KindValidation:
			if svcErr.Field != "" {
				return apierror.ValidationError("Validation failed", apierror.FieldError{Field: svcErr.Field, Message: svcErr.Message})
			}
			return apierror.BadRequest(svcErr.Message)
		case service.KindUnauthenticated:
			return apierror.Unauthorized(svcErr.Message)
		case service.KindAuthorization:
			return apierror.Forbidden(svcErr.Message)
		case service.KindNotFound:
			return apierror.NotFound(svcErr.Message)
		}
	}

	return apierror.InternalError("")
}

// fail writes err and logs everything that is not the caller's fault.
func fail(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
	}
	response.Error(w, apiErr)
}

func caller(r *http.Request) *model.Identity {
	return middleware.IdentityFromContext(r.Context())
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.BadRequest(name + " must be a positive integer")
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apierror.BadRequest(name + " must be an integer")
	}
	return &v, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apierror.BadRequest(name + " must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
