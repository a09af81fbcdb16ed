package server

import (
	"errors"
	"net/http"

	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/persistence"
	"github.com/wfunc/tagserver/services"
)

var errMalformedRequest = gameerr.New(gameerr.KindStructuralInvalid, "malformed_request")

// statusFor maps an operation error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrHistoryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, persistence.ErrRecordNotFound):
		return http.StatusNotFound
	}

	switch gameerr.KindOf(err) {
	case gameerr.KindNotFound:
		return http.StatusNotFound
	case gameerr.KindWrongState, gameerr.KindConflict, gameerr.KindCapacity:
		return http.StatusConflict
	case gameerr.KindUnauthorized:
		return http.StatusForbidden
	case gameerr.KindOutOfRange, gameerr.KindRuleRestricted, gameerr.KindDataUnavailable:
		return http.StatusUnprocessableEntity
	case gameerr.KindStructuralInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// toErrorResponse 内部错误不向客户端暴露细节
func toErrorResponse(err error) errorResponse {
	var gerr *gameerr.Error
	if errors.As(err, &gerr) {
		return errorResponse{
			Kind:     gerr.Kind.String(),
			Reason:   gerr.Reason,
			Message:  err.Error(),
			Distance: gerr.Distance,
			Allowed:  gerr.Allowed,
		}
	}
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound):
		return errorResponse{Kind: gameerr.KindNotFound.String(), Reason: "record_not_found", Message: err.Error()}
	case errors.Is(err, services.ErrHistoryUnavailable):
		return errorResponse{Kind: gameerr.KindDataUnavailable.String(), Reason: "history_unavailable", Message: err.Error()}
	}
	return errorResponse{Kind: gameerr.KindUnknown.String(), Message: "internal error"}
}
