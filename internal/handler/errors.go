package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// respondError maps service errors onto HTTP responses. Anything unexpected
// is attached to the context for the request logger and reported as a 500.
func respondError(c *gin.Context, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		response.ValidationFailed(c, ve.Field, ve.Error())
	case errors.Is(err, service.ErrTradeNotFound),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrImportNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrBatchTooLarge):
		response.PayloadTooLarge(c, err.Error())
	case errors.Is(err, service.ErrUnknownPlatform):
		response.UnknownPlatform(c, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c, "internal server error")
	}
}

// paramID parses a numeric path parameter, answering 400 when it is not one
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
