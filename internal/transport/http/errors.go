package httptransport

import (
	"errors"
	"net/http"

	"marketplace-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var kindStatus = map[service.Kind]int{
	service.KindValidation:   http.StatusBadRequest,
	service.KindCoupon:       http.StatusBadRequest,
	service.KindSignature:    http.StatusBadRequest,
	service.KindUnauthorized: http.StatusUnauthorized,
	service.KindForbidden:    http.StatusForbidden,
	service.KindNotFound:     http.StatusNotFound,
	service.KindConflict:     http.StatusConflict,
}

// respondError maps a service error to its HTTP status. Causes of
// internal errors are logged and never written to the client.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var se *service.Error
	if !errors.As(err, &se) || se.Kind == service.KindInternal {
		log.Error("Внутренняя ошибка обработки запроса",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, NewInternalError())
		return
	}
	status, ok := kindStatus[se.Kind]
	if !ok {
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, BaseError{Code: se.Code, Message: se.Message})
}
