package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/edusmart-auth/internal/service"
)

var statusByKind = map[service.Kind]int{
	service.KindValidation:         http.StatusUnprocessableEntity,
	service.KindConfiguration:      http.StatusInternalServerError,
	service.KindConflict:           http.StatusConflict,
	service.KindInvalidCredentials: http.StatusUnauthorized,
	service.KindToken:              http.StatusBadRequest,
	service.KindDownstream:         http.StatusBadGateway,
	service.KindNotFound:           http.StatusNotFound,
	service.KindSystem:             http.StatusInternalServerError,
}

// fail is the one place errors become responses.  System and
// configuration errors are logged with detail and answered generically.
func fail(c echo.Context, err error) error {
	kind := service.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := "internal error"
	var se *service.Error
	if kind != service.KindSystem && kind != service.KindConfiguration && errors.As(err, &se) {
		msg = se.Msg
	} else {
		c.Logger().Errorf("%s: %v", kind, err)
	}
	return c.JSON(status, body(service.CodeOf(err), msg))
}

func body(code, msg string) echo.Map {
	return echo.Map{"success": false, "message_code": code, "message": msg}
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, body(service.CodeValidation, "invalid body"))
}
