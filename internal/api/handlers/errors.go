package handlers

import (
	"errors"
	"net/http"

	"auction-engine/internal/domain"

	"github.com/labstack/echo/v4"
)

// HeaderUserEmail carries the identity a request acts as.
const HeaderUserEmail = "X-User-Email"

type ErrorResponse struct {
	Error string `json:"error"`
	// Entity and ID are set on 404 responses.
	Entity string `json:"entity,omitempty"`
	ID     string `json:"id,omitempty"`
}

// StatusFor maps a domain error to the HTTP status it is reported with.
func StatusFor(err error) int {
	var ve *domain.ValidationError
	var se *domain.StateError
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &se):
		return http.StatusConflict
	case errors.As(err, &nf):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := StatusFor(err)
	body := ErrorResponse{Error: err.Error()}

	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		body.Entity = nf.Entity
		body.ID = nf.ID
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	return c.JSON(status, body)
}

func actor(c echo.Context) string {
	return c.Request().Header.Get(HeaderUserEmail)
}

func requireActor(c echo.Context) (string, error) {
	email := actor(c)
	if email == "" {
		return "", domain.NewValidationError("%s header is required", HeaderUserEmail)
	}
	return email, nil
}
