package app

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/seat-reservation/api"
	"github.com/metinatakli/seat-reservation/internal/domain"
	appvalidator "github.com/metinatakli/seat-reservation/internal/validator"
)

func (app *application) logError(r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.Error(err.Error(),
		"method", method,
		"uri", uri,
		"request_id", middleware.GetReqID(r.Context()),
		"requester_id", contextRequesterID(r))
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	app.writeError(w, r, status, api.ErrorResponse{Message: message})
}

func (app *application) writeError(w http.ResponseWriter, r *http.Request, status int, resp api.ErrorResponse) {
	resp.RequestId = middleware.GetReqID(r.Context())
	resp.Timestamp = time.Now()

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)

	message := "The server encountered a problem and could not process your request"
	app.errorResponse(w, r, http.StatusInternalServerError, message)
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "The requested resource not found"
	app.errorResponse(w, r, http.StatusNotFound, message)
}

func (app *application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("The %s method is not supported for this resource", r.Method)
	app.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))

	app.writeError(w, r, http.StatusTooManyRequests, api.ErrorResponse{
		Message: "Too many requests, please try again later",
		Code:    "rate_limited",
	})
}

func (app *application) invalidBearerTokenResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")

	message := "Invalid or expired bearer token"
	app.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (app *application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		app.badRequestResponse(w, r, err)
		return
	}

	resp := api.ValidationErrorResponse{
		Message:          "One or more fields are invalid",
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
		ValidationErrors: make([]api.ValidationError, len(validationErrors)),
	}

	for i, fieldErr := range validationErrors {
		resp.ValidationErrors[i] = api.ValidationError{
			Field: fieldErr.Field(),
			Issue: appvalidator.ValidationMessage(fieldErr),
		}
	}

	err = app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

type domainError struct {
	err    error
	status int
	code   string
	// exposed errors are reported with their full message, others with the
	// message of the sentinel only.
	exposed bool
}

var domainErrors = []domainError{
	{domain.ErrSeatUnavailable, http.StatusConflict, "seat_unavailable", false},
	{domain.ErrInvalidSeatSet, http.StatusUnprocessableEntity, "invalid_seat_set", true},
	{domain.ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch", true},
	{domain.ErrShowNotBookable, http.StatusUnprocessableEntity, "show_not_bookable", false},
	{domain.ErrShowNotFound, http.StatusNotFound, "show_not_found", false},
	{domain.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found", false},
	{domain.ErrNotOwner, http.StatusForbidden, "not_owner", false},
	{domain.ErrReservationExpired, http.StatusGone, "reservation_expired", false},
	{domain.ErrReservationNotPending, http.StatusConflict, "reservation_not_pending", false},
	{domain.ErrAlreadyConfirmed, http.StatusConflict, "already_confirmed", false},
	{domain.ErrTokenMismatch, http.StatusConflict, "token_mismatch", false},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state", false},
	{domain.ErrGatewayVerificationFailed, http.StatusBadGateway, "gateway_verification_failed", false},
	{domain.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable", false},
}

// domainErrorResponse maps an error kind returned by the booking engine to
// its HTTP status. Anything unrecognised is a server error.
func (app *application) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrIntegrity) {
		app.logError(r, err)
		app.writeError(w, r, http.StatusInternalServerError, api.ErrorResponse{
			Message: "Payment was received but the booking could not be completed. Our team has been notified",
			Code:    "integrity_failure",
		})
		return
	}

	for _, de := range domainErrors {
		if !errors.Is(err, de.err) {
			continue
		}

		resp := api.ErrorResponse{Message: de.err.Error(), Code: de.code}
		if de.exposed {
			resp.Message = err.Error()
		}

		var unavailable *domain.SeatUnavailableError
		if errors.As(err, &unavailable) {
			resp.Seats = seatLabels(unavailable.Seats)
		}

		if de.status >= http.StatusInternalServerError {
			app.logError(r, err)
		}

		app.writeError(w, r, de.status, resp)
		return
	}

	app.serverErrorResponse(w, r, err)
}
