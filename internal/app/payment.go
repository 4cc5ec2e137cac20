package app

import (
	"errors"
	"net/http"

	"github.com/metinatakli/seat-reservation/api"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
)

func (app *application) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := readToken(r)
	if !ok {
		app.notFoundResponse(w, r)
		return
	}

	var input api.InitiatePaymentRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, err := app.coordinator.InitiatePayment(r.Context(), token, app.contextGetRequesterID(r), amount)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	resp := api.PaymentResponse{
		Token:        p.Token,
		IntentId:     p.IntentID,
		ClientSecret: p.ClientSecret,
		Amount:       p.Amount.StringFixed(2),
		Currency:     p.Currency,
	}

	err = app.writeJSON(w, http.StatusCreated, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// ConfirmPaymentHandler books the reservation once the gateway reports the
// payment as settled. Confirming twice answers with the booked reservation.
func (app *application) ConfirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := readToken(r)
	if !ok {
		app.notFoundResponse(w, r)
		return
	}

	var input api.ConfirmPaymentRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	requesterID := app.contextGetRequesterID(r)

	reservation, err := app.coordinator.ConfirmPayment(r.Context(), token, requesterID, input.GatewayReference)
	if errors.Is(err, domain.ErrAlreadyConfirmed) {
		reservation, err = app.holds.Get(r.Context(), token, requesterID)
	}
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toReservationResponse(reservation), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
