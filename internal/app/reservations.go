package app

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/metinatakli/seat-reservation/api"
	"github.com/metinatakli/seat-reservation/internal/domain"
)

func (app *application) ReserveSeatsHandler(w http.ResponseWriter, r *http.Request) {
	showID, err := readShowID(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.ReserveSeatsRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	seats := make([]domain.SeatID, len(input.Seats))
	for i, label := range input.Seats {
		seats[i], err = domain.ParseSeatID(label)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
	}

	reservation, err := app.holds.Reserve(r.Context(), showID, seats, app.contextGetRequesterID(r))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/v1/reservations/%s", reservation.Token))

	err = app.writeJSON(w, http.StatusCreated, toReservationResponse(reservation), headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) GetReservationHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := readToken(r)
	if !ok {
		app.notFoundResponse(w, r)
		return
	}

	reservation, err := app.holds.Get(r.Context(), token, app.contextGetRequesterID(r))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toReservationResponse(reservation), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) ReleaseReservationHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := readToken(r)
	if !ok {
		app.notFoundResponse(w, r)
		return
	}

	err := app.holds.Release(r.Context(), token, app.contextGetRequesterID(r))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func readToken(r *http.Request) (string, bool) {
	token := chi.URLParam(r, "token")
	return token, domain.ValidToken(token)
}

func toReservationResponse(r *domain.Reservation) api.ReservationResponse {
	return api.ReservationResponse{
		Token:        r.Token,
		ShowId:       r.ShowID,
		Status:       string(r.Status),
		Seats:        seatLabels(r.Seats),
		Amount:       r.Amount.StringFixed(2),
		Currency:     r.Currency,
		ShowStartsAt: r.ShowStartsAt,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
		IntentId:     r.IntentID,
	}
}
