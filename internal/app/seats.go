package app

import (
	"net/http"

	"github.com/metinatakli/seat-reservation/api"
)

// GetShowSeatsHandler lists every seat of a show with its current state.
// Holders are never revealed.
func (app *application) GetShowSeatsHandler(w http.ResponseWriter, r *http.Request) {
	showID, err := readShowID(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	show, seats, err := app.holds.Availability(r.Context(), showID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	resp := api.ShowSeatsResponse{
		ShowId:          show.ID,
		MovieTitle:      show.MovieTitle,
		TheaterName:     show.TheaterName,
		StartTime:       show.StartTime,
		BookingClosesAt: show.BookingDeadline(app.holds.BookingCutoff()),
		Price:           show.Price.StringFixed(2),
		Currency:        show.Currency,
		Seats:           make([]api.SeatView, len(seats)),
	}

	for i, seat := range seats {
		resp.Seats[i] = api.SeatView{
			Seat:   seat.ID.String(),
			Row:    seat.ID.Row,
			Number: seat.ID.Number,
			Status: string(seat.State),
		}
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
