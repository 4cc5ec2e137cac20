package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(app.recoverPanic)

	r.Route("/v1", func(r chi.Router) {
		r.Use(app.rateLimit)

		r.Get("/healthcheck", app.GetHealth)

		r.Group(func(r chi.Router) {
			r.Use(app.sessionManager.LoadAndSave)
			r.Use(app.identifyRequester)

			r.Get("/shows/{showId}/seats", app.GetShowSeatsHandler)
			r.Post("/shows/{showId}/reservations", app.ReserveSeatsHandler)

			r.Route("/reservations/{token}", func(r chi.Router) {
				r.Get("/", app.GetReservationHandler)
				r.Post("/payment", app.InitiatePaymentHandler)
				r.Post("/confirmation", app.ConfirmPaymentHandler)
				r.Post("/release", app.ReleaseReservationHandler)
			})
		})
	})

	return r
}
