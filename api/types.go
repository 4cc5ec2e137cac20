package api

import "time"

type ErrorResponse struct {
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
	// Seats lists the conflicting seats of a rejected hold.
	Seats []string `json:"seats,omitempty"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

type SystemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type SweeperInfo struct {
	Running         bool      `json:"running"`
	TotalExpired    int64     `json:"totalExpired"`
	TotalSkipped    int64     `json:"totalSkipped"`
	TotalReconciled int64     `json:"totalReconciled"`
	LastSweepTime   time.Time `json:"lastSweepTime"`
	LastSweepCount  int       `json:"lastSweepCount"`
}

type HealthcheckResponse struct {
	Status     string       `json:"status"`
	SystemInfo SystemInfo   `json:"systemInfo"`
	Sweeper    *SweeperInfo `json:"sweeper,omitempty"`
}

type ReserveSeatsRequest struct {
	Seats []string `json:"seats" validate:"required,min=1,dive,seat"`
}

type ReservationResponse struct {
	Token        string    `json:"token"`
	ShowId       int64     `json:"showId"`
	Status       string    `json:"status"`
	Seats        []string  `json:"seats"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	ShowStartsAt time.Time `json:"showStartsAt"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IntentId     string    `json:"intentId,omitempty"`
}

type InitiatePaymentRequest struct {
	Amount string `json:"amount" validate:"required,amount"`
}

type PaymentResponse struct {
	Token        string `json:"token"`
	IntentId     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
}

type ConfirmPaymentRequest struct {
	GatewayReference string `json:"gatewayReference" validate:"required,max=255"`
}

type SeatView struct {
	Seat   string `json:"seat"`
	Row    string `json:"row"`
	Number int    `json:"number"`
	Status string `json:"status"`
}

type ShowSeatsResponse struct {
	ShowId          int64      `json:"showId"`
	MovieTitle      string     `json:"movieTitle"`
	TheaterName     string     `json:"theaterName"`
	StartTime       time.Time  `json:"startTime"`
	BookingClosesAt time.Time  `json:"bookingClosesAt"`
	Price           string     `json:"price"`
	Currency        string     `json:"currency"`
	Seats           []SeatView `json:"seats"`
}
