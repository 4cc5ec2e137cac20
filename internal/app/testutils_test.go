package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/metinatakli/seat-reservation/api"
	"github.com/metinatakli/seat-reservation/internal/booking"
	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/hold"
	"github.com/metinatakli/seat-reservation/internal/mocks"
	"github.com/metinatakli/seat-reservation/internal/repository"
	"github.com/metinatakli/seat-reservation/internal/seatmap"
	"github.com/metinatakli/seat-reservation/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	testJWTSecret = "test-secret"
	testShowID    = 7

	ErrInternalServer = "The server encountered a problem and could not process your request"
)

var testNow = time.Date(2030, 5, 10, 18, 0, 0, 0, time.UTC)

func testShow() domain.Show {
	return domain.Show{
		ID:          testShowID,
		MovieTitle:  "The Matrix",
		TheaterName: "Cinema City",
		StartTime:   testNow.Add(3 * time.Hour),
		Price:       decimal.RequireFromString("12.50"),
		Currency:    "usd",
		Seats: []domain.SeatID{
			{Row: "A", Number: 1},
			{Row: "A", Number: 2},
			{Row: "B", Number: 1},
			{Row: "B", Number: 2},
		},
	}
}

func newTestApplication(opts ...func(*application)) *application {
	app := &application{
		validator:      validator.NewValidator(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessionManager: scs.New(),
	}
	app.config.env = "test"
	app.config.jwt.secret = testJWTSecret

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// testEngine is the booking engine behind a test application, running on
// in-memory backends.
type testEngine struct {
	clock    *clock.Manual
	ledger   *repository.MemoryLedger
	seats    *seatmap.MemorySeatMap
	gateway  *mocks.MockPaymentGateway
	notifier *mocks.MockNotifier
	alerter  *mocks.MockAlerter
}

func newTestEngine() *testEngine {
	return &testEngine{
		clock:    clock.NewManual(testNow),
		ledger:   repository.NewMemoryLedger(),
		seats:    seatmap.NewMemorySeatMap(),
		gateway:  new(mocks.MockPaymentGateway),
		notifier: new(mocks.MockNotifier),
		alerter:  new(mocks.MockAlerter),
	}
}

func (e *testEngine) install(app *application) {
	shows := repository.NewMemoryShowRepository(testShow())

	app.holds = hold.NewManager(e.ledger, e.seats, shows, e.clock,
		hold.WithMaxSeats(3),
		hold.WithLogger(app.logger))

	app.coordinator = booking.NewCoordinator(e.ledger, app.holds, e.gateway, e.notifier, e.alerter, e.clock,
		booking.WithLogger(app.logger))
}

func (e *testEngine) assertExpectations(t *testing.T) {
	e.gateway.AssertExpectations(t)
	e.notifier.AssertExpectations(t)
	e.alerter.AssertExpectations(t)
}

// expectIntent makes the gateway hand out intentID for the next intent and
// report status for it.
func (e *testEngine) expectIntent(intentID string, status domain.IntentStatus) {
	e.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&domain.PaymentIntent{ID: intentID, ClientSecret: intentID + "_secret", Status: domain.IntentPending}, nil).
		Once()
	e.gateway.On("GetIntentStatus", mock.Anything, intentID).Return(status, nil).Maybe()
}

// handlerSuite drives the router of a test application backed by a
// testEngine.
type handlerSuite struct {
	suite.Suite
	engine *testEngine
	app    *application
	router http.Handler
}

func (s *handlerSuite) SetupTest() {
	s.engine = newTestEngine()
	s.app = newTestApplication(s.engine.install)
	s.router = s.app.routes()
}

func (s *handlerSuite) TearDownTest() {
	s.engine.assertExpectations(s.T())
}

func (s *handlerSuite) serve(requesterID, method, url string, body any) *httptest.ResponseRecorder {
	w, r := executeRequest(s.T(), method, url, body)
	if requesterID != "" {
		r = authenticate(s.T(), r, requesterID)
	}

	s.router.ServeHTTP(w, r)
	return w
}

func (s *handlerSuite) reserve(requesterID string, seats ...string) api.ReservationResponse {
	url := fmt.Sprintf("/v1/shows/%d/reservations", testShowID)

	w := s.serve(requesterID, http.MethodPost, url, api.ReserveSeatsRequest{Seats: seats})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp api.ReservationResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))

	return resp
}

func (s *handlerSuite) latest(token string) *domain.Reservation {
	r, err := s.engine.ledger.Latest(s.T().Context(), token)
	s.Require().NoError(err)

	return r
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader io.Reader = http.NoBody

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

func authenticate(t *testing.T, r *http.Request, requesterID string) *http.Request {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   requesterID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}

	r.Header.Set("Authorization", "Bearer "+signed)
	return r
}

func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt struct {
	wantStatus     int
	wantErrMessage string
	wantCode       string
}) {
	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	switch tt.wantStatus {
	case http.StatusUnprocessableEntity:
		if tt.wantCode != "" {
			var errorResp api.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errorResp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}

			if errorResp.Code != tt.wantCode {
				t.Errorf("Error code = %v, want %v", errorResp.Code, tt.wantCode)
			}
			return
		}

		var validationResp api.ValidationErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&validationResp); err != nil {
			t.Fatalf("Failed to decode validation error response: %v", err)
		}

		errorSet := make(map[string]bool)
		for _, vErr := range validationResp.ValidationErrors {
			errorSet[vErr.Issue] = true
		}

		if !errorSet[tt.wantErrMessage] {
			t.Errorf("Expected validation error message '%s' not found in response", tt.wantErrMessage)
		}

	default:
		var errorResp api.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errorResp); err != nil {
			t.Fatalf("Failed to decode error response: %v", err)
		}

		if tt.wantErrMessage != "" && errorResp.Message != tt.wantErrMessage {
			t.Errorf("Error message = %v, want %v", errorResp.Message, tt.wantErrMessage)
		}

		if tt.wantCode != "" && errorResp.Code != tt.wantCode {
			t.Errorf("Error code = %v, want %v", errorResp.Code, tt.wantCode)
		}
	}
}
