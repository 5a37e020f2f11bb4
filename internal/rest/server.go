package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/peakform/schedule/internal/calendar"
	"github.com/peakform/schedule/pkg/models"
	"github.com/peakform/schedule/pkg/pgstore"
	"github.com/peakform/schedule/pkg/ratelimit"
)

type App interface {
	AvailableSlots(ctx context.Context, coachID int, date time.Time) ([]models.Slot, error)
	GetAvailability(ctx context.Context, coachID int) ([]models.CoachAvailability, error)
	ReplaceAvailability(ctx context.Context, coachID int, windows []models.AvailabilityWindow, slotDuration int) ([]models.CoachAvailability, error)
	CreateReservation(ctx context.Context, studentID int, req models.ReservationRequest) (models.Reservation, error)
	Decide(ctx context.Context, coachID, reservationID int, action models.ReservationAction) (models.Reservation, error)
	Cancel(ctx context.Context, studentID, reservationID int) (models.Reservation, error)
	GetReservation(ctx context.Context, userID, reservationID int) (models.Reservation, error)
	ListReservations(ctx context.Context, userID int, role models.Role) ([]models.Reservation, error)
}

// Connector is the OAuth flow surface exposed over HTTP.
type Connector interface {
	AuthURL(userID int, returnPath string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (string, error)
}

type Server struct {
	log       *logrus.Entry
	app       App
	connector Connector
	limiter   ratelimit.Limiter
	validate  *validator.Validate
	secret    []byte
	address   string
	version   string
}

func NewServer(log *logrus.Logger, app App, connector Connector, limiter ratelimit.Limiter, secret []byte, address, version string) *Server {
	return &Server{
		log:       log.WithField("component", "rest"),
		app:       app,
		connector: connector,
		limiter:   limiter,
		validate:  validator.New(),
		secret:    secret,
		address:   address,
		version:   version,
	}
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("err during shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/version", s.versionHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/oauth/google/callback", s.oauthCallbackHandler)
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Use(s.jwtAuth)
			r.Get("/coaches/{id}/availability", s.getAvailabilityHandler)
			r.Put("/coaches/{id}/availability", s.putAvailabilityHandler)
			r.Get("/coaches/{id}/slots", s.getSlotsHandler)
			r.Get("/reservations", s.listReservationsHandler)
			r.With(s.rateLimit("reservations")).Post("/reservations", s.createReservationHandler)
			r.Get("/reservations/{id}", s.getReservationHandler)
			r.Patch("/reservations/{id}", s.patchReservationHandler)
			r.With(s.rateLimit("oauth")).Get("/oauth/google/url", s.oauthURLHandler)
		})
	})
	return r
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if x, ok := data.(error); ok {
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: x.Error()}); err != nil {
			s.log.Warnf("err during encoding error: %v", err)
		}
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnf("err during encoding responce: %v", err)
	}
}

// writeError maps the taxonomy to status codes and keeps provider payloads out
// of the response body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, calendar.ErrBadState):
		s.writeResponse(w, http.StatusBadRequest, err)
	case errors.Is(err, models.ErrForbidden):
		s.writeResponse(w, http.StatusForbidden, models.ErrForbidden)
	case errors.Is(err, pgstore.ErrUserNotFound), errors.Is(err, pgstore.ErrReservationNotFound):
		s.writeResponse(w, http.StatusNotFound, err)
	case errors.Is(err, models.ErrSlotTaken):
		s.writeResponse(w, http.StatusConflict, models.ErrSlotTaken)
	case errors.Is(err, models.ErrNotConnected):
		s.writeResponse(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, models.ErrProviderUnavailable), errors.Is(err, models.ErrCalendar):
		s.log.Warnf("calendar provider failure: %v", err)
		s.writeResponse(w, http.StatusBadGateway, models.ErrProviderUnavailable)
	case errors.Is(err, models.ErrRateLimited):
		s.writeResponse(w, http.StatusTooManyRequests, models.ErrRateLimited)
	default:
		s.log.Warnf("internal error: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
