package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/peakform/schedule/pkg/models"
)

const dateLayout = "2006-01-02"

type availabilityRequest struct {
	SlotDuration int                         `json:"slotDuration" validate:"min=15,max=240"`
	Windows      []models.AvailabilityWindow `json:"windows" validate:"dive"`
}

type oauthURLResponse struct {
	URL string `json:"url"`
}

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, err := fmt.Fprintf(w, "%s\n", s.version)
	if err != nil {
		s.log.Warnf("err during writing to connection: %v", err)
	}
}

func (s *Server) getAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	coachID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.app.GetAvailability(ctx, coachID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.CoachAvailability{}
	}
	s.writeResponse(w, http.StatusOK, rows)
}

func (s *Server) putAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	coachID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	claims := s.getClaims(ctx)
	if claims == nil || claims.UserID != coachID || !claims.Role.CanManageSchedule() {
		s.writeError(w, models.ErrForbidden)
		return
	}
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	saved, err := s.app.ReplaceAvailability(ctx, coachID, req.Windows, req.SlotDuration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, saved)
}

func (s *Server) getSlotsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	coachID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrValidation))
		return
	}
	slots, err := s.app.AvailableSlots(ctx, coachID, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	s.writeResponse(w, http.StatusOK, slots)
}

func (s *Server) createReservationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := s.getClaims(ctx)
	if claims == nil || !claims.Role.CanBook() {
		s.writeError(w, models.ErrForbidden)
		return
	}
	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	created, err := s.app.CreateReservation(ctx, claims.UserID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusCreated, created)
}

func (s *Server) listReservationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := s.getClaims(ctx)
	if claims == nil {
		s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
		return
	}
	rr, err := s.app.ListReservations(ctx, claims.UserID, claims.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rr == nil {
		rr = []models.Reservation{}
	}
	s.writeResponse(w, http.StatusOK, rr)
}

func (s *Server) getReservationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := s.getClaims(ctx)
	if claims == nil {
		s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.app.GetReservation(ctx, claims.UserID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, res)
}

func (s *Server) patchReservationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := s.getClaims(ctx)
	if claims == nil {
		s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var action models.ReservationAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validate.Struct(action); err != nil {
		s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}

	var updated models.Reservation
	if action.Action == "cancel" {
		if !claims.Role.CanBook() {
			s.writeError(w, models.ErrForbidden)
			return
		}
		updated, err = s.app.Cancel(ctx, claims.UserID, id)
	} else {
		if !claims.Role.CanManageSchedule() {
			s.writeError(w, models.ErrForbidden)
			return
		}
		updated, err = s.app.Decide(ctx, claims.UserID, id, action)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, updated)
}

func (s *Server) oauthURLHandler(w http.ResponseWriter, r *http.Request) {
	claims := s.getClaims(r.Context())
	if claims == nil {
		s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
		return
	}
	url, err := s.connector.AuthURL(claims.UserID, r.URL.Query().Get("return"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, http.StatusOK, oauthURLResponse{URL: url})
}

// oauthCallbackHandler is unauthenticated: the provider redirects here without
// a session, and the signed state recovers the initiating user.
func (s *Server) oauthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("%w: missing code or state", models.ErrValidation))
		return
	}
	returnPath, err := s.connector.HandleCallback(r.Context(), code, state)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if returnPath == "" {
		returnPath = "/"
	}
	http.Redirect(w, r, returnPath, http.StatusFound)
}
