// Package api exposes the reservation backend over HTTP: the three
// record queries the booking widget ingests, reservation submission
// with conflict detection, and an audit export.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"osteria/internal/audit"
	"osteria/internal/booking"
	"osteria/internal/database"
	"osteria/internal/metrics"
	"osteria/internal/models"
	"osteria/internal/slot"
)

const (
	// MaxWindowDays is the maximum date range a record query may span.
	MaxWindowDays = 90

	codeSlotConflict = "slot_conflict"
)

// Server handles the reservation API.
type Server struct {
	store  *database.Store
	logger zerolog.Logger
	apiKey string

	limitRate  rate.Limit
	limitBurst int
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
}

// Config holds server tunables.
type Config struct {
	APIKey         string
	RequestsPerSec float64
	BurstSize      int
}

// NewServer constructs the API server around the store.
func NewServer(store *database.Store, cfg Config, logger zerolog.Logger) *Server {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 20
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 40
	}
	return &Server{
		store:      store,
		logger:     logger,
		apiKey:     cfg.APIKey,
		limitRate:  rate.Limit(cfg.RequestsPerSec),
		limitBurst: cfg.BurstSize,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bookings", s.withGuards(s.handleBookings))
	mux.HandleFunc("/api/events", s.withGuards(s.handleEvents))
	mux.HandleFunc("/api/export", s.withGuards(s.handleExport))
	return mux
}

func (s *Server) withGuards(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.allow(r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key", "")
			return
		}
		next(w, r)
	}
}

// allow applies a per-client token bucket.
func (s *Server) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.mu.Lock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(s.limitRate, s.limitBurst)
		s.limiters[host] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

// handleBookings serves GET (records in window) and POST (submission).
func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPost:
		s.createBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_list")

	window, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	records, err := s.store.ReservationsInWindow(r.Context(), window)
	if err != nil {
		s.logger.Error().Err(err).Msg("list bookings failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(records))
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_create")

	var res models.Reservation
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if err := validateReservation(res); err != nil {
		metrics.IncReservation("invalid")
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	created, err := s.store.CreateReservation(r.Context(), res)
	if errors.Is(err, database.ErrSlotTaken) {
		metrics.IncReservation("conflict")
		writeError(w, http.StatusConflict, "table already booked for this slot", codeSlotConflict)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("create reservation failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	// Authoritative policy: hand the client the full record snapshot
	// for its window so it can rebuild occupancy from ground truth.
	window := snapshotWindow(r, created)
	snapshot, err := s.store.Snapshot(r.Context(), window)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot after create failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	metrics.IncReservation("accepted")
	writeJSON(w, http.StatusCreated, booking.Result{Reservation: *created, Snapshot: snapshot})
}

// handleEvents serves the event collections, split by repeat kind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("events_list")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if r.URL.Query().Get("repeat") == "true" {
		records, err := s.store.RepeatingEvents(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("list repeating events failed")
			writeError(w, http.StatusInternalServerError, "internal error", "")
			return
		}
		writeJSON(w, http.StatusOK, emptyIfNil(records))
		return
	}

	window, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	records, err := s.store.EventsInWindow(r.Context(), window)
	if err != nil {
		s.logger.Error().Err(err).Msg("list events failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(records))
}

// handleExport streams an xlsx workbook of reservations in the window.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	window, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	reservations, err := s.store.ReservationDetails(r.Context(), window)
	if err != nil {
		s.logger.Error().Err(err).Msg("export query failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=reservations_%s_%s.xlsx", window.Min, window.Max))
	if err := audit.WriteReservations(w, reservations); err != nil {
		s.logger.Error().Err(err).Msg("export write failed")
	}
}

func windowFromQuery(r *http.Request) (slot.Window, error) {
	q := r.URL.Query()
	gte, lte := q.Get("date_gte"), q.Get("date_lte")
	if gte == "" || lte == "" {
		return slot.Window{}, fmt.Errorf("date_gte and date_lte are required")
	}
	minDate, err := slot.ParseDate(gte)
	if err != nil {
		return slot.Window{}, fmt.Errorf("invalid date_gte; expected YYYY-MM-DD")
	}
	maxDate, err := slot.ParseDate(lte)
	if err != nil {
		return slot.Window{}, fmt.Errorf("invalid date_lte; expected YYYY-MM-DD")
	}
	window := slot.Window{Min: minDate, Max: maxDate}
	if window.Len() == 0 {
		return slot.Window{}, fmt.Errorf("date_gte must be before or equal to date_lte")
	}
	if window.Len() > MaxWindowDays {
		return slot.Window{}, fmt.Errorf("date range exceeds maximum of %d days", MaxWindowDays)
	}
	return window, nil
}

// snapshotWindow picks the window the snapshot covers: the client's
// declared window when provided, otherwise the created date alone.
func snapshotWindow(r *http.Request, created *models.Reservation) slot.Window {
	if window, err := windowFromQuery(r); err == nil {
		return window
	}
	d, _ := slot.ParseDate(created.Date)
	return slot.Window{Min: d, Max: d}
}

func validateReservation(r models.Reservation) error {
	if _, err := r.ResolveInterval(); err != nil {
		return err
	}
	if r.Repeating() {
		return fmt.Errorf("reservations cannot repeat")
	}
	if r.People <= 0 {
		return fmt.Errorf("ppl must be a positive integer")
	}
	if r.Phone == "" || r.Address == "" {
		return fmt.Errorf("phone and address are required")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func emptyIfNil(records []models.Record) []models.Record {
	if records == nil {
		return []models.Record{}
	}
	return records
}

// Serve runs the handler on addr until the context is done, mirroring
// the shutdown pattern of the health and metrics servers.
func (s *Server) Serve(addr string, stop <-chan struct{}) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-stop
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
