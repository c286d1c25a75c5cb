package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"carhub/internal/app"
	"carhub/internal/ratelimit"
	"carhub/internal/usertoken"
	"carhub/internal/util"
	"carhub/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier

	// Booking abuse control; left nil (allowing everything) in demo mode.
	BookingLimiter *ratelimit.FixedWindowLimiter

	// TrustedProxies controls when forwarded headers are believed for
	// client IP resolution.
	TrustedProxies *util.TrustedProxies

	MaxUploadBytes int64
}

// Server exposes the marketplace HTTP API.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	bookingLimiter *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		bookingLimiter: cfg.BookingLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the shared middleware stack.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("carhub", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// listings (anonymous browsing allowed)
	s.mux.HandleFunc("/api/cars", s.handleCars)
	s.mux.HandleFunc("/api/cars/", s.handleCarSubtree)
	s.mux.HandleFunc("/api/dealership", s.handleDealership)

	// wishlist & test drives (auth required)
	s.mux.Handle("/api/saved-cars", s.authenticated(s.handleSavedCars))
	s.mux.Handle("/api/test-drives", s.authenticated(s.handleTestDrives))
	s.mux.Handle("/api/test-drives/", s.authenticated(s.handleTestDriveSubtree))

	// admin
	s.mux.Handle("/api/admin/cars", s.adminOnly(s.handleAdminCars))
	s.mux.Handle("/api/admin/cars/", s.adminOnly(s.handleAdminCarSubtree))
	s.mux.Handle("/api/admin/test-drives/", s.adminOnly(s.handleAdminBookingByID))
	s.mux.Handle("/api/admin/dealership", s.adminOnly(s.handleAdminDealership))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.audit(r, "carhub.authorize", "fail", "reason", err.Message)
			writeAppError(w, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.audit(r, "carhub.admin.authorize", "fail", "reason", err.Message)
			writeAppError(w, err)
			return
		}
		if user.Role != domain.RoleAdmin {
			s.audit(r, "carhub.admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeAppError(w, app.ErrForbidden)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, *app.Error) {
	token, ok := bearerToken(r)
	if !ok || s.tokenVerifier == nil {
		return domain.User{}, app.ErrUnauthorized
	}
	subject, err := s.tokenVerifier.VerifySubject(token)
	if err != nil {
		return domain.User{}, app.ErrUnauthorized
	}
	user, found, lookupErr := s.app.UserByAuthID(subject)
	if lookupErr != nil {
		return domain.User{}, app.ErrUserNotFound
	}
	if !found {
		return domain.User{}, app.ErrUserNotFound
	}
	return user, nil
}

// optionalUser resolves the caller when a valid token is present; anonymous
// and unprovisioned callers browse without wishlist annotation.
func (s *Server) optionalUser(r *http.Request) *domain.User {
	token, ok := bearerToken(r)
	if !ok || s.tokenVerifier == nil {
		return nil
	}
	subject, err := s.tokenVerifier.VerifySubject(token)
	if err != nil {
		return nil
	}
	user, found, lookupErr := s.app.UserByAuthID(subject)
	if lookupErr != nil || !found {
		return nil
	}
	return &user
}

// GET /api/cars
func (s *Server) handleCars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user := s.optionalUser(r)
	cars, pagination, err := s.app.SearchCars(user, searchQueryFromRequest(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writePage(w, cars, pagination)
}

// /api/cars/filters, /api/cars/{id}, /api/cars/{id}/save
func (s *Server) handleCarSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cars/"), "/")
	switch {
	case rest == "filters":
		s.handleCarFilters(w, r)
	case strings.HasSuffix(rest, "/save"):
		carID := strings.TrimSuffix(rest, "/save")
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			s.handleToggleSavedCar(w, r, user, carID)
		}).ServeHTTP(w, r)
	case rest != "" && !strings.Contains(rest, "/"):
		s.handleCarByID(w, r, rest)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleCarFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	opts, err := s.app.CarFilters()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, opts)
}

func (s *Server) handleCarByID(w http.ResponseWriter, r *http.Request, carID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.CarByID(s.optionalUser(r), carID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

func (s *Server) handleToggleSavedCar(w http.ResponseWriter, r *http.Request, user domain.User, carID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.ToggleSavedCar(user, carID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "carhub.wishlist.toggle", "success", "user_id", user.ID, "car_id", carID, "saved", res.Saved)
	writeSuccess(w, http.StatusOK, res)
}

// GET /api/saved-cars
func (s *Server) handleSavedCars(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	cars, err := s.app.SavedCars(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, cars)
}

// /api/test-drives
func (s *Server) handleTestDrives(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleBookTestDrive(w, r, user)
	case http.MethodGet:
		bookings, err := s.app.UserBookings(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, bookings)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookTestDrive(w http.ResponseWriter, r *http.Request, user domain.User) {
	if s.bookingLimiter != nil && !s.bookingLimiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		s.audit(r, "carhub.booking.create", "rate_limited", "user_id", user.ID)
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many booking attempts")
		return
	}
	var req app.BookingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	booking, err := s.app.BookTestDrive(user, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "carhub.booking.create", "success", "user_id", user.ID, "booking_id", booking.ID)
	writeSuccess(w, http.StatusCreated, booking)
}

// /api/test-drives/{id}/cancel
func (s *Server) handleTestDriveSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/test-drives/"), "/")
	if !strings.HasSuffix(rest, "/cancel") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	bookingID := strings.TrimSuffix(rest, "/cancel")
	booking, err := s.app.CancelBooking(user, bookingID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "carhub.booking.cancel", "success", "user_id", user.ID, "booking_id", booking.ID)
	writeSuccess(w, http.StatusOK, booking)
}

// GET /api/dealership
func (s *Server) handleDealership(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	d, err := s.app.DealershipInfo()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

// POST /api/admin/cars
func (s *Server) handleAdminCars(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in app.CarInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	car, err := s.app.CreateCar(in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "carhub.admin.car.create", "success", "user_id", user.ID, "car_id", car.ID)
	writeSuccess(w, http.StatusCreated, car)
}

// /api/admin/cars/{id}, /api/admin/cars/{id}/images
func (s *Server) handleAdminCarSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/cars/"), "/")
	if strings.HasSuffix(rest, "/images") {
		s.handleAdminCarImage(w, r, user, strings.TrimSuffix(rest, "/images"))
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var in app.CarInput
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		car, err := s.app.UpdateCar(rest, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "carhub.admin.car.update", "success", "user_id", user.ID, "car_id", car.ID)
		writeSuccess(w, http.StatusOK, car)
	case http.MethodDelete:
		if err := s.app.DeleteCar(rest); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "carhub.admin.car.delete", "success", "user_id", user.ID, "car_id", rest)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminCarImage(w http.ResponseWriter, r *http.Request, user domain.User, carID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	url, appErr := s.app.UploadCarImage(carID, header.Filename, file, header.Size)
	if appErr != nil {
		writeAppError(w, appErr)
		return
	}
	s.audit(r, "carhub.admin.car.image", "success", "user_id", user.ID, "car_id", carID)
	writeSuccess(w, http.StatusCreated, map[string]string{"url": url})
}

// PATCH /api/admin/test-drives/{id}
func (s *Server) handleAdminBookingByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	bookingID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/test-drives/"), "/")
	if bookingID == "" || strings.Contains(bookingID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	booking, err := s.app.UpdateBookingStatus(bookingID, domain.BookingStatus(req.Status))
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "carhub.admin.booking.update", "success", "user_id", user.ID, "booking_id", booking.ID, "status", string(booking.Status))
	writeSuccess(w, http.StatusOK, booking)
}

// PUT /api/admin/dealership
func (s *Server) handleAdminDealership(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var d domain.Dealership
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := s.app.SaveDealership(d)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "carhub.admin.dealership.save", "success", "user_id", user.ID)
	writeSuccess(w, http.StatusOK, saved)
}

func searchQueryFromRequest(r *http.Request) domain.SearchQuery {
	params := r.URL.Query()
	q := domain.SearchQuery{
		Search:       strings.TrimSpace(params.Get("search")),
		Make:         strings.TrimSpace(params.Get("make")),
		BodyType:     strings.TrimSpace(params.Get("bodyType")),
		FuelType:     strings.TrimSpace(params.Get("fuelType")),
		Transmission: strings.TrimSpace(params.Get("transmission")),
		SortBy:       strings.TrimSpace(params.Get("sortBy")),
	}
	if v, err := strconv.ParseFloat(params.Get("minPrice"), 64); err == nil {
		q.MinPrice = v
	}
	if v, err := strconv.ParseFloat(params.Get("maxPrice"), 64); err == nil {
		q.MaxPrice = v
	}
	if v, err := strconv.Atoi(params.Get("page")); err == nil {
		q.Page = v
	}
	if v, err := strconv.Atoi(params.Get("limit")); err == nil {
		q.Limit = v
	}
	return q
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// envelope is the uniform response shape: success with data (and pagination
// for list endpoints), or a soft failure with an error message.
type envelope struct {
	Success    bool            `json:"success"`
	Data       any             `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Pagination *app.Pagination `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, pagination app.Pagination) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &pagination})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeAppError maps the unified failure kind to an HTTP status while keeping
// the envelope shape constant. Soft failures stay HTTP 200 so pages render.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch appErr.Kind {
	case app.KindSoft:
		writeError(w, http.StatusOK, appErr.Message)
	case app.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, appErr.Message)
	case app.KindForbidden:
		writeError(w, http.StatusForbidden, appErr.Message)
	case app.KindInvalid:
		writeError(w, http.StatusBadRequest, appErr.Message)
	default:
		slog.Error("request failed", "err", appErr)
		writeError(w, http.StatusInternalServerError, appErr.Message)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
