// Package server exposes quoting, channel browsing and export over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"parcelquote/internal/auth"
	"parcelquote/internal/metrics"
	"parcelquote/internal/rate"
	"parcelquote/internal/tariff"
)

// maxBodyBytes bounds request bodies; export requests carry whole result sets.
const maxBodyBytes = 4 << 20

// Records is the rate record repository the handlers read from.
type Records interface {
	FetchAllRecords(ctx context.Context) ([]rate.RateRecord, error)
	Invalidate(ctx context.Context) error
}

// Catalog answers the channel browser and logistics cascade.
type Catalog interface {
	Channels(company string) ([]string, error)
	Overview(ctx context.Context) (tariff.Overview, error)
	ChannelCountries(ctx context.Context, company, channel string) (tariff.ChannelCountries, error)
	BaseData(ctx context.Context) (tariff.BaseData, error)
	ChannelViews(ctx context.Context, f tariff.ChannelFilter) ([]tariff.ChannelView, error)
}

// Authenticator logs staff in and verifies their bearer tokens.
type Authenticator interface {
	auth.Verifier
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResponse, error)
}

type Deps struct {
	Records Records
	Catalog Catalog
	Ranker  *rate.Ranker
	Auth    Authenticator
	// RequireAuth guards the quote-producing routes with a bearer token.
	RequireAuth bool
	Logger      *zap.Logger
}

type Server struct {
	records     Records
	catalog     Catalog
	ranker      *rate.Ranker
	auth        Authenticator
	requireAuth bool
	validate    *validator.Validate
	log         *zap.Logger
}

func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		records:     d.Records,
		catalog:     d.Catalog,
		ranker:      d.Ranker,
		auth:        d.Auth,
		requireAuth: d.RequireAuth,
		validate:    newValidator(),
		log:         log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log))
	r.Use(instrument)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/auth/login", s.handleLogin)

	r.Get("/channels", s.handleChannels)
	r.Get("/logistics", s.handleLogistics)
	r.Get("/countries", s.handleCountries)

	r.Group(func(r chi.Router) {
		if s.requireAuth {
			r.Use(s.authenticate)
		}
		r.Post("/quote", s.handleQuote)
		r.Post("/quote/batch", s.handleQuoteBatch)
		r.Post("/recommend", s.handleRecommend)
		r.Post("/export", s.handleExport)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(requireRole(auth.RoleAdmin))
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeErrorJSON(w, http.StatusNotFound, "auth_disabled", "authentication is not configured")
		return
	}
	var req auth.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeErrorJSON(w, http.StatusUnauthorized, "invalid_credentials", "手机号或密码错误")
			return
		}
		s.internalError(w, r, "login failed", err)
		return
	}
	s.log.Info("user logged in",
		zap.String("user_id", resp.User.ID),
		zap.String("role", resp.User.Role),
		zap.String("request_id", requestID(r)))
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst and validates it, writing the 400
// response itself when either step fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg,
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID(r)),
		zap.Error(err))
	writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
