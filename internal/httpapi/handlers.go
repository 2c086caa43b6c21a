package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"akwaba.app/internal/audit"
	"akwaba.app/internal/auth"
	"akwaba.app/internal/capture"
	"akwaba.app/internal/kyc"
	"akwaba.app/internal/obs"
)

const serviceName = "akwaba-kyc-api"

// ReadyProbe checks dependencies before traffic is accepted.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Uploader presigns evidence uploads.
type Uploader interface {
	PresignUpload(ctx context.Context, subjectID string, role kyc.Role, fileName, contentType string) (capture.Upload, error)
}

// Options tunes the HTTP layer. Zero values disable the matching feature.
type Options struct {
	Version      string
	DevTokens    bool
	TokenTTL     time.Duration
	RateBurst    int
	RatePerSec   float64
	CORSOrigins  []string
	MaxBodyBytes int64
	Uploads      Uploader
}

// API is the HTTP layer over the KYC service.
type API struct {
	router     chi.Router
	kyc        *kyc.Service
	issuer     *auth.Issuer
	readyProbe ReadyProbe
	opts       Options
	validate   *validator.Validate
}

// New wires the routes. issuer may be nil only in tests that exercise public routes.
func New(svc *kyc.Service, issuer *auth.Issuer, rp ReadyProbe, opts Options) (*API, error) {
	if svc == nil {
		return nil, errors.New("httpapi: kyc service is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		kyc:        svc,
		issuer:     issuer,
		readyProbe: rp,
		opts:       opts,
		validate:   newValidator(),
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())
	if a.opts.DevTokens {
		r.Post("/v1/auth/token", a.issueDevToken)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)

		r.Get("/v1/kyc/policies", a.listPolicies)
		r.Get("/v1/kyc/policies/{role}", a.getPolicy)

		r.With(RequirePermission(auth.PermKYCSubmit)).Post("/v1/kyc/submissions", a.submitKYC)
		r.With(RequirePermission(auth.PermKYCSubmit)).Post("/v1/kyc/uploads", a.presignUpload)
		r.With(RequirePermission(auth.PermKYCRead)).Get("/v1/kyc/cases/me", a.getOwnCase)

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.PermKYCReview))
			r.Get("/v1/kyc/cases", a.listCases)
			r.Get("/v1/kyc/cases/{id}", a.getCase)
			r.Post("/v1/kyc/decisions", a.decideKYC)
		})
	})
	a.router = r
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	h = CORS(a.opts.CORSOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	err := a.readyProbe.Check(ctx)
	obs.SetReady(err == nil)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
		"ready":   obs.Ready(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, map[string]any{"error": msg})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, payload map[string]any) {
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeValid decodes and runs struct validation. Errors are client errors.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.New(fe.Field() + " failed " + fe.Tag() + " validation")
		}
		return err
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, errors.New("value must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return v, nil
}
