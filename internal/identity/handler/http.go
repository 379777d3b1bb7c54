package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/service"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/oauth"
	"auth-gateway/internal/security"
	"auth-gateway/internal/server/middleware"
	"auth-gateway/internal/session"
)

const maxRequestBody = 1 << 16

// Redirect error codes appended to {frontend}/login?error=.
const (
	codeInvalidState   = "invalid_state"
	codeSessionExpired = "session_expired"
	codeServerError    = "server_error"
)

// Accounts is the local-account and profile surface of the identity service.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	IssueFor(view *domain.ProfileView) (*service.AuthResult, error)
	Me(ctx context.Context, ref domain.Reference) (*domain.ProfileView, error)
	Connection(ctx context.Context, ref domain.Reference, provider string) (*domain.ExternalIdentity, error)
}

// ProfileReconciler maps a provider profile to exactly one identity.
type ProfileReconciler interface {
	Reconcile(ctx context.Context, p *domain.ExternalProfile) (domain.Reference, error)
}

// Options configures redirect targets and handshake cookies.
type Options struct {
	FrontendURL string
	Cookie      session.CookieOptions
}

// AuthHandler serves the /api/auth routes.
type AuthHandler struct {
	accounts   Accounts
	reconciler ProfileReconciler
	bridge     *session.Bridge
	providers  *oauth.Registry
	opts       Options
	log        *zap.Logger
}

func NewAuthHandler(accounts Accounts, reconciler ProfileReconciler, bridge *session.Bridge, providers *oauth.Registry, opts Options, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		reconciler: reconciler,
		bridge:     bridge,
		providers:  providers,
		opts:       opts,
		log:        logger.OrNop(log),
	}
}

// Routes mounts the auth endpoints on r. Protected routes go through gate.
func (h *AuthHandler) Routes(r chi.Router, gate *middleware.Gate) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireAuth)
		r.Get("/me", h.me)
		r.Get("/{provider}/connection", h.connection)
	})
	r.Get("/{provider}", h.beginOAuth)
	r.Get("/{provider}/callback", h.oauthCallback)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *domain.ProfileView `json:"user"`
	Token string              `json:"token"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: res.User, Token: res.Token})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: res.User, Token: res.Token})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	ref, ok := middleware.GetReference(r.Context())
	if !ok {
		h.writeError(w, r, service.ErrUnauthorized)
		return
	}
	view, err := h.accounts.Me(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": view})
}

type connectionResponse struct {
	Connected         bool            `json:"connected"`
	ProviderSubjectID string          `json:"provider_subject_id,omitempty"`
	UpdatedAt         *time.Time      `json:"updated_at,omitempty"`
	Profile           json.RawMessage `json:"profile,omitempty"`
}

func (h *AuthHandler) connection(w http.ResponseWriter, r *http.Request) {
	ref, ok := middleware.GetReference(r.Context())
	if !ok {
		h.writeError(w, r, service.ErrUnauthorized)
		return
	}
	ext, err := h.accounts.Connection(r.Context(), ref, chi.URLParam(r, "provider"))
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(w, http.StatusOK, connectionResponse{Connected: false})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := connectionResponse{Connected: true, ProviderSubjectID: ext.SubjectID, UpdatedAt: &ext.UpdatedAt}
	// The stored blob also holds the provider access token; only the profile is returned.
	var blob domain.Blob
	if len(ext.RawProfile) > 0 && json.Unmarshal(ext.RawProfile, &blob) == nil && len(blob.Profile) > 0 {
		resp.Profile = blob.Profile
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) beginOAuth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, err := h.providers.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}
	sess, err := h.bridge.Begin(r.Context(), p.Name())
	if err != nil {
		h.log.Error("oauth: begin handshake", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, codeServerError)
		return
	}
	session.SetCookie(w, sess.ID, sess.ExpiresAt, h.opts.Cookie)
	http.Redirect(w, r, p.AuthCodeURL(sess.State, sess.CodeVerifier), http.StatusFound)
}

func (h *AuthHandler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	p, err := h.providers.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}
	failed := name + "_auth_failed"

	sid := session.FromRequest(r)
	// The handshake is single-use whatever the outcome.
	defer func() {
		if err := h.bridge.Discard(context.WithoutCancel(ctx), sid); err != nil {
			h.log.Warn("oauth: discard handshake", zap.Error(err))
		}
	}()
	session.ClearCookie(w, h.opts.Cookie)

	sess, err := h.bridge.Load(ctx, sid)
	if errors.Is(err, session.ErrSessionNotFound) {
		h.redirectError(w, r, codeSessionExpired)
		return
	}
	if err != nil {
		h.log.Error("oauth: load handshake", zap.Error(err))
		h.redirectError(w, r, codeServerError)
		return
	}

	q := r.URL.Query()
	if sess.Provider != p.Name() || !security.StateEqual(q.Get("state"), sess.State) {
		h.log.Info("oauth: state mismatch", zap.String("provider", name))
		h.redirectError(w, r, codeInvalidState)
		return
	}
	if e := q.Get("error"); e != "" || q.Get("code") == "" {
		h.log.Info("oauth: provider returned no code", zap.String("provider", name), zap.String("error", e))
		h.redirectError(w, r, failed)
		return
	}

	profile, err := p.Exchange(ctx, q.Get("code"), sess.CodeVerifier)
	if err != nil {
		h.log.Warn("oauth: exchange failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, failed)
		return
	}
	ref, err := h.reconciler.Reconcile(ctx, profile)
	if errors.Is(err, service.ErrProviderAuthFailed) {
		h.redirectError(w, r, failed)
		return
	}
	if err != nil {
		h.log.Error("oauth: reconcile", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, codeServerError)
		return
	}
	if err := h.bridge.Attach(ctx, sess, ref); err != nil {
		h.log.Error("oauth: attach identity", zap.Error(err))
		h.redirectError(w, r, codeServerError)
		return
	}
	view, err := h.bridge.Resolve(ctx, sess.ID)
	if err != nil {
		h.log.Error("oauth: resolve identity", zap.Stringer("ref", ref), zap.Error(err))
		h.redirectError(w, r, codeServerError)
		return
	}
	res, err := h.accounts.IssueFor(view)
	if err != nil {
		h.log.Error("oauth: issue token", zap.Stringer("ref", ref), zap.Error(err))
		h.redirectError(w, r, codeServerError)
		return
	}
	target := h.opts.FrontendURL + "/auth/callback#token=" + url.QueryEscape(res.Token)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.opts.FrontendURL+"/login?error="+url.QueryEscape(code), http.StatusFound)
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps service errors to status codes. Storage and unexpected
// errors are logged and answered with a generic body.
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user already exists"})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
