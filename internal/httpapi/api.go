package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var ErrUnauthorized = errors.New("unauthorized")

const maxBodyBytes = 16 << 10

type ctxKey struct{}

type Deps struct {
	Hub          *arena.Hub
	Issuer       *identity.Issuer
	Verifier     identity.Verifier
	AllowDevAuth bool
	Metrics      *metrics.Metrics
	Messages     *msgcat.Catalog
	LogLevel     http.Handler
	Logger       *zap.Logger
}

// API serves the query and lobby surface.
type API struct {
	hub      *arena.Hub
	issuer   *identity.Issuer
	verifier identity.Verifier
	allowDev bool
	metrics  *metrics.Metrics
	messages *msgcat.Catalog
	logLevel http.Handler
	log      *zap.Logger
}

func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &API{
		hub:      d.Hub,
		issuer:   d.Issuer,
		verifier: d.Verifier,
		allowDev: d.AllowDevAuth,
		metrics:  d.Metrics,
		messages: d.Messages,
		logLevel: d.LogLevel,
		log:      d.Logger,
	}
}

// Authenticate resolves the session token on r to a known user id.
func (a *API) Authenticate(r *http.Request) (string, error) {
	tok := identity.TokenFromRequest(r)
	if tok == "" {
		return "", ErrUnauthorized
	}
	claims, err := a.issuer.Parse(tok)
	if err != nil {
		return "", ErrUnauthorized
	}
	ok, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (bool, error) {
		_, ok := c.User(claims.UserID)
		return ok, nil
	})
	if err != nil || !ok {
		return "", ErrUnauthorized
	}
	return claims.UserID, nil
}

func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := a.Authenticate(r)
		if err != nil {
			a.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

func userFrom(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var ae *arena.Error
	switch {
	case errors.As(err, &ae):
		writeJSON(w, ae.HTTPStatus(), arenadto.Error{Code: ae.Code, Message: ae.Message})
	case errors.Is(err, ErrUnauthorized), errors.Is(err, identity.ErrInvalidCredential), errors.Is(err, identity.ErrMissingSubject):
		writeJSON(w, http.StatusUnauthorized, arenadto.Error{Code: "unauthorized", Message: a.messages.Text("errors.unauthorized", nil, "unauthorized")})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, arena.ErrHubClosed):
		writeJSON(w, http.StatusServiceUnavailable, arenadto.Error{Code: arena.CodeInternal, Message: a.messages.Text("errors.internal", nil, "internal error")})
	default:
		a.log.Error("http_request_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, arenadto.Error{Code: arena.CodeInternal, Message: a.messages.Text("errors.internal", nil, "internal error")})
	}
}

// decode reads a JSON body; an empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &arena.Error{Kind: arena.KindValidation, Code: arena.CodeBadRequest, Message: "invalid JSON body", Err: err}
	}
	return nil
}

func (a *API) issueToken(w http.ResponseWriter, u domain.User) {
	tok, err := a.issuer.Issue(u.ID, u.Subject, u.DisplayName)
	if err != nil {
		a.writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    tok,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.issuer.TTL().Seconds()),
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, arenadto.AuthResponse{
		Token: tok,
		User:  arenadto.Player{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL},
	})
}
