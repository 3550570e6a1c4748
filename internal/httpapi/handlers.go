package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) config(w http.ResponseWriter, r *http.Request) {
	tz, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (string, error) { return c.TimeZone(), nil })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, arenadto.Config{AllowDevAuth: a.allowDev, TokenExchange: a.verifier != nil, TimeZone: tz})
}

func (a *API) devSignIn(w http.ResponseWriter, r *http.Request) {
	if !a.allowDev {
		http.NotFound(w, r)
		return
	}
	var in struct {
		DisplayName string `json:"displayName"`
	}
	if err := decode(r, &in); err != nil {
		a.writeError(w, err)
		return
	}
	a.signIn(w, r, identity.DevIdentity(in.DisplayName))
}

func (a *API) exchangeToken(w http.ResponseWriter, r *http.Request) {
	if a.verifier == nil {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Credential string `json:"credential"`
	}
	if err := decode(r, &in); err != nil {
		a.writeError(w, err)
		return
	}
	id, err := a.verifier.Verify(r.Context(), in.Credential)
	if err != nil {
		a.log.Info("http_auth_rejected", zap.Error(err))
		a.writeError(w, err)
		return
	}
	a.signIn(w, r, id)
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	u, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (domain.User, error) { return c.UpsertIdentity(id) })
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.issueToken(w, u)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context())
	me, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.Me, error) { return c.Me(uid) })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context())
	items, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) ([]arenadto.HistoryItem, error) { return c.History(uid), nil })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) session(w http.ResponseWriter, r *http.Request) {
	uid, id := userFrom(r.Context()), chi.URLParam(r, "id")
	st, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.SessionState, error) { return c.SessionFor(uid, id) })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) waiting(w http.ResponseWriter, r *http.Request) {
	q, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.QueueSnapshot, error) { return c.Waiting(), nil })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) joinQueue(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context())
	a.lobbyAction(w, r, func(c *arena.Coordinator) error { return c.JoinQueue(uid) })
}

func (a *API) leaveQueue(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context())
	a.lobbyAction(w, r, func(c *arena.Coordinator) error { return c.LeaveQueue(uid) })
}

// lobbyAction runs fn and answers with the resulting waiting list.
func (a *API) lobbyAction(w http.ResponseWriter, r *http.Request, fn func(*arena.Coordinator) error) {
	q, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.QueueSnapshot, error) {
		if err := fn(c); err != nil {
			return arenadto.QueueSnapshot{}, err
		}
		return c.Waiting(), nil
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) createChallenge(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context())
	var in struct {
		ToUserID string `json:"toUserId"`
	}
	if err := decode(r, &in); err != nil {
		a.writeError(w, err)
		return
	}
	ch, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.Challenge, error) {
		return c.CreateChallenge(uid, strings.TrimSpace(in.ToUserID))
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (a *API) respondChallenge(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context())
	var in struct {
		ChallengeID string `json:"challengeId"`
		Accept      *bool  `json:"accept"`
	}
	if err := decode(r, &in); err != nil {
		a.writeError(w, err)
		return
	}
	if strings.TrimSpace(in.ChallengeID) == "" || in.Accept == nil {
		a.writeError(w, &arena.Error{Kind: arena.KindValidation, Code: arena.CodeBadRequest, Message: a.messages.Text("errors.bad_request", nil, "bad request")})
		return
	}
	accept := *in.Accept
	sid, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (string, error) {
		s, err := c.RespondChallenge(uid, strings.TrimSpace(in.ChallengeID), accept)
		if err != nil || s == nil {
			return "", err
		}
		return s.ID, nil
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": accept, "sessionId": sid})
}

func (a *API) globalBoard(w http.ResponseWriter, r *http.Request) {
	b, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.Leaderboard, error) { return c.GlobalBoard(), nil })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) dailyBoard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	b, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.Leaderboard, error) { return c.DailyBoard(date), nil })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) dailyWinner(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	win, err := arena.Call(r.Context(), a.hub, func(c *arena.Coordinator) (arenadto.DailyWinner, error) { return c.DailyWinner(date), nil })
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}
