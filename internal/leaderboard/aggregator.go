package leaderboard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

const (
	ScopeGlobal = "global"
	ScopeDaily  = "daily"

	dateLayout = "2006-01-02"
)

var dateKeyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ProfileFunc resolves a user id to its public profile.
type ProfileFunc func(userID string) arenadto.Player

// Aggregator ranks users globally and per local calendar day.
type Aggregator struct {
	loc *time.Location

	mu       sync.Mutex
	collator *collate.Collator
}

// New builds an aggregator for the IANA zone tz and a BCP 47 locale used to
// order display names.
func New(tz, locale string) (*Aggregator, error) {
	if strings.TrimSpace(tz) == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	tag := language.Und
	if strings.TrimSpace(locale) != "" {
		if tag, err = language.Parse(locale); err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", locale, err)
		}
	}
	return &Aggregator{loc: loc, collator: collate.New(tag, collate.IgnoreCase)}, nil
}

func (a *Aggregator) Location() *time.Location { return a.loc }

type row struct {
	arenadto.LeaderboardRow
}

// Global ranks every user with a stats row.
func (a *Aggregator) Global(stats []*domain.Stats, profile ProfileFunc) arenadto.Leaderboard {
	rows := make([]*row, 0, len(stats))
	for _, st := range stats {
		if st == nil {
			continue
		}
		p := profileOf(profile, st.UserID)
		rows = append(rows, &row{arenadto.LeaderboardRow{
			UserID:      st.UserID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Wins:        st.Wins,
			Losses:      st.Losses,
			Draws:       st.Draws,
			GamesTotal:  st.GamesTotal,
			Points:      game.Points(st.Wins, st.Draws),
		}})
	}
	a.sort(rows, false)
	return arenadto.Leaderboard{Scope: ScopeGlobal, Rows: ranked(rows)}
}

// DateKey validates a YYYY-MM-DD key, falling back to today in the configured zone.
func (a *Aggregator) DateKey(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if dateKeyRe.MatchString(raw) {
		if _, err := time.ParseInLocation(dateLayout, raw, a.loc); err == nil {
			return raw
		}
	}
	return now.In(a.loc).Format(dateLayout)
}

// Daily replays sessions finished on the local day dateKey.
func (a *Aggregator) Daily(sessions []*domain.Session, dateKey string, now time.Time, profile ProfileFunc) arenadto.Leaderboard {
	key := a.DateKey(dateKey, now)
	byUser := make(map[string]*row)
	get := func(id string) *row {
		r, ok := byUser[id]
		if !ok {
			p := profileOf(profile, id)
			r = &row{arenadto.LeaderboardRow{UserID: id, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}}
			byUser[id] = r
		}
		return r
	}
	for _, s := range sessions {
		if s == nil || s.Status != domain.StatusFinished || s.FinishedAt == nil {
			continue
		}
		if s.FinishedAt.In(a.loc).Format(dateLayout) != key {
			continue
		}
		at := *s.FinishedAt
		white, black := get(s.WhiteID), get(s.BlackID)
		switch s.Result {
		case domain.ResultWhiteWon:
			white.Wins++
			black.Losses++
			white.touch(at)
		case domain.ResultBlackWon:
			black.Wins++
			white.Losses++
			black.touch(at)
		case domain.ResultDraw:
			white.Draws++
			black.Draws++
			white.touch(at)
			black.touch(at)
		default:
			continue
		}
		white.GamesTotal++
		black.GamesTotal++
	}
	rows := make([]*row, 0, len(byUser))
	for _, r := range byUser {
		r.Points = game.Points(r.Wins, r.Draws)
		rows = append(rows, r)
	}
	a.sort(rows, true)
	return arenadto.Leaderboard{Scope: ScopeDaily, Date: key, TimeZone: a.loc.String(), Rows: ranked(rows)}
}

// Winner is the first row of a daily board, or nil when nobody played.
func Winner(board arenadto.Leaderboard) *arenadto.LeaderboardRow {
	if len(board.Rows) == 0 {
		return nil
	}
	w := board.Rows[0]
	return &w
}

func (r *row) touch(at time.Time) {
	if r.LastPointAt == nil || at.After(*r.LastPointAt) {
		t := at
		r.LastPointAt = &t
	}
}

func (a *Aggregator) sort(rows []*row, byLastPoint bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sort.SliceStable(rows, func(i, j int) bool {
		x, y := rows[i], rows[j]
		if x.Points != y.Points {
			return x.Points > y.Points
		}
		// daily boards rank the earlier last point-earning finish above win count
		if byLastPoint {
			switch {
			case x.LastPointAt != nil && y.LastPointAt == nil:
				return true
			case x.LastPointAt == nil && y.LastPointAt != nil:
				return false
			case x.LastPointAt != nil && !x.LastPointAt.Equal(*y.LastPointAt):
				return x.LastPointAt.Before(*y.LastPointAt)
			}
		} else if x.Wins != y.Wins {
			return x.Wins > y.Wins
		}
		if x.Losses != y.Losses {
			return x.Losses < y.Losses
		}
		if c := a.collator.CompareString(x.DisplayName, y.DisplayName); c != 0 {
			return c < 0
		}
		return x.UserID < y.UserID
	})
}

func ranked(rows []*row) []arenadto.LeaderboardRow {
	out := make([]arenadto.LeaderboardRow, 0, len(rows))
	for i, r := range rows {
		r.Rank = i + 1
		out = append(out, r.LeaderboardRow)
	}
	return out
}

func profileOf(profile ProfileFunc, id string) arenadto.Player {
	if profile == nil {
		return arenadto.Player{ID: id, DisplayName: id}
	}
	return profile(id)
}
