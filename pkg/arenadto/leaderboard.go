package arenadto

import "time"

type LeaderboardRow struct {
	Rank        int        `json:"rank"`
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Wins        int        `json:"wins"`
	Losses      int        `json:"losses"`
	Draws       int        `json:"draws"`
	GamesTotal  int        `json:"gamesTotal"`
	Points      int        `json:"points"`
	LastPointAt *time.Time `json:"lastPointAt,omitempty"`
}

type Leaderboard struct {
	Scope    string           `json:"scope"`
	Date     string           `json:"date,omitempty"`
	TimeZone string           `json:"timeZone,omitempty"`
	Rows     []LeaderboardRow `json:"rows"`
}

type DailyWinner struct {
	Date     string          `json:"date"`
	TimeZone string          `json:"timeZone"`
	Winner   *LeaderboardRow `json:"winner"`
}
