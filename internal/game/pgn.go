package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// SANList returns the session's moves in SAN.
func SANList(s *domain.Session) []string {
	out := make([]string, 0, len(s.Moves))
	for _, mv := range s.Moves {
		out = append(out, mv.SAN)
	}
	return out
}

// UCIList returns the session's moves in UCI.
func UCIList(s *domain.Session) []string {
	out := make([]string, 0, len(s.Moves))
	for _, mv := range s.Moves {
		out = append(out, mv.UCI)
	}
	return out
}

// BuildPGN renders headers and numbered SAN movetext.
func BuildPGN(s *domain.Session, whiteName, blackName string) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	date := s.StartedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := s.Result
	if result == "" {
		result = domain.ResultOngoing
	}
	b.WriteString("[Event \"Cheese Arena\"]\n")
	b.WriteString("[Site \"cheese-arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(whiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(blackName)))
	if s.FinishReason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(s.FinishReason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	san := SANList(s)
	for i := 0; i < len(san); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(san[i])))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
