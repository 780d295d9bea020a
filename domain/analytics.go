package domain

// RealtimeMetric is the number of users active in the last 30 minutes.
type RealtimeMetric struct {
	ActiveUsers int `json:"active_users" yaml:"active_users"`
}

// HistoricalSummary is a daily sessions/users series. Labels, Sessions and
// Users are index-aligned.
type HistoricalSummary struct {
	Labels        []string `json:"labels" yaml:"labels"`
	Sessions      []int    `json:"sessions" yaml:"sessions"`
	Users         []int    `json:"users" yaml:"users"`
	TotalSessions int      `json:"total_sessions" yaml:"total_sessions"`
	TotalUsers    int      `json:"total_users" yaml:"total_users"`
}

// NewHistoricalSummary returns an empty summary with non-nil sequences.
func NewHistoricalSummary(capacity int) *HistoricalSummary {
	return &HistoricalSummary{
		Labels:   make([]string, 0, capacity),
		Sessions: make([]int, 0, capacity),
		Users:    make([]int, 0, capacity),
	}
}

// Append adds one day and updates the totals.
func (s *HistoricalSummary) Append(label string, sessions, users int) {
	s.Labels = append(s.Labels, label)
	s.Sessions = append(s.Sessions, sessions)
	s.Users = append(s.Users, users)
	s.TotalSessions += sessions
	s.TotalUsers += users
}

// Len returns the number of days in the series.
func (s *HistoricalSummary) Len() int {
	return len(s.Labels)
}
