// Package simulate drives a running scoreboard over HTTP with generated
// players and matches, then checks the stored totals against what it sent.
package simulate

import (
	"runtime"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Username string        // Admin username
	Password string        // Admin password
	Players  int           // Players to create
	Matches  int           // Matches to record
	Workers  int           // Concurrent requests
	Timeout  time.Duration // Per request timeout
	Retries  int           // Attempts per request on 429
	Seed     uint64        // Lineup seed; zero picks one from the clock
	Replay   bool          // Resubmit every match with its Idempotency-Key
}

// DefaultConfig returns the settings used when flags are left unset.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:9080",
		Username: "admin",
		Players:  12,
		Matches:  200,
		Workers:  runtime.NumCPU() * 2,
		Timeout:  10 * time.Second,
		Retries:  5,
		Replay:   true,
	}
}

// Report summarises a simulation run.
type Report struct {
	RunID           string        `json:"runId"`
	PlayersCreated  int           `json:"playersCreated"`
	MatchesRecorded int           `json:"matchesRecorded"`
	Replays         int           `json:"replays"`
	ReplayMismatch  int           `json:"replayMismatch"`
	Backpressured   int           `json:"backpressured"`
	Failed          int           `json:"failed"`
	Consistent      bool          `json:"consistent"`
	Mismatches      []string      `json:"mismatches,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// OK reports whether every match landed once and the totals agree.
func (r Report) OK() bool {
	return r.Failed == 0 && r.ReplayMismatch == 0 && r.Consistent && len(r.Mismatches) == 0
}
