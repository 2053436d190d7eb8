package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/simulate"
)

func newHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for SCOREBOARD_ADMIN_PASSWORD_HASH",
		Long:  "Hashes the password given as an argument, or the first line of stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	cfg := simulate.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with generated players and matches",
		Long: `Logs in as admin, creates players, records random matches (each resubmitted
with the same Idempotency-Key), then checks the server's consistency report
and every simulated player's totals. Exits non-zero when anything disagrees.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := simulate.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			t := newTable(cmd)
			t.Header("RUN", "PLAYERS", "MATCHES", "REPLAYS", "429s", "FAILED", "CONSISTENT", "DURATION")
			t.Append(report.RunID[:8], strconv.Itoa(report.PlayersCreated), strconv.Itoa(report.MatchesRecorded),
				strconv.Itoa(report.Replays), strconv.Itoa(report.Backpressured), strconv.Itoa(report.Failed),
				strconv.FormatBool(report.Consistent), report.Duration.Round(time.Millisecond).String())
			t.Render()

			for _, m := range report.Mismatches {
				fmt.Fprintln(out(cmd), "mismatch:", m)
			}
			if !report.OK() {
				return errors.New("simulation found problems")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "server base URL")
	f.StringVar(&cfg.Username, "username", cfg.Username, "admin username")
	f.StringVar(&cfg.Password, "password", cfg.Password, "admin password")
	f.IntVar(&cfg.Players, "players", cfg.Players, "players to create")
	f.IntVar(&cfg.Matches, "matches", cfg.Matches, "matches to record")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent requests")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per request timeout")
	f.IntVar(&cfg.Retries, "retries", cfg.Retries, "attempts per request on 429")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "lineup seed (0 picks one)")
	f.BoolVar(&cfg.Replay, "replay", cfg.Replay, "resubmit each match with its Idempotency-Key")
	return cmd
}
