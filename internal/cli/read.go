package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/export"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/simulate"
)

func newTable(cmd *cobra.Command) *tablewriter.Table {
	return tablewriter.NewTable(out(cmd), tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))
}

func newLeaderboardCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print players ranked by wins, then elo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				rows, err := svc.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(out(cmd), "No players yet.")
					return nil
				}
				t := newTable(cmd)
				t.Header("#", "NAME", "GAMES", "W", "L", "PEN", "ELO", "WIN%")
				for _, r := range rows {
					t.Append(strconv.Itoa(r.Rank), r.Name, strconv.Itoa(r.TotalGames),
						strconv.Itoa(r.Wins), strconv.Itoa(r.Losses), strconv.Itoa(r.PenaltyCount),
						strconv.Itoa(r.Elo), r.WinRate)
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to print (0 uses the configured default)")
	return cmd
}

func newRolesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "roles <Liberal|Fascist|Hitler>",
		Short: "Print win rates for one role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				rows, err := svc.RoleTable(ctx, args[0])
				if err != nil {
					return err
				}
				t := newTable(cmd)
				t.Header("#", "NAME", "GAMES", "W", "L", "WIN%")
				for _, r := range rows {
					t.Append(strconv.Itoa(r.Rank), r.Name, strconv.Itoa(r.Games),
						strconv.Itoa(r.Wins), strconv.Itoa(r.Losses), r.WinRate)
				}
				t.Render()
				return nil
			})
		},
	}
}

func newMatchesCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Print the most recent matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				matches, err := svc.RecentMatches(ctx, limit)
				if err != nil {
					return err
				}
				t := newTable(cmd)
				t.Header("DATE", "ID", "WINNER", "PLAYERS")
				for _, m := range matches {
					t.Append(m.Date.Format("2006-01-02 15:04"), m.ID, string(m.Winner), export.Participants(m.Players))
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "matches to print (0 uses the configured default)")
	return cmd
}

func newCheckCmd(opts *options) *cobra.Command {
	remote := simulate.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare stored player rows with the match log",
		Long: `Recomputes every player's totals from the match log and lists each field that
disagrees. Exits non-zero on any drift.

With --url the check runs inside that server, between its writes. Without it
the store is opened directly, which is only reliable while no server is
writing to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if remote.BaseURL != "" {
				found, err := simulate.Consistency(cmd.Context(), remote)
				if err != nil {
					return err
				}
				return printDrift(cmd, found)
			}
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				found, err := svc.CheckConsistency(ctx)
				if err != nil {
					return err
				}
				return printDrift(cmd, found)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&remote.BaseURL, "url", "", "ask this running server instead of opening the store")
	f.StringVar(&remote.Username, "username", remote.Username, "admin username for --url")
	f.StringVar(&remote.Password, "password", "", "admin password for --url")
	f.DurationVar(&remote.Timeout, "timeout", remote.Timeout, "request timeout for --url")
	return cmd
}

func printDrift(cmd *cobra.Command, found []model.Discrepancy) error {
	if len(found) == 0 {
		fmt.Fprintln(out(cmd), "Consistent: stored rows match the match log.")
		return nil
	}
	t := newTable(cmd)
	t.Header("PLAYER", "FIELD", "STORED", "CALCULATED")
	for _, d := range found {
		t.Append(d.PlayerName, string(d.Field), strconv.Itoa(d.Stored), strconv.Itoa(d.Calculated))
	}
	t.Render()
	return fmt.Errorf("%w: %d discrepancies", ErrDrift, len(found))
}

func newExportCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export <leaderboard|roles|matches>",
		Short: "Write a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := export.ParseKind(args[0])
			if err != nil {
				return err
			}
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				if file == "" {
					return svc.Export(ctx, kind, out(cmd))
				}
				f, err := os.Create(file)
				if err != nil {
					return fmt.Errorf("create %s: %w", file, err)
				}
				if err := svc.Export(ctx, kind, f); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&file, "out", "o", "", "file to write (default stdout)")
	return cmd
}
