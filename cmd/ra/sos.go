package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/rapidaid/internal/config"
	"github.com/zulandar/rapidaid/internal/coordinator"
	"github.com/zulandar/rapidaid/internal/db"
	"github.com/zulandar/rapidaid/internal/identity"
	"github.com/zulandar/rapidaid/internal/intake"
	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/matcher"
	"github.com/zulandar/rapidaid/internal/models"
	"github.com/zulandar/rapidaid/internal/store"
)

// EnvToken supplies the caller's bearer token when --token is not given.
const EnvToken = "RAPIDAID_TOKEN"

func newSOSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sos",
		Short: "Submit, inspect and coordinate SOS requests",
	}

	cmd.AddCommand(newSOSSubmitCmd())
	cmd.AddCommand(newSOSListCmd())
	cmd.AddCommand(newSOSShowCmd())
	cmd.AddCommand(newSOSClaimCmd())
	cmd.AddCommand(newSOSResolveCmd())
	cmd.AddCommand(newSOSCandidatesCmd())
	cmd.AddCommand(newSOSHistoryCmd())
	return cmd
}

// session is an open store plus, for mutating commands, the resolved caller.
type session struct {
	cfg    *config.Config
	db     *gorm.DB
	store  *store.Gorm
	caller identity.Identity
}

func openSession(configPath string) (*session, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, db: gormDB, store: newStore(cfg, gormDB)}, nil
}

// authenticate resolves token (or $RAPIDAID_TOKEN) to an account.
func (s *session) authenticate(ctx context.Context, token string) error {
	if token == "" {
		token = os.Getenv(EnvToken)
	}
	if token == "" {
		return fmt.Errorf("a token is required (--token or $%s)", EnvToken)
	}
	id, err := identity.NewDBResolver(s.db, storeTimeout(s.cfg)).Resolve(ctx, token)
	if err != nil {
		return err
	}
	s.caller = id
	return nil
}

func (s *session) close() { db.Close(s.db) }

func addTokenFlag(cmd *cobra.Command, token *string) {
	cmd.Flags().StringVar(token, "token", "", "bearer token of the acting account (default $"+EnvToken+")")
}

func newSOSSubmitCmd() *cobra.Command {
	var (
		configPath  string
		token       string
		category    string
		description string
		lat, lon    float64
		address     string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new SOS request",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := context.Background()
			if err := s.authenticate(ctx, token); err != nil {
				return err
			}

			rec, err := intake.New(s.store).Submit(ctx, intake.SubmitOpts{
				ReporterID:  s.caller.ID,
				Category:    category,
				Description: description,
				Latitude:    lat,
				Longitude:   lon,
				Address:     address,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s (%s, %s)\n", rec.ID, rec.Category, statusLabel(rec.Status))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	addTokenFlag(cmd, &token)
	cmd.Flags().StringVar(&category, "category", "", "Medical, Trapped, Supplies or Other (required)")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude (required)")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude (required)")
	cmd.Flags().StringVar(&address, "address", "", "street address")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}

func newSOSListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		responder  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List SOS requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch status {
			case lifecycle.StatusPending, lifecycle.StatusAssigned, lifecycle.StatusResolved:
			case "all":
				status = ""
			default:
				return fmt.Errorf("unknown status %q (pending, assigned, resolved, all)", status)
			}

			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()

			recs, err := s.store.ListRequests(context.Background(), store.RequestFilter{
				Status:      status,
				ResponderID: responder,
				Limit:       limit,
			})
			if err != nil {
				return err
			}
			printRequests(cmd.OutOrStdout(), recs, time.Now())
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&status, "status", lifecycle.StatusPending, "pending, assigned, resolved or all")
	cmd.Flags().StringVar(&responder, "responder", "", "only requests assigned to this responder")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 = no limit)")
	return cmd
}

func newSOSShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one SOS request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()

			rec, err := s.store.GetRequest(context.Background(), args[0])
			if err != nil {
				return err
			}
			printRequest(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSOSClaimCmd() *cobra.Command {
	var (
		configPath string
		token      string
		responder  string
	)

	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Assign a pending request to a responder",
		Long:  "Assigns the request to --responder, or to the acting account when omitted. Volunteers may only claim for themselves.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := context.Background()
			if err := s.authenticate(ctx, token); err != nil {
				return err
			}
			if responder == "" {
				responder = s.caller.ID
			}

			rec, err := coordinator.New(s.store).Claim(ctx, args[0], responder, s.caller.Caller())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s to %s\n", rec.ID, statusLabel(rec.Status), rec.AssignedResponderID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	addTokenFlag(cmd, &token)
	cmd.Flags().StringVar(&responder, "responder", "", "responder to assign (default: the acting account)")
	return cmd
}

func newSOSResolveCmd() *cobra.Command {
	var (
		configPath string
		token      string
	)

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an assigned request resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := context.Background()
			if err := s.authenticate(ctx, token); err != nil {
				return err
			}

			rec, err := coordinator.New(s.store).Resolve(ctx, args[0], s.caller.Caller())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", rec.ID, statusLabel(rec.Status))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	addTokenFlag(cmd, &token)
	return cmd
}

func newSOSCandidatesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "candidates <id>",
		Short: "List available responders for a request, nearest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := context.Background()

			rec, err := s.store.GetRequest(ctx, args[0])
			if err != nil {
				return err
			}
			cands, err := matcher.New(s.store, s.cfg.Matcher.MaxCandidates).FindCandidates(ctx, rec)
			if err != nil {
				return err
			}
			printCandidates(cmd.OutOrStdout(), cands)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSOSHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the event history of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(configPath)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := context.Background()

			if _, err := s.store.GetRequest(ctx, args[0]); err != nil {
				return err
			}
			events, err := s.store.ListEvents(ctx, args[0])
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// statusLabel colors a status for terminal output. fatih/color disables
// itself when stdout is not a terminal.
func statusLabel(status string) string {
	switch status {
	case lifecycle.StatusPending:
		return color.New(color.FgYellow).Sprint(status)
	case lifecycle.StatusAssigned:
		return color.New(color.FgCyan).Sprint(status)
	case lifecycle.StatusResolved:
		return color.New(color.FgHiGreen).Sprint(status)
	default:
		return status
	}
}

func printRequests(out io.Writer, recs []models.SOSRequest, now time.Time) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No requests found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tSTATUS\tRESPONDER\tAGE\tDESCRIPTION")
	for _, r := range recs {
		responder := r.AssignedResponderID
		if responder == "" {
			responder = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Category, statusLabel(r.Status), responder, formatAge(now.Sub(r.CreatedAt)), truncate(r.Description, 40))
	}
	w.Flush()
}

func printRequest(out io.Writer, r *models.SOSRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", r.ID)
	fmt.Fprintf(w, "Status:\t%s\n", statusLabel(r.Status))
	fmt.Fprintf(w, "Category:\t%s\n", r.Category)
	fmt.Fprintf(w, "Description:\t%s\n", r.Description)
	fmt.Fprintf(w, "Reporter:\t%s\n", r.ReporterID)
	fmt.Fprintf(w, "Location:\t%.5f, %.5f\n", r.Location.Latitude, r.Location.Longitude)
	if r.Location.Address != "" {
		fmt.Fprintf(w, "Address:\t%s\n", r.Location.Address)
	}
	if r.AssignedResponderID != "" {
		fmt.Fprintf(w, "Responder:\t%s\n", r.AssignedResponderID)
	}
	fmt.Fprintf(w, "Created:\t%s\n", r.CreatedAt.Format(time.RFC3339))
	if r.AssignedAt != nil {
		fmt.Fprintf(w, "Assigned:\t%s\n", r.AssignedAt.Format(time.RFC3339))
	}
	if r.ResolvedAt != nil {
		fmt.Fprintf(w, "Resolved:\t%s\n", r.ResolvedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Version:\t%d\n", r.Version)
	w.Flush()
}

func printCandidates(out io.Writer, cands []matcher.Candidate) {
	if len(cands) == 0 {
		fmt.Fprintln(out, "No available responders.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tDISTANCE\tCONTACT")
	for _, c := range cands {
		dist := "-"
		if c.DistanceKm != nil {
			dist = fmt.Sprintf("%.1f km", *c.DistanceKm)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.DisplayName, c.Role, dist, c.Contact)
	}
	w.Flush()
}

func printEvents(out io.Writer, events []models.RequestEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tACTOR\tTRANSITION")
	for _, e := range events {
		from := e.FromStatus
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s -> %s\n", e.CreatedAt.Format(time.RFC3339), e.Event, e.ActorID, from, e.ToStatus)
	}
	w.Flush()
}

// formatAge renders a duration compactly ("45s", "12m", "3h", "2d").
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
