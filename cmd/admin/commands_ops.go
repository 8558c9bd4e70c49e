package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/adapters/calendar"
	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/session"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/repository"
	"github.com/ClareAI/astra-receptionist-service/pkg/redis"
	"github.com/spf13/cobra"
)

// =============================================================================
// Sweep Command
// =============================================================================

// liveCalls is the registry view used by the sweeper
type liveCalls interface {
	List(ctx context.Context) ([]session.LiveCall, error)
	NotifyCleanup(ctx context.Context, msg session.CleanupMessage) error
}

func buildSweepCmd() *cobra.Command {
	var idle time.Duration
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Ask the owning pods to end calls that have been live too long",
		Long: `List live calls in the shared registry and broadcast a cleanup for each
call older than --idle. The pod owning the call finalizes it as failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.RedisHost == "" {
				return fmt.Errorf("REDIS_HOST is not set")
			}
			redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			if err != nil {
				return err
			}
			defer redisSvc.Close()

			swept, err := sweepRegistry(cmd.Context(), session.NewRegistry(redisSvc, "admin"), idle, time.Now(), dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range swept {
				fmt.Fprintf(out, "%s\t%s\tstarted %s\n", c.CallID, c.PodID, c.StartTime.Format(time.RFC3339))
			}
			verb := "Swept"
			if dryRun {
				verb = "Would sweep"
			}
			fmt.Fprintf(out, "%s %d calls\n", verb, len(swept))
			return nil
		},
	}
	cmd.Flags().DurationVar(&idle, "idle", config.DefaultStaleCallAfter, "End calls live for longer than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List stale calls without ending them")
	return cmd
}

// sweepRegistry broadcasts a failed cleanup for every call started before
// now-idle and returns those calls
func sweepRegistry(ctx context.Context, reg liveCalls, idle time.Duration, now time.Time, dryRun bool) ([]session.LiveCall, error) {
	calls, err := reg.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live calls: %w", err)
	}

	cutoff := now.Add(-idle)
	var stale []session.LiveCall
	for _, c := range calls {
		if c.StartTime.IsZero() || c.StartTime.After(cutoff) {
			continue
		}
		if !dryRun {
			msg := session.CleanupMessage{
				CallID:          c.CallID,
				Status:          domain.TelephonyStatusFailed,
				DurationSeconds: int(now.Sub(c.StartTime).Seconds()),
			}
			if err := reg.NotifyCleanup(ctx, msg); err != nil {
				return stale, fmt.Errorf("failed to broadcast cleanup for %s: %w", c.CallID, err)
			}
		}
		stale = append(stale, c)
	}
	return stale, nil
}

// =============================================================================
// Policy Commands
// =============================================================================

func buildPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate receptionist policy files",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the policy file",
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := config.PolicySchemaJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			},
		},
		&cobra.Command{
			Use:   "validate [file]",
			Short: "Validate a policy file against the schema",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				policy, err := config.ParsePolicy(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Policy %s is valid\n", policy.Version)
				return nil
			},
		},
	)
	return cmd
}

// =============================================================================
// Business Commands
// =============================================================================

func buildBusinessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Show or update who the receptionist answers for",
	}
	cmd.AddCommand(buildBusinessShowCmd(), buildBusinessSetCmd())
	return cmd
}

func buildBusinessShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active business configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := repository.NewRepositoryManager()
			if err != nil {
				return err
			}
			defer repos.Close()

			active, err := repos.Business().GetActive(cmd.Context())
			if err != nil {
				return err
			}
			if active == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No business configuration stored; environment defaults apply")
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), active)
		},
	}
}

func buildBusinessSetCmd() *cobra.Command {
	var ceo, company, description string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a new business configuration",
		Long:  "Store a new business configuration. Running services pick it up on their next refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ceo == "" && company == "" && description == "" {
				return fmt.Errorf("at least one of --ceo, --company or --description is required")
			}
			repos, err := repository.NewRepositoryManager()
			if err != nil {
				return err
			}
			defer repos.Close()

			cfg := &domain.BusinessConfig{CEOName: ceo, CompanyName: company, CompanyDescription: description}
			if err := repos.Business().Save(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved business configuration %s\n", cfg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&ceo, "ceo", "", "Name of the person calls are screened for")
	cmd.Flags().StringVar(&company, "company", "", "Company name")
	cmd.Flags().StringVar(&description, "description", "", "One-line company description")
	return cmd
}

// =============================================================================
// Calendar Commands
// =============================================================================

func buildCalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Connect the Google Calendar used for scheduling",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "auth-url",
			Short: "Print the consent URL for connecting a calendar",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCalendar(cmd, func(client *calendar.Client) error {
					fmt.Fprintln(cmd.OutOrStdout(), client.AuthURL("receptionist-admin"))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "connect [code]",
			Short: "Exchange an authorization code and store the token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCalendar(cmd, func(client *calendar.Client) error {
					if err := client.Exchange(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Calendar connected")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether a calendar token is stored",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCalendar(cmd, func(client *calendar.Client) error {
					if client.Connected(cmd.Context()) {
						fmt.Fprintln(cmd.OutOrStdout(), "connected")
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "not connected")
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withCalendar(cmd *cobra.Command, fn func(*calendar.Client) error) error {
	cfg := loadConfig()
	if cfg.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is not set")
	}
	repos, err := repository.NewRepositoryManager()
	if err != nil {
		return err
	}
	defer repos.Close()

	return fn(calendar.NewClient(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		UserID:       cfg.CalendarUserID,
	}, repos.CalendarTokens()))
}

// =============================================================================
// Stats Command
// =============================================================================

func buildStatsCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count recent calls by decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := repository.NewRepositoryManager()
			if err != nil {
				return err
			}
			defer repos.Close()

			counts, err := repos.CallRecords().CountByDecision(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			printDecisionCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Only count calls started within this window")
	return cmd
}

func printDecisionCounts(out io.Writer, counts map[domain.Decision]int64) {
	decisions := make([]string, 0, len(counts))
	var total int64
	for d, n := range counts {
		decisions = append(decisions, string(d))
		total += n
	}
	sort.Strings(decisions)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DECISION\tCALLS")
	for _, d := range decisions {
		fmt.Fprintf(w, "%s\t%d\n", d, counts[domain.Decision(d)])
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
