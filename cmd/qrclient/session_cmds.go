package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/yeremiapane/restaurant-qr/notification"
	"github.com/yeremiapane/restaurant-qr/session"
)

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// NewScanCmd creates the scan command
func NewScanCmd() *cobra.Command {
	var redirect string

	cmd := &cobra.Command{
		Use:   "scan [qr-url]",
		Short: "Open a table session from a scanned QR URL",
		Long: `Open a table session from the URL encoded in a table's QR code.

The URL must carry the table and session query parameters. When a session is
already active the scan is skipped.

Examples:
  qrclient scan "http://localhost:3000/?table=12&session=AbCdEfGh12"
  qrclient scan "http://localhost:3000/?table=12&session=AbCdEfGh12" --redirect /menu/:tableId`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}
			if !session.HasQRParams(u) {
				return errors.New("URL has no table and session parameters")
			}
			if _, err := a.startup(cmd); err != nil {
				return err
			}

			h := session.NewIntakeHandler(a.store, session.IntakeOptions{
				AutoRedirect: redirect != "",
				RedirectPath: redirect,
				Navigate: func(target string) {
					fmt.Fprintf(cmd.OutOrStdout(), "Continue at %s\n", target)
				},
				OnError: func(message string) {
					fmt.Fprintln(cmd.ErrOrStderr(), message)
				},
			})
			sess, err := h.Handle(cmd.Context(), u)
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "An active session is already open, scan skipped.")
				return printJSON(cmd.OutOrStdout(), a.store.Current())
			}
			return printJSON(cmd.OutOrStdout(), sess)
		},
	}

	cmd.Flags().StringVar(&redirect, "redirect", "", "Path to continue at after the scan, :tableId is substituted")
	return cmd
}

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			sess, err := a.store.LoadStored(cmd.Context())
			if errors.Is(err, session.ErrNoSession) {
				return errNoSession
			}
			if err != nil {
				return err
			}
			out := map[string]interface{}{"session": sess}
			if customer, err := a.store.LoyaltyCustomer(cmd.Context()); err == nil && customer != nil {
				out["loyalty_customer"] = customer
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the stored session against the backend",
		Long: `Check the stored session against the backend, the same way the app does
on startup. A completed session is kept read-only, an expired or unknown one
is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			outcome, err := a.startup(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Outcome: %s\n", outcome)
			if cur := a.store.Current(); cur != nil {
				return printJSON(cmd.OutOrStdout(), cur)
			}
			return nil
		},
	}
}

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	var (
		interval time.Duration
		role     string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session until it is completed",
		Long: `Follow the current session: print every push notification and poll the
backend until the session is paid, ended or expired.

Staff can pass --role to follow a role room instead (requires login).

Examples:
  qrclient watch
  qrclient watch --interval 10s
  qrclient watch --role staff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if role != "" && role != notification.RoleCustomer {
				return watchRole(cmd, a, role)
			}
			return watchSession(cmd, a, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", session.DefaultPollInterval, "Polling interval while the session is active")
	cmd.Flags().StringVar(&role, "role", "", "Follow a staff role room (staff, chef, admin)")
	return cmd
}

func printNotification(w io.Writer, n notification.Notification) {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", ts.Format("15:04:05"), n.Type, n.Message)
}

func watchSession(cmd *cobra.Command, a *app, interval time.Duration) error {
	ctx := cmd.Context()
	if _, err := a.startup(cmd); err != nil {
		return err
	}
	cur := a.store.Current()
	if cur == nil {
		return errNoSession
	}
	if cur.Status != session.StatusActive {
		fmt.Fprintf(cmd.OutOrStdout(), "Session %d is %s.\n", cur.ID, cur.Status)
		return nil
	}

	finished := make(chan *session.Session, 1)
	unsubscribe := a.store.Subscribe(func(s *session.Session) {
		if s == nil || s.Status != session.StatusActive {
			select {
			case finished <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	disposePrint := a.listener.AddListener(func(n notification.Notification) {
		printNotification(cmd.OutOrStdout(), n)
	})
	defer disposePrint()
	disposeWatch := session.WatchNotifications(a.listener, a.store)
	defer disposeWatch()

	// Tanpa push channel polling tetap jalan
	if err := a.listener.InitializeSocket(ctx, strconv.FormatInt(cur.ID, 10), notification.RoleCustomer); err != nil {
		a.log.WithError(err).Warn("push channel unavailable, relying on polling")
	}

	r := session.NewReconciler(a.store, a.backend, session.ReconcilerOptions{Interval: interval, Logger: a.log})
	r.Start(ctx)
	defer r.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching session %d at table %s...\n", cur.ID, cur.TableNumber)
	select {
	case <-ctx.Done():
		return nil
	case s := <-finished:
		if s == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Session was removed.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %d is %s. Thank you!\n", s.ID, s.Status)
		return nil
	}
}

func watchRole(cmd *cobra.Command, a *app, role string) error {
	ctx := cmd.Context()
	if a.token() == "" {
		return errors.New("staff watch needs a login, run `qrclient login` first")
	}
	dispose := a.listener.AddListener(func(n notification.Notification) {
		printNotification(cmd.OutOrStdout(), n)
	})
	defer dispose()

	if err := a.listener.InitializeSocket(ctx, "", role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s notifications...\n", role)
	<-ctx.Done()
	return nil
}

// NewClearCmd creates the clear command
func NewClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).store.ClearSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
			return nil
		},
	}
}

// NewLoyaltyCmd creates the loyalty command
func NewLoyaltyCmd() *cobra.Command {
	var name, phone string

	cmd := &cobra.Command{
		Use:   "loyalty",
		Short: "Register as a loyalty member and bind to the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if _, err := a.startup(cmd); err != nil {
				return err
			}
			if !a.store.IsAuthenticated() {
				return errNoSession
			}
			customer, err := a.store.RegisterLoyalty(cmd.Context(), name, phone)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), customer)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Member name")
	cmd.Flags().StringVar(&phone, "phone", "", "Member phone number")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}
