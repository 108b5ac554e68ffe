package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/source"
)

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := &source.SNMPConfig{}

	cmd := &cobra.Command{
		Use:   "capture <name>",
		Short: "Poll an SNMP OID into a variable",
		Long: `Poll one OID of an SNMP agent --count times, --interval apart, and
store the samples as a variable. Counter values are stored as per-second
rates; the first rate sample is NaN. v3 is used when --user is set.

With --follow polling continues until interrupted (Ctrl-C); the last
--window samples are then stored.

Unset options come from the snmp section of the config file.`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.mutating(func(cmd *cobra.Command, args []string, st *State) error {
			st.Config.SNMPDefaults(cfg)

			ctx, stop := signal.NotifyContext(logging.ContextWithVariable(contextOf(cmd), args[0]), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logging.WithContext(ctx).Info("capture started", "target", cfg.String(), "follow", cfg.Follow)

			d, err := source.NewSNMPCapturer().Capture(ctx, cfg)
			if err != nil {
				return err
			}
			if err := st.Registry.Store(args[0], d); err != nil {
				return err
			}
			if units, ok := d.Metadata["units"].(string); ok {
				if err := st.Registry.SetOption([]string{args[0]}, "ysubtitle", "["+units+"]"); err != nil {
					return err
				}
			}
			return rootOpts.formatter(cmd).Print(map[string]interface{}{"name": args[0], "samples": len(d.Times), "target": cfg.String()}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "stored %s: %s samples from %s\n", args[0], fmtCount(int64(len(d.Times))), cfg)
				return err
			})
		}),
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Host, "host", "", "agent host")
	f.Uint16Var(&cfg.Port, "port", 0, "agent port (default 161)")
	f.StringVar(&cfg.OID, "oid", "", "numeric OID to poll")
	f.StringVar(&cfg.Community, "community", "", "v2c community")
	f.StringVar(&cfg.SecurityName, "user", "", "v3 security name")
	f.StringVar(&cfg.SecurityLevel, "level", "", "v3 security level (noAuthNoPriv|authNoPriv|authPriv)")
	f.StringVar(&cfg.AuthProtocol, "auth-proto", "", "v3 auth protocol (MD5|SHA|SHA224|SHA256|SHA384|SHA512)")
	f.StringVar(&cfg.AuthPassword, "auth-pass", "", "v3 auth passphrase")
	f.StringVar(&cfg.PrivProtocol, "priv-proto", "", "v3 privacy protocol (DES|AES|AES192|AES256)")
	f.StringVar(&cfg.PrivPassword, "priv-pass", "", "v3 privacy passphrase")
	f.StringVar(&cfg.ContextName, "context", "", "v3 context name")
	f.Uint32Var(&cfg.TimeoutMs, "timeout-ms", 0, "request timeout in milliseconds")
	f.Uint32Var(&cfg.Retries, "retries", 0, "retries after a timeout")
	f.DurationVar(&cfg.Interval, "interval", 0, "time between polls")
	f.IntVar(&cfg.Count, "count", 0, "number of polls")
	f.BoolVarP(&cfg.Follow, "follow", "f", false, "poll until interrupted")
	f.IntVar(&cfg.Window, "window", 0, "keep only the most recent samples")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// =============================================================================
// session
// =============================================================================

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "session",
		Short:         "Inspect or clear the session directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "info",
		Short:         "Describe the saved session",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.configure(); err != nil {
				return err
			}
			s := rootOpts.cfg.Session
			session := openSession(rootOpts)
			_, _, info, err := session.LoadVariables()
			if err != nil {
				return err
			}
			data := map[string]interface{}{
				"id":          info.ID,
				"dir":         info.Dir,
				"saved_at":    info.SavedAt.Format(time.RFC3339),
				"variables":   info.Variables,
				"samples":     info.Samples,
				"compression": s.Compression,
			}
			return rootOpts.formatter(cmd).Print(data, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, info.String())
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Remove the saved session",
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.configure(); err != nil {
				return err
			}
			session := openSession(rootOpts)
			if err := session.Remove(); err != nil {
				return err
			}
			if rootOpts.state != nil {
				rootOpts.state.Registry.Delete()
			}
			return rootOpts.formatter(cmd).Print(map[string]string{"removed": session.Dir()}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "removed session in %s\n", session.Dir())
				return err
			})
		},
	})
	return cmd
}
