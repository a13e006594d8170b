// Package main is daemonctl, the operator CLI for the self-modifying
// daemon: a thin control-protocol client plus direct inspection of the
// daemon's on-disk layout (self-upgrade backups), grounded on the
// teacher's migration CLI's cobra subcommand structure.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autodevd/daemon/internal/controlproto"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:   "daemonctl",
		Short: "Operator CLI for the self-modifying development daemon",
		Long:  "Inspects and controls a running daemon instance over its loopback control protocol, and its on-disk layout directly.",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", ".auto-dev", "daemon's on-disk data directory")

	root.AddCommand(
		statusCommand(&dataDir),
		pingCommand(&dataDir),
		metricsCommand(&dataDir),
		shutdownCommand(&dataDir),
		queueEventCommand(&dataDir),
		backupsCommand(&dataDir),
	)
	return root
}

func statusCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's current state, uptime and events processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(*dataDir).roundTrip(controlproto.Request{Kind: controlproto.ReqStatus})
			if err != nil {
				return err
			}
			if resp.Kind != controlproto.RespStatus {
				return fmt.Errorf("daemon: %s", resp.Message)
			}
			fmt.Printf("state:            %s\n", resp.State)
			fmt.Printf("uptime_seconds:   %.1f\n", resp.UptimeSeconds)
			fmt.Printf("events_processed: %d\n", resp.EventsProcessed)
			return nil
		},
	}
}

func pingCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(*dataDir).roundTrip(controlproto.Request{Kind: controlproto.ReqPing})
			if err != nil {
				return err
			}
			if resp.Kind != controlproto.RespPong {
				return fmt.Errorf("daemon: unexpected response %s", resp.Kind)
			}
			fmt.Println("pong")
			return nil
		},
	}
}

func metricsCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the decision engine's budget counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(*dataDir).roundTrip(controlproto.Request{Kind: controlproto.ReqGetMetrics})
			if err != nil {
				return err
			}
			if resp.Kind != controlproto.RespMetrics {
				return fmt.Errorf("daemon: %s", resp.Message)
			}
			keys := make([]string, 0, len(resp.Metrics))
			for k := range resp.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-20s %v\n", k, resp.Metrics[k])
			}
			return nil
		},
	}
}

func shutdownCommand(dataDir *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Request a graceful shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(*dataDir).roundTrip(controlproto.Request{Kind: controlproto.ReqShutdown})
			if err != nil {
				return err
			}
			if resp.Kind != controlproto.RespSuccess {
				return fmt.Errorf("daemon: %s", resp.Message)
			}
			fmt.Println("shutdown requested")
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "unused placeholder, kept for future control-protocol versions")
	return cmd
}

func queueEventCommand(dataDir *string) *cobra.Command {
	var kind, sourcePath string
	cmd := &cobra.Command{
		Use:   "queue-event",
		Short: "Inject an event into the daemon's pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(*dataDir).roundTrip(controlproto.Request{
				Kind: controlproto.ReqQueueEvent,
				Event: &controlproto.ClientEvent{
					Kind:       kind,
					SourcePath: sourcePath,
				},
			})
			if err != nil {
				return err
			}
			if resp.Kind != controlproto.RespSuccess {
				return fmt.Errorf("daemon: %s", resp.Message)
			}
			fmt.Println("queued")
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "user-command", "event kind (code-modified, spec-changed, user-command, ...)")
	cmd.Flags().StringVar(&sourcePath, "path", "", "source path the event refers to")
	return cmd
}

func backupsCommand(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List self-upgrade binary backups on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(*dataDir, "backups")
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("(no backups)")
					return nil
				}
				return fmt.Errorf("daemonctl: read %s: %w", dir, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), "daemon_") {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			if len(names) == 0 {
				fmt.Println("(no backups)")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	return cmd
}
