package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/usherlabs/logstore-archive/internal/config"
	"github.com/usherlabs/logstore-archive/internal/store"
	logpkg "github.com/usherlabs/logstore-archive/pkg/log"
)

func main() {
	level := os.Getenv("LOGSTORE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "logstore",
		Short: "Logstore archive CLI",
		Long:  "Logstore archives stream messages into time buckets. This CLI inspects a local archive.",
	}
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default: platform data dir)")
	rootCmd.PersistentFlags().String("config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().String("fsync", "", "fsync mode: always|interval|never")

	statsCmd := &cobra.Command{
		Use:   "stats <stream> <partition>",
		Short: "Print stream partition summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			stream := args[0]
			var partition uint32
			if _, err := fmt.Sscanf(args[1], "%d", &partition); err != nil {
				return fmt.Errorf("invalid partition %q", args[1])
			}

			ctx := cmd.Context()
			first, err := st.FirstMessageTimestamp(ctx, stream, partition)
			if err != nil {
				return err
			}
			last, err := st.LastMessageTimestamp(ctx, stream, partition)
			if err != nil {
				return err
			}
			count, err := st.MessageCount(ctx, stream, partition)
			if err != nil {
				return err
			}
			bytes, err := st.TotalBytes(ctx, stream, partition)
			if err != nil {
				return err
			}
			fmt.Printf("stream=%s partition=%d\n", stream, partition)
			fmt.Printf("  messages: %d\n", count)
			fmt.Printf("  bytes:    %d\n", bytes)
			fmt.Printf("  first:    %s\n", fmtTs(first))
			fmt.Printf("  last:     %s\n", fmtTs(last))
			return nil
		},
	}
	rootCmd.AddCommand(statsCmd)

	tailCmd := &cobra.Command{
		Use:   "tail <stream> <partition>",
		Short: "Print the newest messages of a stream partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: logstore tail <stream> <partition>")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			st, err := openStore(cmd, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			stream := args[0]
			var partition uint32
			if _, err := fmt.Sscanf(args[1], "%d", &partition); err != nil {
				return fmt.Errorf("invalid partition %q", args[1])
			}

			res := st.RequestLast(cmd.Context(), stream, partition, limit)
			defer res.Close()
			for msg := range res.C() {
				fmt.Printf("%s seq=%d publisher=%s chain=%s bytes=%d\n",
					fmtTs(msg.Timestamp), msg.SequenceNo, msg.PublisherID, msg.MsgChainID, len(msg.Payload))
			}
			return res.Err()
		},
	}
	tailCmd.Flags().Int("limit", 20, "number of messages to print")
	rootCmd.AddCommand(tailCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func openStore(cmd *cobra.Command, logger logpkg.Logger) (*store.Store, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfgpkg.FromEnv(&cfg)
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if fsync, _ := cmd.Flags().GetString("fsync"); fsync != "" {
		cfg.Fsync = fsync
	}
	// a local CLI session should not retry a locked database for minutes
	cfg.ConnectAttempts = 1
	return store.Open(store.Options{Config: cfg, Logger: logger})
}

func fmtTs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
