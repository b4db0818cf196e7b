package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obinexus/obibuf/internal/buffer"
	"github.com/obinexus/obibuf/internal/daemon"
	"github.com/obinexus/obibuf/internal/observability"
	"github.com/obinexus/obibuf/internal/store"
)

var (
	serveInbox        string
	serveOutbox       string
	serveState        string
	serveAuditLog     string
	servePollMode     bool
	servePollInterval time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveInbox, "inbox", "", "Inbox directory for incoming .msg files")
	serveCmd.Flags().StringVar(&serveOutbox, "outbox", "", "Outbox directory for canonical output and gate records")
	serveCmd.Flags().StringVar(&serveState, "state", "", "State directory (processing, failed, pid)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file")
	serveCmd.Flags().BoolVar(&servePollMode, "poll", false, "Poll the inbox instead of using fsnotify (for NFS)")
	serveCmd.Flags().DurationVar(&servePollInterval, "poll-interval", 0, "Polling interval when --poll is set")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inbox-to-outbox message gateway daemon",
	Long: "Watches the inbox for .msg files, gates each through the zero-trust\n" +
		"protocol engine, writes canonical output and a JSON gate record to\n" +
		"the outbox, and moves denied messages to the failed directory.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := observability.InitLogger("daemon")

	node, cfg, _, err := newGateNode("daemon")
	if err != nil {
		return err
	}

	auditLog, err := openAuditLog(serveAuditLog, cfg)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	st, err := store.Open(cfg.ResolveStore())
	if err != nil {
		return err
	}
	defer st.Close()

	dirs := daemon.DefaultDirConfig()
	if serveInbox != "" {
		dirs.Inbox = serveInbox
	}
	if serveOutbox != "" {
		dirs.Outbox = serveOutbox
	}
	if serveState != "" {
		dirs.State = serveState
	}

	sender := buffer.NewSender(node, auditLog,
		buffer.WithStore(st),
		buffer.WithOutbox(dirs.Outbox),
	)

	d, err := daemon.New(daemon.Config{
		Dirs:         dirs,
		PollMode:     servePollMode,
		PollInterval: servePollInterval,
	}, sender, log)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	return d.Run(ctx)
}
