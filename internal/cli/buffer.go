package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obinexus/obibuf/internal/buffer"
	"github.com/obinexus/obibuf/internal/store"
)

var (
	bufferOutbox   string
	bufferAuditLog string
	bufferRecent   int
)

func init() {
	rootCmd.AddCommand(bufferCmd)
	bufferCmd.AddCommand(bufferSendCmd)
	bufferCmd.AddCommand(bufferAuditCmd)

	bufferSendCmd.Flags().StringVar(&bufferOutbox, "outbox", "", "Directory for canonical output files")
	bufferSendCmd.Flags().StringVar(&bufferAuditLog, "audit-log", "", "Path to audit log JSONL file")
	bufferAuditCmd.Flags().IntVarP(&bufferRecent, "recent", "n", 20, "Number of recent messages to list")
}

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Send messages through the zero-trust buffer",
}

var bufferSendCmd = &cobra.Command{
	Use:   "send <message> <destination>",
	Short: "Gate a message and transmit its canonical form",
	Long: "Wraps the message in an envelope, gates it through the protocol\n" +
		"engine, records the decision in the audit chain and the result store,\n" +
		"and writes the canonical form to the outbox on allow.\n" +
		"Exit code 0 on allow, 1 on deny.",
	Args: cobra.ExactArgs(2),
	RunE: runBufferSend,
}

func runBufferSend(cmd *cobra.Command, args []string) error {
	node, cfg, _, err := newGateNode("cli")
	if err != nil {
		return err
	}

	log, err := openAuditLog(bufferAuditLog, cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	st, err := store.Open(cfg.ResolveStore())
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []buffer.SenderOption{buffer.WithStore(st)}
	if bufferOutbox != "" {
		if err := os.MkdirAll(bufferOutbox, 0750); err != nil {
			return fmt.Errorf("create outbox: %w", err)
		}
		opts = append(opts, buffer.WithOutbox(bufferOutbox))
	}

	sender := buffer.NewSender(node, log, opts...)
	res, err := sender.Send(buffer.NewMessage(args[0], args[1]))
	if err != nil && !errors.Is(err, buffer.ErrDenied) {
		return err
	}

	out := struct {
		ID        string `json:"id"`
		Decision  string `json:"decision"`
		Reason    string `json:"reason,omitempty"`
		Zone      string `json:"zone"`
		Canonical string `json:"canonical_file,omitempty"`
	}{
		ID:        res.Message.ID.String(),
		Decision:  string(res.Gate.Decision),
		Reason:    res.Gate.Reason,
		Zone:      res.Gate.Zone.String(),
		Canonical: res.Outbox,
	}
	rendered, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(rendered))

	if err != nil {
		os.Exit(1)
	}
	return nil
}

var bufferAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print a transmission report from the result store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.ResolveStore())
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := buffer.Report(st, bufferRecent)
		if err != nil {
			return err
		}
		fmt.Print(report)
		return nil
	},
}
