package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obinexus/obibuf/internal/audit"
)

var auditTailCount int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)

	auditTailCmd.Flags().IntVarP(&auditTailCount, "lines", "n", 10, "Number of entries to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify and inspect the hash-chained audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify the audit log's hash chain",
	Long: "Walks the JSONL audit log and checks every entry's prev_hash against\n" +
		"the SHA-256 of the preceding line. Exit code 0 if the chain is intact,\n" +
		"1 if any link is broken.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := auditPath(args)
		if err != nil {
			return err
		}

		res := audit.Verify(path)
		rendered, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(rendered))
		if !res.Valid {
			os.Exit(1)
		}
		return nil
	},
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [file]",
	Short: "Print the most recent audit entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := auditPath(args)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		// Ring over the last n lines; audit logs can be large and tail
		// must not hold the whole file.
		ring := make([]string, 0, auditTailCount)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if len(ring) == auditTailCount {
				ring = ring[1:]
			}
			ring = append(ring, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		for _, line := range ring {
			fmt.Println(line)
		}
		return nil
	},
}

// auditPath resolves the log path from the optional argument or config.
func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.ResolveAuditLog(), nil
}
