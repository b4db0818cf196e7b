package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	obimcp "github.com/obinexus/obibuf/internal/mcp"
)

var mcpAuditLog string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs obibuf as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes canonicalization tools: normalize, validate, equivalent,\n" +
		"cost, export.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := obimcp.New(obimcp.Config{
		ConfigPath:   configPath,
		AuditLogPath: mcpAuditLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	return srv.Run(ctx)
}
