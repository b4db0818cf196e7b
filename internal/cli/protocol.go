package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/obinexus/obibuf/internal/protocol"
	"github.com/obinexus/obibuf/internal/topology"
)

var (
	protocolFormat string
	protocolOut    string
)

func init() {
	rootCmd.AddCommand(protocolCmd)
	protocolCmd.AddCommand(protocolValidateCmd)
	protocolCmd.AddCommand(protocolNormalizeCmd)
	protocolCmd.AddCommand(protocolDFACmd)
	protocolCmd.AddCommand(protocolExportCmd)

	protocolExportCmd.Flags().StringVarP(&protocolFormat, "format", "f", protocol.FormatYAML, "Export format (yaml|json|header)")
	protocolExportCmd.Flags().StringVarP(&protocolOut, "output", "o", "", "Output file (default stdout)")
}

var protocolCmd = &cobra.Command{
	Use:   "protocol",
	Short: "Canonicalize and validate messages against the pattern vocabulary",
}

var protocolValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Gate a message file through the protocol engine",
	Long: "Reads a message from a file (or stdin with \"-\"), canonicalizes it,\n" +
		"scans it against the configured vocabulary, and prints the decision\n" +
		"as JSON. Exit code 0 on allow, 1 on deny.",
	Args: cobra.ExactArgs(1),
	RunE: runProtocolValidate,
}

func runProtocolValidate(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	node, _, _, err := newGateNode("cli")
	if err != nil {
		return err
	}
	gate, err := node.Gate(string(data))
	if err != nil {
		return fmt.Errorf("gate: %w", err)
	}

	out := struct {
		Decision  string            `json:"decision"`
		Reason    string            `json:"reason,omitempty"`
		Zone      string            `json:"zone"`
		Cost      float64           `json:"cost"`
		Matches   int               `json:"matches"`
		Unmatched int               `json:"unmatched_bytes"`
		Truncated bool              `json:"truncated,omitempty"`
		Nodes     []protocol.IRNode `json:"nodes,omitempty"`
	}{
		Decision:  string(gate.Decision),
		Reason:    gate.Reason,
		Zone:      gate.Zone.String(),
		Cost:      gate.Cost,
		Matches:   gate.Report.Matches,
		Unmatched: gate.Report.UnmatchedBytes,
		Truncated: gate.Report.Truncated,
		Nodes:     gate.Nodes,
	}
	rendered, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(rendered))

	if gate.Decision != topology.Allow {
		os.Exit(1)
	}
	return nil
}

var protocolNormalizeCmd = &cobra.Command{
	Use:   "normalize <input>",
	Short: "Print the canonical form of an input string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		res, err := cfg.NewCanonContext().Normalize(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("original:  %s\n", args[0])
		fmt.Printf("canonical: %s\n", res.Canonical)
		if res.Truncated {
			fmt.Fprintln(os.Stderr, "warning: canonical form truncated at bound")
		}
		return nil
	},
}

var protocolDFACmd = &cobra.Command{
	Use:   "dfa <input>",
	Short: "Scan an input against the vocabulary and show matched states",
	Long:  "Canonicalizes the input, scans it, and prints each matched state with\nits pattern type plus the engine's final state.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := cfg.NewEngine()
		if err != nil {
			return err
		}

		nodes, report, err := engine.Process(args[0])
		if err != nil {
			return err
		}

		for _, n := range nodes {
			fmt.Printf("state %-3d %-20s %q\n", n.SourceState, n.Type, n.Content)
		}
		fmt.Printf("current state: %d  matches: %d  unmatched: %d  accepted: %v\n",
			engine.CurrentState(), report.Matches, report.UnmatchedBytes, report.Accepted)
		return nil
	},
}

var protocolExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the engine specification for cross-language interop",
	Long:  "Renders the configured pattern vocabulary as YAML, JSON, or a C header\nso other implementations can load an identical engine.",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, _, _, err := newGateNode("cli")
		if err != nil {
			return err
		}
		data, err := node.ExportSpecification(protocolFormat)
		if err != nil {
			return err
		}
		if protocolOut == "" {
			fmt.Print(string(data))
			return nil
		}
		return os.WriteFile(protocolOut, data, 0644)
	},
}
