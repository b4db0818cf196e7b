package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obinexus/obibuf/internal/topology"
)

var (
	topologyType     string
	topologyNodes    int
	topologyFailover bool
)

func init() {
	rootCmd.AddCommand(topologyCmd)
	topologyCmd.AddCommand(topologyNetworkCmd)
	topologyCmd.AddCommand(topologyMetricsCmd)

	topologyMetricsCmd.Flags().StringVar(&topologyType, "type", "star", "Network layout (p2p|bus|ring|star|mesh|hybrid)")
	topologyMetricsCmd.Flags().IntVar(&topologyNodes, "nodes", 3, "Number of gate nodes")
	topologyMetricsCmd.Flags().BoolVar(&topologyFailover, "failover", false, "Enable failover handling")
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Inspect gate networks and their governance state",
}

var topologyNetworkCmd = &cobra.Command{
	Use:   "network <type>",
	Short: "Validate a network layout name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, err := topology.ParseType(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("layout %s is supported\n", layout)
		return nil
	},
}

var topologyMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Gate stdin messages across a network and report metrics",
	Long: "Builds a network of gate nodes, distributes messages from stdin\n" +
		"round-robin across them (one message per line), and prints the\n" +
		"resulting network metrics as JSON.",
	RunE: runTopologyMetrics,
}

func runTopologyMetrics(cmd *cobra.Command, args []string) error {
	layout, err := topology.ParseType(topologyType)
	if err != nil {
		return err
	}
	if topologyNodes < 1 {
		return fmt.Errorf("at least one node is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	nw := topology.NewNetwork(layout)
	nw.SetFailover(topologyFailover)

	nodes := make([]*topology.Node, 0, topologyNodes)
	for i := 0; i < topologyNodes; i++ {
		engine, err := cfg.NewEngine()
		if err != nil {
			return err
		}
		node := topology.NewNode(fmt.Sprintf("node-%d", i), engine)
		if err := nw.Attach(node); err != nil {
			return err
		}
		nodes = append(nodes, node)
	}

	scanner := bufio.NewScanner(os.Stdin)
	var i, denied int
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		gate, err := nodes[i%len(nodes)].Gate(line)
		if err != nil {
			return fmt.Errorf("gate: %w", err)
		}
		if gate.Decision == topology.Deny {
			denied++
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	out := struct {
		topology.Metrics
		Messages int `json:"messages"`
		Denied   int `json:"denied"`
	}{
		Metrics:  nw.Metrics(),
		Messages: i,
		Denied:   denied,
	}
	rendered, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(rendered))
	return nil
}
