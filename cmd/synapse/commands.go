package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Harshitk-cp/synapse/internal/buildconfig"
	"github.com/Harshitk-cp/synapse/internal/client"
	"github.com/spf13/cobra"
)

var queryDepth int

// queryCmd runs one question through the control loop
var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask the server a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var statusReset bool

// statusCmd shows the control loop phase
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the control loop status",
	RunE:  runStatus,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Persist pending fusion connections and decay edges now",
	RunE:  runConsolidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "synapse %s (%s)\n", buildconfig.Version(), buildconfig.Commit())
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryDepth, "depth", 0, "Override max reasoning depth")
	statusCmd.Flags().BoolVar(&statusReset, "reset", false, "Cancel any in-flight query and return to idle")
}

func runQuery(cmd *cobra.Command, args []string) error {
	res, err := newClient().Query(cmd.Context(), strings.Join(args, " "), queryDepth)
	if errors.Is(err, client.ErrBusy) {
		return fmt.Errorf("server is busy with another query; try again or run 'synapse status --reset'")
	}
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printQuery(cmd.OutOrStdout(), res)
	return nil
}

func printQuery(w io.Writer, res *client.QueryResult) {
	fmt.Fprintln(w, res.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "confidence %.2f | memory hits %d | layers %d | fusions %d | explored %d | %dms\n",
		res.Confidence, res.Metrics.MemoryHits, res.Metrics.LayersEngaged,
		res.Metrics.FusionOperations, res.Metrics.ExplorationPaths, res.Metrics.ProcessingMS)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()
	var st *client.Status
	var err error
	if statusReset {
		st, err = c.Reset(cmd.Context())
	} else {
		st, err = c.Status(cmd.Context())
	}
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), st)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(w io.Writer, st *client.Status) {
	fmt.Fprintf(w, "phase:        %s\n", st.Phase)
	fmt.Fprintf(w, "processing:   %t\n", st.IsProcessing)
	fmt.Fprintf(w, "trajectories: %d\n", st.ActiveTrajectoryCount)
	if st.OracleCircuit != "" {
		fmt.Fprintf(w, "oracle:       %s\n", st.OracleCircuit)
	}
	if m := st.LastMetrics; m != nil {
		fmt.Fprintf(w, "last query:   confidence %.2f, %d hits, %s\n", m.Confidence, m.MemoryHits, m.ProcessingTime)
	}
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	res, err := newClient().Consolidate(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "linked %d connections, decayed %d of %d edges, pruned %d\n",
		res.ConnectionsLinked, res.EdgesDecayed, res.EdgesProcessed, res.EdgesPruned)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
