package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/core/domain"
)

var apiAddr string

var circuitsCmd = &cobra.Command{
	Use:   "circuits",
	Short: "Show the circuit breaker state of a running faultline",
	Run:   runCircuits,
}

var resetCircuitCmd = &cobra.Command{
	Use:   "reset [resource]",
	Short: "Force the circuit for a resource back to closed",
	Args:  cobra.ExactArgs(1),
	Run:   runResetCircuit,
}

func init() {
	circuitsCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "health API address (default http://localhost:<server.port>)")
	circuitsCmd.AddCommand(resetCircuitCmd)
	rootCmd.AddCommand(circuitsCmd)
}

func baseURL() string {
	if apiAddr != "" {
		return apiAddr
	}
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

func runCircuits(cmd *cobra.Command, args []string) {
	resp, err := apiClient.Get(baseURL() + "/health/circuits")
	if err != nil {
		slog.Error("Failed to reach faultline", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Unexpected response", "status", resp.Status)
		os.Exit(1)
	}

	var circuits map[string]domain.CircuitState
	if err := json.NewDecoder(resp.Body).Decode(&circuits); err != nil {
		slog.Error("Failed to decode circuits", "error", err)
		os.Exit(1)
	}

	keys := make([]string, 0, len(circuits))
	for k := range circuits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESOURCE\tPHASE\tFAILURES\tLAST FAILURE")
	_, _ = fmt.Fprintln(w, "--------\t-----\t--------\t------------")
	for _, k := range keys {
		st := circuits[k]
		last := "-"
		if !st.LastFailureAt.IsZero() {
			last = st.LastFailureAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", k, st.Phase, st.ConsecutiveFailures, last)
	}
	_ = w.Flush()
}

func runResetCircuit(cmd *cobra.Command, args []string) {
	endpoint := baseURL() + "/health/circuits/" + url.PathEscape(args[0]) + "/reset"
	resp, err := apiClient.Post(endpoint, "application/json", nil)
	if err != nil {
		slog.Error("Failed to reach faultline", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Reset failed", "resource", args[0], "status", resp.Status)
		os.Exit(1)
	}
	fmt.Printf("Circuit for %s reset to closed\n", args[0])
}
