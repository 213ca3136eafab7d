package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shizukutanaka/resalloc/internal/api"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show control loop status",
	Long:  `Display current resource utilization, pool membership and optimization catalog.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("api-url", "http://127.0.0.1:8380", "API server URL")
	statusCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	statusCmd.Flags().Bool("watch", false, "Refresh until interrupted")
	statusCmd.Flags().Duration("interval", 5*time.Second, "Watch interval")
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	format, _ := cmd.Flags().GetString("format")
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")

	client := newAPIClient(apiURL)
	out := cmd.OutOrStdout()

	if !watch {
		return displayStatus(out, client, format)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		// Clear screen (ANSI escape code)
		fmt.Fprint(out, "\033[H\033[2J")
		if err := displayStatus(out, client, format); err != nil {
			return err
		}
		select {
		case <-ticker.C:
		case <-cmd.Context().Done():
			return nil
		}
	}
}

// statusView combines the status summary with the full snapshot.
type statusView struct {
	Status   api.StatusResponse  `json:"status" yaml:"status"`
	Snapshot automation.Snapshot `json:"snapshot" yaml:"snapshot"`
}

func displayStatus(out io.Writer, client *apiClient, format string) error {
	var view statusView
	if err := client.get("/api/v1/status", &view.Status); err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	if err := client.get("/api/v1/snapshot", &view.Snapshot); err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(view)
	case "table", "":
		renderTable(out, view)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderTable(out io.Writer, view statusView) {
	s := view.Status
	m := s.Metrics

	state := "disabled"
	if s.Enabled {
		state = "enabled (up " + s.Uptime + ")"
	}
	fmt.Fprintf(out, "resalloc status - %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Control loop     : %s\n", state)
	fmt.Fprintf(out, "  Sampled          : %s\n", humanize.Time(m.SampledAt))
	fmt.Fprintf(out, "  Health           : %s\n", badge(s.Levels["health"]))

	fmt.Fprintln(out, "\nResources:")
	fmt.Fprintf(out, "  CPU              : %5.1f%%  %s\n", m.CPU, badge(s.Levels["cpu"]))
	fmt.Fprintf(out, "  Memory           : %5.1f%%  %s\n", m.Memory, badge(s.Levels["memory"]))
	fmt.Fprintf(out, "  Storage          : %5.1f%%  %s\n", m.Storage, badge(s.Levels["storage"]))
	fmt.Fprintf(out, "  Network          : %5.1f%%  %s\n", m.Network, badge(s.Levels["network"]))
	fmt.Fprintf(out, "  Response time    : %.0f ms  %s\n", m.ResponseTimeMs, badge(s.Levels["response_time"]))
	fmt.Fprintf(out, "  Throughput       : %s req/s\n", humanize.CommafWithDigits(m.ThroughputReqPerSec, 0))
	fmt.Fprintf(out, "  Connections      : %s\n", humanize.Comma(int64(m.ActiveConnections)))

	fmt.Fprintf(out, "\nPool (%d/%d active):\n", s.ActiveInstances, s.PoolSize)
	for _, inst := range view.Snapshot.Pool {
		fmt.Fprintf(out, "  - %-4s %-22s %-8s load=%5.1f%% served=%s avg=%.0fms\n",
			inst.ID,
			inst.Name,
			inst.Status,
			inst.LoadPercent,
			humanize.Comma(int64(inst.RequestsServed)),
			inst.AvgResponseTimeMs,
		)
	}

	fmt.Fprintf(out, "\nOptimizations (%d pending):\n", s.PendingOptimizations)
	opts := append([]automation.OptimizationRecord(nil), view.Snapshot.Optimizations...)
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID })
	for _, opt := range opts {
		activated := ""
		if !opt.ActivatedAt.IsZero() {
			activated = " activated " + humanize.Time(opt.ActivatedAt)
		}
		fmt.Fprintf(out, "  - %-4s %-30s %-8s impact=%s%s\n", opt.ID, opt.Description, opt.Status, opt.Impact, activated)
	}
}

func badge(level automation.Level) string {
	switch level {
	case "":
		return ""
	case automation.LevelHigh, automation.LevelPoor:
		return "[" + string(level) + "!]"
	default:
		return "[" + string(level) + "]"
	}
}
