package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health and readiness",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()

	var healthResp map[string]any
	if err := client.getJSON("/healthz", &healthResp); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	var readyResp map[string]any
	if err := client.getJSON("/readyz", &readyResp); err != nil {
		// Readiness failure is not fatal; a dependency might be down.
		readyResp = map[string]any{"status": "not_ready", "error": err.Error()}
	}

	status, _ := healthResp["status"].(string)
	uptime, _ := healthResp["uptime"].(string)
	ready, _ := readyResp["status"].(string)
	backend, _ := readyResp["backend"].(string)

	t := newTable("Check", "Status")
	t.add("Liveness", status)
	t.add("Uptime", uptime)
	t.add("Readiness", ready)
	t.add("Backend", backend)
	if checks, ok := readyResp["checks"].(map[string]any); ok {
		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			check, _ := checks[name].(map[string]any)
			s, _ := check["status"].(string)
			t.add("Check "+name, s)
		}
	}

	return render(map[string]any{"health": healthResp, "readiness": readyResp}, t.write)
}
