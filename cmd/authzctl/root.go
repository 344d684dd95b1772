package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

var (
	serverURL string
	outputFmt string
	asUser    string
	asGroups  []string
)

var rootCmd = &cobra.Command{
	Use:   "authzctl",
	Short: "CLI for the hadoop authorization server",
	Long: `authzctl provisions read-only feed policies through the authorization server
and inspects the policy ledger.

Mutating commands (hive apply, hdfs apply) may require membership in one of the
server's admin groups. Pass the caller identity with --as and --as-group when
the server trusts the X-Remote-User and X-Remote-Group headers.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Authorization server URL (default: from AUTHZ_SERVER env or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&asUser, "as", "", "User name sent in the X-Remote-User header")
	rootCmd.PersistentFlags().StringSliceVar(&asGroups, "as-group", nil, "Group sent in the X-Remote-Group header (repeatable)")

	rootCmd.AddCommand(typeCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(hiveCmd)
	rootCmd.AddCommand(hdfsCmd)
	rootCmd.AddCommand(policiesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(healthCmd)
}

// resolvedServer returns the effective server URL.
// Priority: --server flag > AUTHZ_SERVER env var > defaultServer.
func resolvedServer() string {
	if serverURL != "" {
		return serverURL
	}
	if s := os.Getenv("AUTHZ_SERVER"); s != "" {
		return s
	}
	return defaultServer
}
