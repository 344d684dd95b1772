package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

var (
	applyCategory string
	applyFeed     string
	applyGroups   []string
	applyDatabase string
	applyTables   []string
	applyPaths    []string
)

var hiveCmd = &cobra.Command{
	Use:   "hive",
	Short: "Manage Hive read-only feed policies",
}

var hiveApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Grant SELECT on a feed's tables to groups",
	Long: `Reconcile the Hive policy of a feed: the role kylo_<category>_<feed>_hive is
(re)created, granted to every group and given SELECT on every table.`,
	Example: `  authzctl hive apply --category ingest --feed orders \
    --group analysts --group auditors --database sales --table orders --table returns`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := authz.HivePolicy{
			Category: applyCategory,
			Feed:     applyFeed,
			Groups:   applyGroups,
			Database: applyDatabase,
			Tables:   applyTables,
		}
		return apply(apiBase+"/policies/hive", policy)
	},
}

var hiveDeleteCmd = &cobra.Command{
	Use:   "delete <category> <feed>",
	Short: "Delete the Hive policy of a feed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deletePolicy("hive", args[0], args[1])
	},
}

var hdfsCmd = &cobra.Command{
	Use:   "hdfs",
	Short: "Manage HDFS read-only feed policies",
}

var hdfsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Grant read and execute on a feed's paths to groups",
	Example: `  authzctl hdfs apply --category ingest --feed orders \
    --group analysts --path /data/ingest/orders --path /archive/ingest/orders`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := authz.HdfsPolicy{
			Category: applyCategory,
			Feed:     applyFeed,
			Groups:   applyGroups,
			Paths:    applyPaths,
		}
		return apply(apiBase+"/policies/hdfs", policy)
	},
}

var hdfsDeleteCmd = &cobra.Command{
	Use:   "delete <category> <feed>",
	Short: "Delete the HDFS policy of a feed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deletePolicy("hdfs", args[0], args[1])
	},
}

func init() {
	for _, c := range []*cobra.Command{hiveApplyCmd, hdfsApplyCmd} {
		c.Flags().StringVar(&applyCategory, "category", "", "Feed category system name")
		c.Flags().StringVar(&applyFeed, "feed", "", "Feed system name")
		c.Flags().StringSliceVar(&applyGroups, "group", nil, "Group to grant access to (repeatable)")
		_ = c.MarkFlagRequired("category")
		_ = c.MarkFlagRequired("feed")
	}
	hiveApplyCmd.Flags().StringVar(&applyDatabase, "database", "", "Hive database holding the tables")
	hiveApplyCmd.Flags().StringSliceVar(&applyTables, "table", nil, "Table to grant SELECT on (repeatable)")
	hdfsApplyCmd.Flags().StringSliceVar(&applyPaths, "path", nil, "HDFS path to grant read and execute on (repeatable)")

	hiveCmd.AddCommand(hiveApplyCmd, hiveDeleteCmd)
	hdfsCmd.AddCommand(hdfsApplyCmd, hdfsDeleteCmd)
}

func apply(path string, policy any) error {
	var resp applyResponse
	if err := newClient().putJSON(path, policy, &resp); err != nil {
		return fmt.Errorf("failed to apply policy: %w", err)
	}
	return render(resp, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "policy %s %s\n", resp.PolicyName, resp.Status)
		return err
	})
}

func deletePolicy(kind, category, feed string) error {
	path := fmt.Sprintf("%s/policies/%s/%s/%s", apiBase, kind, url.PathEscape(category), url.PathEscape(feed))
	if err := newClient().delete(path); err != nil {
		return fmt.Errorf("failed to delete %s policy: %w", kind, err)
	}
	fmt.Fprintf(out, "policy %s deleted\n", authz.PolicyName(category, feed, kind))
	return nil
}

var policiesCategory string

var policiesCmd = &cobra.Command{
	Use:   "policies [name]",
	Short: "List provisioned policies from the ledger, or show one policy",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPolicies,
}

func init() {
	policiesCmd.Flags().StringVar(&policiesCategory, "category", "", "Only list policies of this category")
}

func runPolicies(cmd *cobra.Command, args []string) error {
	client := newClient()

	if len(args) == 1 {
		var p policy
		if err := client.getJSON(apiBase+"/policies/"+url.PathEscape(args[0]), &p); err != nil {
			return fmt.Errorf("failed to get policy %s: %w", args[0], err)
		}
		t := newTable("Field", "Value")
		t.add("Name", p.Name)
		t.add("Category", p.Category)
		t.add("Feed", p.Feed)
		t.add("Kind", p.Kind)
		t.add("Groups", strings.Join(p.Groups, ", "))
		t.add("Objects", strings.Join(p.Objects, ", "))
		t.add("Last outcome", p.LastOutcome)
		t.add("Last error", p.LastError)
		t.add("Updated", localTime(p.UpdatedAt))
		return render(p, t.write)
	}

	path := apiBase + "/policies"
	if policiesCategory != "" {
		path += "?category=" + url.QueryEscape(policiesCategory)
	}
	var resp policiesResponse
	if err := client.getJSON(path, &resp); err != nil {
		return fmt.Errorf("failed to list policies: %w", err)
	}
	t := newTable("Name", "Kind", "Groups", "Outcome", "Updated")
	for _, p := range resp.Policies {
		t.add(p.Name, p.Kind, shorten(strings.Join(p.Groups, ","), 40), p.LastOutcome, localTime(p.UpdatedAt))
	}
	return render(resp, t.write)
}
