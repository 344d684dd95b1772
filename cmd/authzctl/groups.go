package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
)

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "Show the authorization backend the server uses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp typeResponse
		if err := newClient().getJSON(apiBase+"/type", &resp); err != nil {
			return fmt.Errorf("failed to get backend type: %w", err)
		}
		return render(resp, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, resp.Type)
			return err
		})
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups [name]",
	Short: "List the groups known to the backend, or show one group",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGroups,
}

func runGroups(cmd *cobra.Command, args []string) error {
	client := newClient()

	groupTable := func(groups ...group) func(io.Writer) error {
		t := newTable("Name", "ID", "Description")
		for _, g := range groups {
			t.add(g.Name, g.ID, shorten(g.Description, 50))
		}
		return t.write
	}

	if len(args) == 1 {
		var g group
		if err := client.getJSON(apiBase+"/groups/"+url.PathEscape(args[0]), &g); err != nil {
			return fmt.Errorf("failed to get group %s: %w", args[0], err)
		}
		return render(g, groupTable(g))
	}

	var resp groupsResponse
	if err := client.getJSON(apiBase+"/groups", &resp); err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	return render(resp, groupTable(resp.Groups...))
}
