package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	eventsPolicy    string
	eventsCategory  string
	eventsFeed      string
	eventsOutcome   string
	eventsPageSize  int
	eventsPageToken string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List reconcile events from the ledger, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsPolicy, "policy", "", "Filter by policy name")
	eventsCmd.Flags().StringVar(&eventsCategory, "category", "", "Filter by category")
	eventsCmd.Flags().StringVar(&eventsFeed, "feed", "", "Filter by feed")
	eventsCmd.Flags().StringVar(&eventsOutcome, "outcome", "", "Filter by outcome (success or failure)")
	eventsCmd.Flags().IntVar(&eventsPageSize, "page-size", 20, "Number of events per page")
	eventsCmd.Flags().StringVar(&eventsPageToken, "page-token", "", "Page token from a previous listing")
}

func eventsQuery() string {
	q := url.Values{}
	for key, value := range map[string]string{
		"policy":    eventsPolicy,
		"category":  eventsCategory,
		"feed":      eventsFeed,
		"outcome":   eventsOutcome,
		"pageToken": eventsPageToken,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	if eventsPageSize > 0 {
		q.Set("pageSize", strconv.Itoa(eventsPageSize))
	}
	return q.Encode()
}

func runEvents(cmd *cobra.Command, args []string) error {
	var resp eventsResponse
	if err := newClient().getJSON(apiBase+"/events?"+eventsQuery(), &resp); err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	return render(resp, func(w io.Writer) error {
		t := newTable("Time", "Policy", "Action", "Outcome", "Actor", "Reason")
		for _, e := range resp.Events {
			outcome := e.Outcome
			if e.ErrorKind != "" {
				outcome += " (" + e.ErrorKind + ")"
			}
			t.add(localTime(e.CreatedAt), e.PolicyName, e.Action, outcome, e.Actor, shorten(e.Reason, 60))
		}
		if err := t.write(w); err != nil {
			return err
		}
		if resp.NextPageToken != "" {
			fmt.Fprintf(w, "\n%d of %d events, next page: --page-token %s\n", len(resp.Events), resp.TotalSize, resp.NextPageToken)
		}
		return nil
	})
}
