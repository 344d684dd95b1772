package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// out is where every command writes. Tests replace it.
var out io.Writer = os.Stdout

// render writes resp as json or yaml, or calls text for the default table
// output.
func render(resp any, text func(w io.Writer) error) error {
	switch outputFmt {
	case "", "table":
		return text(out)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		// yaml keys follow the json tags of the API types.
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unsupported output format %q (use table, json or yaml)", outputFmt)
	}
}

// table is the text form of a listing. Headers are printed upper-case.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.header, "\t")))
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
