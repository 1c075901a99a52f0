package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/sead-import/internal/core"
	"github.com/JonMunkholm/sead-import/internal/policy"
	"github.com/JonMunkholm/sead-import/internal/schema"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}

// printSummary writes a human-readable report of a completed run.
func printSummary(w io.Writer, s *core.Summary) error {
	fmt.Fprintf(w, "run %s completed in %s\n\n", s.RunID, s.Duration.Round(time.Millisecond))

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "POLICY\tPRIORITY\tACTIONS")
	for _, r := range s.Report.Results {
		actions := plural(r.Log.Len(), "action")
		if r.Skipped {
			actions = "skipped"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Policy, r.Priority, actions)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = newTabWriter(w)
	fmt.Fprintln(tw, "TABLE\tRECORDS\tNEW\tVALUES\tSKIPPED")
	for _, t := range s.Export.Tables {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Table,
			humanize.Comma(int64(t.Records)),
			humanize.Comma(int64(t.New)),
			humanize.Comma(int64(t.Values)),
			humanize.Comma(int64(t.SkippedRows)),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s exported\n", plural(s.Export.Records(), "record"))
	if s.Export.Unresolved > 0 {
		fmt.Fprintf(w, "%s not resolved\n", plural(s.Export.Unresolved, "foreign key value"))
	}
	if len(s.Unmapped) > 0 {
		fmt.Fprintf(w, "unmapped sheets: %s\n", strings.Join(s.Unmapped, ", "))
	}
	for _, f := range s.Export.Files {
		fmt.Fprintf(w, "wrote %s\n", f)
	}
	return nil
}

// printSchema lists the tables of a schema with their resolution keys.
func printSchema(w io.Writer, s *schema.Schema) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "TABLE\tPK\tLOOKUP\tSHEET\tCLASS\tCOLUMNS\tFKS")
	for _, t := range s.Tables() {
		pk := t.PKName
		if pk == "" {
			pk = "-"
		}
		lookup := ""
		if t.IsLookup {
			lookup = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			t.Name, pk, lookup, t.SheetName, t.ClassName, len(t.Columns), len(t.ForeignKeys()))
	}
	return tw.Flush()
}

// printPolicies lists the policies in run order.
func printPolicies(w io.Writer, r *policy.Registry) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "#\tPOLICY\tPRIORITY\tSTATUS")
	for i, p := range r.Ordered() {
		status := "enabled"
		if p.Settings.Disabled {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, p.Policy.ID(), p.Settings.Priority, status)
	}
	return tw.Flush()
}
