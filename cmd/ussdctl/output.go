package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var errPartnersDown = errors.New("one or more partners failed")

func printChecks(cmd *cobra.Command, results map[string]error) error {
	codes := make([]string, 0, len(results))
	for code := range results {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTNER\tSTATUS")
	failed := false
	for _, code := range codes {
		status := "ok"
		if err := results[code]; err != nil {
			status = err.Error()
			failed = true
		}
		fmt.Fprintf(w, "%s\t%s\n", code, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed {
		return errPartnersDown
	}
	return nil
}
