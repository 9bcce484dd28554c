package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bootcforge/bootcforge/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the build history",
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		records, err := newClient().History(ctx)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if jsonOutput {
			return printJSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No builds found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tIMAGE\tTYPE\tARCH\tSTATUS\tFOLDER\tCREATED")
		for _, r := range records {
			created := ""
			if !r.Timestamp.IsZero() {
				created = r.Timestamp.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s:%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Image, r.Tag, joinTypes(r.Type), r.Arch, r.Status, r.Folder, created)
		}
		w.Flush()
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:     "delete <build-id>...",
	Aliases: []string{"rm"},
	Short:   "Delete builds from history and remove their builder containers",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := withTimeout(2 * time.Minute)
		defer cancel()

		records, err := c.History(ctx)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		selected := selectRecords(records, args)
		if len(selected) == 0 {
			return fmt.Errorf("no builds match %s", strings.Join(args, ", "))
		}
		if err := c.DeleteBuilds(ctx, selected); err != nil {
			return fmt.Errorf("failed to delete builds: %w", err)
		}
		fmt.Printf("✓ Deleted %d build(s)\n", len(selected))
		return nil
	},
}

var historyLastFolderCmd = &cobra.Command{
	Use:   "last-folder",
	Short: "Print the output folder of the newest build",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		folder, err := newClient().LastFolder(ctx)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		fmt.Println(folder)
		return nil
	},
}

// selectRecords returns the records whose id is in ids.
func selectRecords(records []types.BuildRecord, ids []string) []types.BuildRecord {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []types.BuildRecord
	for _, r := range records {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func joinTypes(ts []types.BuildType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyDeleteCmd, historyLastFolderCmd)
	rootCmd.AddCommand(historyCmd)
}
