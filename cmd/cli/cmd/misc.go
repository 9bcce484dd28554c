package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bootcforge/bootcforge/pkg/types"
)

var prereqsCmd = &cobra.Command{
	Use:   "prereqs",
	Short: "Check that the server host can build disk images",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		st, err := newClient().Prereqs(ctx)
		if err != nil {
			return fmt.Errorf("failed to check prerequisites: %w", err)
		}
		if !st.OK {
			return fmt.Errorf("%s", st.Message)
		}
		fmt.Println("✓ Prerequisites satisfied")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <build-id>",
	Short: "Write a sparse archive of a build's raw disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		upload, _ := cmd.Flags().GetBool("upload")

		c := newClient()
		ctx, cancel := withTimeout(time.Hour)
		defer cancel()

		if folder == "" {
			records, err := c.History(ctx)
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}
			if matches := selectRecords(records, args); len(matches) > 0 {
				folder = matches[0].Folder
			}
		}
		if folder == "" {
			return fmt.Errorf("no build %s in history; pass --folder", args[0])
		}

		res, err := c.Export(ctx, types.ExportRequest{ID: args[0], Folder: folder, Upload: upload})
		if err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("✓ Archive written: %s\n", res.Archive)
		fmt.Printf("  Blocks: %d\n", res.Blocks)
		fmt.Printf("  Size: %d bytes\n", res.Size)
		if res.Key != "" {
			fmt.Printf("  Uploaded: %s\n", res.Key)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("folder", "", "Build output folder (taken from history when empty)")
	exportCmd.Flags().Bool("upload", false, "Upload the archive to the configured bucket")

	rootCmd.AddCommand(prereqsCmd, exportCmd)
}
