package cmd

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bootcforge/bootcforge/pkg/types"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Boot built raw disks in a local QEMU VM",
}

var vmLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Boot the raw disk of a build folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		arch, _ := cmd.Flags().GetString("arch")

		c := newClient()
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		if folder == "" {
			last, err := c.LastFolder(ctx)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			folder = last
		}
		if folder == "" {
			return fmt.Errorf("--folder is required")
		}

		res, err := c.LaunchVM(ctx, types.VMLaunchRequest{Folder: folder, Arch: arch})
		if err != nil {
			return fmt.Errorf("failed to launch vm: %w", err)
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Println("✓ VM launched")
		fmt.Printf("  Console: %s\n", res.ConsoleURL)
		fmt.Printf("  SSH: %s\n", res.SSHForward)
		fmt.Printf("  Command: %s\n", strings.Join(res.Command, " "))
		return nil
	},
}

var vmStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running VM",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()
		if err := newClient().StopVM(ctx); err != nil {
			return fmt.Errorf("failed to stop vm: %w", err)
		}
		fmt.Println("✓ VM stopped")
		return nil
	},
}

func init() {
	vmLaunchCmd.Flags().String("folder", "", "Build output folder (last used folder when empty)")
	vmLaunchCmd.Flags().String("arch", runtime.GOARCH, "Guest architecture (amd64, arm64)")

	vmCmd.AddCommand(vmLaunchCmd, vmStopCmd)
	rootCmd.AddCommand(vmCmd)
}
