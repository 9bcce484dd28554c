package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bootcforge/bootcforge/pkg/client"
	"github.com/bootcforge/bootcforge/pkg/types"
)

var buildCmd = &cobra.Command{
	Use:   "build <image[:tag]>",
	Short: "Build disk images from a bootc container image",
	Long: `Build one or more disk images from a bootc container image.

The build runs on the server. Unless --detach is given, bforge follows its
progress and cancels it on interrupt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, tag := splitImageRef(args[0])
		typeNames, _ := cmd.Flags().GetStringSlice("type")
		id, _ := cmd.Flags().GetString("id")
		folder, _ := cmd.Flags().GetString("folder")
		arch, _ := cmd.Flags().GetString("arch")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		detach, _ := cmd.Flags().GetBool("detach")

		c := newClient()
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		if id == "" {
			var err error
			if id, err = c.UniqueBuildID(ctx, path.Base(image)); err != nil {
				return fmt.Errorf("failed to pick a build id: %w", err)
			}
		}
		if folder == "" {
			last, err := c.LastFolder(ctx)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			folder = last
		}
		if folder == "" {
			folder = "."
		}
		abs, err := filepath.Abs(folder)
		if err != nil {
			return err
		}

		req := types.BuildRequest{
			ID:        id,
			Image:     image,
			Tag:       tag,
			EngineID:  engineID,
			Folder:    abs,
			Arch:      arch,
			Overwrite: overwrite,
		}
		for _, t := range typeNames {
			req.Type = append(req.Type, types.BuildType(t))
		}
		req.Filesystem, _ = cmd.Flags().GetString("filesystem")
		req.BuildConfigFilePath, _ = cmd.Flags().GetString("config")
		req.Chown, _ = cmd.Flags().GetString("chown")
		req.AWSAmiName, _ = cmd.Flags().GetString("aws-ami-name")
		req.AWSBucket, _ = cmd.Flags().GetString("aws-bucket")
		req.AWSRegion, _ = cmd.Flags().GetString("aws-region")

		accepted, err := c.CreateBuild(ctx, req)
		if client.IsConflict(err) && !req.Overwrite {
			var apiErr *client.APIError
			question := "File already exists, do you want to overwrite?"
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				question = apiErr.Message
			}
			yes, cerr := confirm(question)
			if cerr != nil {
				return cerr
			}
			if !yes {
				fmt.Println("Build canceled.")
				return nil
			}
			req.Overwrite = true
			accepted, err = c.CreateBuild(ctx, req)
		}
		if err != nil {
			return fmt.Errorf("failed to start build: %w", err)
		}

		fmt.Printf("✓ Build %s started\n", accepted.ID)
		fmt.Printf("  Image: %s\n", accepted.ImagePath)
		fmt.Printf("  Log: %s\n", accepted.LogPath)
		if detach {
			return nil
		}
		return followBuild(c, accepted.ID)
	},
}

// followBuild polls the progress of build id until it ends. An interrupt
// cancels the build on the server.
func followBuild(c *client.Client, id string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nCanceling build %s...\n", id)
			cctx, cancel := withTimeout(30 * time.Second)
			defer cancel()
			return c.CancelBuild(cctx, id)
		case <-ticker.C:
		}

		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p, err := c.BuildProgress(pctx, id)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return err
		}
		if p.Percent != last {
			fmt.Printf("[%3d%%] %s\n", p.Percent, p.Status)
			last = p.Percent
		}
		switch p.Status {
		case types.BuildStatusSuccess:
			fmt.Println("✓ Build finished")
			return nil
		case types.BuildStatusError:
			return fmt.Errorf("build failed: %s", p.Message)
		}
	}
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <build-id>",
	Short: "Cancel a running build",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()
		if err := newClient().CancelBuild(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to cancel build: %w", err)
		}
		fmt.Printf("✓ Build %s canceling\n", args[0])
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the progress of builds started on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()
		progress, err := newClient().Progress(ctx)
		if err != nil {
			return fmt.Errorf("failed to get progress: %w", err)
		}
		if jsonOutput {
			return printJSON(progress)
		}
		if len(progress) == 0 {
			fmt.Println("No builds running")
			return nil
		}
		for _, p := range progress {
			line := fmt.Sprintf("%s\t%s\t%3d%%\t%s", p.ID, p.Image, p.Percent, p.Status)
			if p.Message != "" {
				line += "\t" + p.Message
			}
			fmt.Println(line)
		}
		return nil
	},
}

// splitImageRef splits ref into image and tag. The tag defaults to latest.
func splitImageRef(ref string) (string, string) {
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i+1:], "/") {
		return ref, "latest"
	}
	return ref[:i], ref[i+1:]
}

func init() {
	buildCmd.Flags().StringSlice("type", []string{string(types.BuildTypeQCOW2)}, "Disk image types (qcow2, ami, raw, iso, vmdk)")
	buildCmd.Flags().String("id", "", "Build id (derived from the image name when empty)")
	buildCmd.Flags().String("folder", "", "Output folder (last used folder when empty)")
	buildCmd.Flags().String("arch", runtime.GOARCH, "Target architecture (amd64, arm64)")
	buildCmd.Flags().String("filesystem", "", "Root filesystem (ext4, xfs)")
	buildCmd.Flags().String("config", "", "Path to a bootc-image-builder config.toml")
	buildCmd.Flags().String("chown", "", "Owner of the output files (uid:gid)")
	buildCmd.Flags().String("aws-ami-name", "", "AMI name to upload to")
	buildCmd.Flags().String("aws-bucket", "", "S3 bucket used for the AMI upload")
	buildCmd.Flags().String("aws-region", "", "AWS region of the AMI")
	buildCmd.Flags().Bool("overwrite", false, "Overwrite existing output without asking")
	buildCmd.Flags().Bool("detach", false, "Return once the build is started")

	rootCmd.AddCommand(buildCmd, cancelCmd, progressCmd)
}
