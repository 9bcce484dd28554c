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

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Manage bootc images on the podman engine",
}

var imagesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List local bootc images",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		images, err := newClient().Images(ctx, engineID)
		if err != nil {
			return fmt.Errorf("failed to list images: %w", err)
		}
		if jsonOutput {
			return printJSON(images)
		}
		if len(images) == 0 {
			fmt.Println("No bootc images found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAMES\tSIZE")
		for _, img := range images {
			id := img.ID
			if len(id) > 12 {
				id = id[:12]
			}
			fmt.Fprintf(w, "%s\t%s\t%d MB\n", id, strings.Join(img.Names, ","), img.Size/(1<<20))
		}
		w.Flush()
		return nil
	},
}

var imagesPullCmd = &cobra.Command{
	Use:   "pull <image[:tag]>",
	Short: "Pull an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Minute)
		defer cancel()

		if err := newClient().PullImage(ctx, types.PullRequest{Image: args[0], EngineID: engineID}); err != nil {
			return fmt.Errorf("failed to pull image: %w", err)
		}
		fmt.Printf("✓ Pulled %s\n", args[0])
		return nil
	},
}

var imagesPruneCmd = &cobra.Command{
	Use:   "prune <image:tag>",
	Short: "Remove older tags of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(5 * time.Minute)
		defer cancel()

		res, err := newClient().PruneImages(ctx, types.PruneRequest{Image: args[0], EngineID: engineID})
		if err != nil {
			return fmt.Errorf("failed to prune images: %w", err)
		}
		if len(res.Removed) == 0 {
			fmt.Println("Nothing to prune")
			return nil
		}
		for _, id := range res.Removed {
			fmt.Printf("✓ Removed %s\n", id)
		}
		return nil
	},
}

var imagesManifestCmd = &cobra.Command{
	Use:   "manifest <image[:tag]>",
	Short: "List the platforms an image is published for",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(30 * time.Second)
		defer cancel()

		platforms, err := newClient().Manifest(ctx, args[0], engineID)
		if err != nil {
			return fmt.Errorf("failed to inspect manifest: %w", err)
		}
		if jsonOutput {
			return printJSON(platforms)
		}
		for _, p := range platforms {
			fmt.Printf("%s/%s\t%s\n", p.OS, p.Architecture, p.Digest)
		}
		return nil
	},
}

func init() {
	imagesCmd.AddCommand(imagesListCmd, imagesPullCmd, imagesPruneCmd, imagesManifestCmd)
	rootCmd.AddCommand(imagesCmd)
}
