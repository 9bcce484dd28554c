package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bootcforge/bootcforge/pkg/client"
)

var (
	baseURL    string
	apiKey     string
	engineID   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "bforge",
	Short: "bootcforge CLI - Build disk images from bootable containers",
	Long: `bootcforge CLI (bforge) drives a bootcforge server.

It builds qcow2, raw, ami, iso and vmdk disk images from bootc container images
with bootc-image-builder, keeps a history of builds, manages the bootc images
on the podman engine and boots raw disks in a local QEMU VM.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("BOOTCFORGE_URL", "http://localhost:8080"), "bootcforge API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("BOOTCFORGE_API_KEY"), "bootcforge API key")
	rootCmd.PersistentFlags().StringVar(&engineID, "engine", os.Getenv("BOOTCFORGE_ENGINE"), "podman connection to use (server default when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	return client.NewClient(baseURL, apiKey)
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
