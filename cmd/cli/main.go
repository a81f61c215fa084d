package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/media-dl-go/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "media-dl",
		Short: "media-dl CLI - Download YouTube and Instagram media",
		Long:  `A command-line client for the media download server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serverCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Download a video or its audio track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		format, _ := cmd.Flags().GetString("format")
		platformName, _ := cmd.Flags().GetString("platform")
		output, _ := cmd.Flags().GetString("output")

		kind, err := domain.ParseOutputKind(format)
		if err != nil {
			return err
		}
		platform := domain.ClassifyPlatform(url)
		if platformName != "" {
			platform = domain.ParsePlatform(platformName)
		}
		if !platform.IsSupported() {
			return fmt.Errorf("unsupported platform for %s", url)
		}

		ensureServer()

		// no overall timeout: the progress stream lasts as long as the job
		client := &http.Client{}
		done, err := requestDownload(client, serverURL, platform, url, kind, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		path, err := saveArtifact(client, serverURL, done, output)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var health map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return fmt.Errorf("invalid health response: %w", err)
		}
		pretty, _ := json.MarshalIndent(health, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server unhealthy (%d)", resp.StatusCode)
		}
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the local media-dl-server",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ensureServerRunning()
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a server started by this CLI",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := stopServer(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the server is running",
	Run: func(cmd *cobra.Command, args []string) {
		if isServerRunning() {
			fmt.Fprintf(cmd.OutOrStdout(), "Server running at %s\n", serverURL)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server not running at %s\n", serverURL)
	},
}

func init() {
	getCmd.Flags().StringP("format", "f", "video", "Output format (audio, video)")
	getCmd.Flags().StringP("platform", "p", "", "Platform (youtube, instagram); detected from the URL when empty")
	getCmd.Flags().StringP("output", "o", ".", "Directory to save the file in")

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverStatusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
