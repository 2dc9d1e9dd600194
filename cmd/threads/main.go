package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threads/internal/client"
	"github.com/alfredjeanlab/threads/internal/ui"
)

var (
	httpURL    string
	serverAddr string
	transport  string
	token      string
	retries    int
	jsonOutput bool
	noColor    bool
	author     string

	threadsClient client.ThreadsClient
)

func defaultAuthor() string {
	if s := os.Getenv("THREADS_AUTHOR"); s != "" {
		return s
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func defaultHTTPURL() string {
	if s := os.Getenv("THREADS_URL"); s != "" {
		return s
	}
	if r := activeRemote(); r.URL != "" {
		return r.URL
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("THREADS_SERVER"); s != "" {
		return s
	}
	if r := activeRemote(); r.GRPCAddr != "" {
		return r.GRPCAddr
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("THREADS_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultTransport() string {
	if s := os.Getenv("THREADS_TRANSPORT"); s != "" {
		return s
	}
	if r := activeRemote(); r.Transport != "" {
		return r.Transport
	}
	return "http"
}

// newClient builds the client for the selected transport.
func newClient() (client.ThreadsClient, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, client.WithToken(token), client.WithRetries(retries)), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, token, retries)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

var rootCmd = &cobra.Command{
	Use:          "threads <command>",
	Short:        "CLI for the threaded comments service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		if retries < 0 {
			return fmt.Errorf("--retries must not be negative")
		}
		if threadsClient != nil {
			return nil
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		threadsClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if threadsClient != nil {
			threadsClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", defaultTransport(), "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().IntVar(&retries, "retries", activeRemote().Retries, "retry a mutation this many times on conflict")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "comments", Title: "Comments:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Comments
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(destroyCmd)

	// Views
	rootCmd.AddCommand(rootsCmd)
	rootCmd.AddCommand(nestedCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(subtreeCmd)
	rootCmd.AddCommand(ancestorsCmd)
	rootCmd.AddCommand(byUserCmd)

	// System
	rootCmd.AddCommand(hasCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
