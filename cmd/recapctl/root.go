package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skillsenselab/recap/client"
	"github.com/skillsenselab/recap/version"
)

var (
	flagServer string
	flagToken  string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recapctl",
		Short: "Upload meeting recordings and fetch transcripts and insights",
		Long:  "recapctl talks to a recap server: it uploads recordings, submits them for transcription and insight extraction, and polls until results are ready.",
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.PersistentFlags().StringVar(&flagServer, "server", envOr("RECAP_SERVER", "http://localhost:8080"), "recap server base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("RECAP_TOKEN"), "Bearer token (defaults to RECAP_TOKEN)")

	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newReprocessCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newCreditsCmd())

	return rootCmd
}

func newClient() *client.Client {
	return client.New(client.Config{
		BaseURL: flagServer,
		Token:   flagToken,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
