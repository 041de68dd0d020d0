package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapwall-app/snapwall/internal/buildinfo"
)

func version() string {
	v := "dev"
	if buildinfo.CommitHash != "" {
		v = buildinfo.CommitHash
	}
	if buildinfo.BuildTime != "" {
		v += " (built " + buildinfo.BuildTime + ")"
	}
	return v
}

var rootCmd = &cobra.Command{
	Use:   "snapwall",
	Short: "Live photo wall client for shared events",
	Long: `Snapwall keeps an event's photo wall in sync with the server over a
long-lived realtime channel and buffers guest captures locally until they
are confirmed uploaded.

Guests join an event with a share token; the wall shows every photo as it
arrives and rotates through them unattended.`,
	Version: version(),
}

func main() {
	log.SetFlags(log.LstdFlags)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
