package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapwall-app/snapwall/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running wall's local status endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/status", cfg.Status.Addr))
		if err != nil {
			return fmt.Errorf("no wall reachable at %s: %w", cfg.Status.Addr, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
