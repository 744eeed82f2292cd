package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// newHealthcheckCmd probes /healthz of a local server. Used by container
// HEALTHCHECK so the image needs no wget/curl; it does no server setup.
func newHealthcheckCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Exit 0 if the local server answers /healthz",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v := os.Getenv("BLOGD_PORT"); v != "" && !cmd.Flags().Changed("port") {
				port = v
			}
			client := &http.Client{Timeout: 3 * time.Second}
			resp, err := client.Get("http://127.0.0.1:" + port + "/healthz")
			if err != nil {
				return fmt.Errorf("healthcheck: %w", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck: status %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "3000", "Port of the local server")
	return cmd
}
