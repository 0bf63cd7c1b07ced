package main

import (
	"github.com/spf13/cobra"

	"github.com/sakif/product-catalog/internal/server"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	// Start blocks until SIGINT/SIGTERM and closes the server on return.
	return srv.Start()
}
