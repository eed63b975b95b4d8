package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ethanbaker/melissa/internal/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the HTTP API without audio (text chat, gate control, memories, metrics)",
	GroupID: "assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c, err := newComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		c.janitor.Start()

		return api.Start(ctx, api.Options{
			Config:    cfg,
			Logger:    logger,
			Gate:      c.gate,
			Sessions:  c.sessions,
			Responder: c.runner,
			Memory:    c.memory,
			Metrics:   c.metrics,
		})
	},
}
