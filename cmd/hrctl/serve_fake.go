package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-tenant-access/internal/testserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (c *cli) serveFakeCmd() *cobra.Command {
	var addr, email, password string
	var accessTTL time.Duration
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run an in-memory HR backend for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(c.cfg.GetAppName())

			backend := testserver.New(testserver.WithAccessTTL(accessTTL))
			if err := backend.AddUser(testserver.User{
				ID:        7,
				Email:     email,
				Password:  password,
				FirstName: "Demo",
				LastName:  "User",
				Role:      "hr_manager",
				TenantID:  3,
				Tenants:   []int64{3, 4},
			}); err != nil {
				return err
			}
			backend.SetResource("3", "employees",
				map[string]any{"id": 1, "name": "Grace Hopper"},
				map[string]any{"id": 2, "name": "Alan Turing"},
			)
			backend.SetResource("4", "employees", map[string]any{"id": 3, "name": "Linus Torvalds"})
			backend.SetResource("3", "departments", map[string]any{"id": 10, "name": "People"})

			server := &http.Server{Addr: addr, Handler: backend}
			errs := make(chan error, 1)
			go func() { errs <- listenAndServe(server) }()

			select {
			case err := <-errs:
				return err
			case <-waitForStopSignal():
			}
			return shutdown(server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&email, "email", "demo@example.com", "Seeded account email")
	cmd.Flags().StringVar(&password, "password", "password", "Seeded account password")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 15*time.Minute, "Access token lifetime")
	return cmd
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Fake backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Fake backend stopped")
	return nil
}
