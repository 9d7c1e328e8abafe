package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jrsteele09/go-tenant-access/internal/config"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/session"
	"github.com/jrsteele09/go-tenant-access/workspace"
	"github.com/spf13/cobra"
)

type cli struct {
	cfg      config.Config
	tenantID string
}

func newRootCmd(cfg config.Config) *cobra.Command {
	c := &cli{cfg: cfg}
	rootCmd := &cobra.Command{
		Use:           "hrctl",
		Short:         "HR dashboard API access client",
		Long:          `hrctl signs in to the HR backend, keeps the session token fresh and reads tenant-scoped resources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.tenantID, "tenant", "", "Tenant to act in (defaults to the home tenant)")

	rootCmd.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.fetchCmd(),
		c.invalidateCmd(),
		c.switchTenantCmd(),
		c.forgotPasswordCmd(),
		c.resetPasswordCmd(),
		c.changePasswordCmd(),
		c.serveFakeCmd(),
	)
	return rootCmd
}

func (c *cli) workspace() (*workspace.Context, error) {
	w, err := workspace.New(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build workspace: %w", err)
	}
	return w, nil
}

// restore rehydrates the persisted session and applies --tenant.
func (c *cli) restore(ctx context.Context) (*workspace.Context, session.Session, error) {
	w, err := c.workspace()
	if err != nil {
		return nil, session.Session{}, err
	}
	s, err := w.Session().Restore(ctx)
	if errors.Is(err, errors.ErrNoToken) {
		return nil, session.Session{}, fmt.Errorf("not logged in, run `hrctl login`")
	}
	if err != nil {
		return nil, session.Session{}, err
	}
	if c.tenantID != "" && c.tenantID != s.TenantID {
		if s, err = w.Session().SwitchTenant(ctx, c.tenantID, ""); err != nil {
			return nil, session.Session{}, err
		}
	}
	return w, s, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
