package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch RESOURCE",
		Short: "Fetch a resource collection for the active tenant",
		Long:  `Fetches GET /RESOURCE (employees, departments, payroll, leave-requests, ...) with the session's tenant.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := c.restore(cmd.Context())
			if err != nil {
				return err
			}
			records, err := w.Records(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(records)
		},
	}
}

func (c *cli) invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate [RESOURCE...]",
		Short: "Refetch resources of the active tenant, dropping cached copies first",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, s, err := c.restore(cmd.Context())
			if err != nil {
				return err
			}
			if err := w.Invalidate(args...); err != nil {
				return err
			}
			for _, resource := range args {
				entry, err := w.Fetch(cmd.Context(), resource)
				if err != nil {
					return err
				}
				fmt.Printf("%s/%s: %s\n", s.TenantID, resource, entry.Status)
			}
			return nil
		},
	}
}
