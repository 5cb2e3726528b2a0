package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

func newCheckAccessCmd(a *app) *cobra.Command {
	var employeeID, deviceID string

	cmd := &cobra.Command{
		Use:   "check-access",
		Short: "Evaluate an employee against a device without recording a swipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer b.close()

			checks := service.NewCheckService(b.stores, service.Options{
				LookupTimeout: a.cfg.LookupTimeout,
				Location:      a.cfg.Location,
				Logger:        a.log,
			})
			resp, err := checks.Check(ctx, types.CheckAccessRequest{
				EmployeeID: types.FlexibleID(employeeID),
				DeviceID:   types.FlexibleID(deviceID),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&deviceID, "device", "", "device id")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}
