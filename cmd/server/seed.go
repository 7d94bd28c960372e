package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/drone-fleet-maintenance/internal/seed"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load pieces, drones and operators from a YAML file",
		Long:  "Creates every record of the seed file that does not exist yet. Drones are matched by id, pieces by name and operators by username or email.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := seed.Apply(cmd.Context(), seed.Stores{
				Pieces:    a.pieces,
				Drones:    a.drones,
				Operators: a.operators,
			}, f, service.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d record(s), %d already present\n", res.Created, res.Skipped)
			return nil
		},
	}
}
