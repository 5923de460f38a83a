package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmpc/core/mpc"
)

var planOpts stepFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Solve the horizon and print every slot of the optimal trajectory",
	RunE:  runPlan,
}

func init() {
	planOpts.register(planCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	svc, _, err := loadService(nil)
	if err != nil {
		return err
	}
	defer closeService(svc)

	req := planOpts.request(cmd, svc.DefaultRisk())
	id, plan, err := svc.Plan(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), struct {
		StepID string    `json:"step_id"`
		Plan   *mpc.Plan `json:"plan"`
	}{id, plan})
}
