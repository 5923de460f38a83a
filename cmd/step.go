package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmpc/api/step"
	"github.com/kilianp07/gridmpc/config"
)

var (
	stepOpts stepFlags
	publish  bool
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run one controller step and print the applied action",
	RunE:  runStep,
}

func init() {
	stepOpts.register(stepCmd)
	stepCmd.Flags().BoolVar(&publish, "publish", false, "publish the setpoint over MQTT even when mqtt.enabled is false")
	rootCmd.AddCommand(stepCmd)
}

func runStep(cmd *cobra.Command, args []string) error {
	svc, _, err := loadService(func(c *config.Config) {
		if publish {
			c.MQTT.Enabled = true
		}
	})
	if err != nil {
		return err
	}
	defer closeService(svc)

	req := stepOpts.request(cmd, svc.DefaultRisk())
	id, a, err := svc.Step(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), step.Response{StepID: id, Action: a})
}
