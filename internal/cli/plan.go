package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/planner"
)

// NewPlanCmd создаёт группу команд для работы с deployment plan.
func NewPlanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage deployment plan",
	}

	cmd.AddCommand(
		newPlanApplyCmd(clientFn, outputFn),
		newPlanShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newPlanApplyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var scales []string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Submit a services file as the new deployment plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			// Файл проверяется локально, до отправки
			f, err := planner.LoadFile(file)
			if err != nil {
				return err
			}

			for _, kv := range scales {
				name, n, err := parseScale(kv)
				if err != nil {
					return err
				}
				if f, err = planner.Scale(f, name, n); err != nil {
					return err
				}
			}

			if err := planner.Validate(f); err != nil {
				return err
			}

			data, err := yaml.Marshal(f)
			if err != nil {
				return fmt.Errorf("failed to encode plan: %w", err)
			}

			result, err := client.ApplyPlanFile(data)
			if err != nil {
				return err
			}

			out.Notice("Plan submitted to %s", result.OrchestratorID)

			rows := make([]planRow, len(f.Services))
			for i, svc := range f.Services {
				rows[i] = planRow{Service: svc.Name, Instances: svc.Instances, Min: svc.Min, Max: svc.Max}
			}
			return out.Plan(rows, result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Services YAML file (required)")
	cmd.Flags().StringSliceVar(&scales, "scale", nil, "Override instances as NAME=N (repeatable)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newPlanShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the deployment plan the orchestrator is executing",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.GetDeploymentPlan()
			if err != nil {
				return err
			}

			var plan domain.DeploymentPlan
			if err := json.Unmarshal(resp.Plan, &plan); err != nil {
				return fmt.Errorf("failed to decode plan: %w", err)
			}

			rows := make([]planRow, len(plan.Services))
			for i, svc := range plan.Services {
				rows[i] = planRow{
					Service:   svc.Config.ServiceID,
					Instances: len(svc.Instances),
					Min:       svc.Config.MinInstances,
					Max:       svc.Config.MaxInstances,
				}
			}
			return out.Plan(rows, plan)
		},
	}
}

// parseScale разбирает NAME=N.
func parseScale(kv string) (string, int, error) {
	name, value, ok := strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("invalid scale format %q, expected NAME=N", kv)
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return "", 0, fmt.Errorf("invalid instances in %q: %w", kv, err)
	}
	return name, n, nil
}
