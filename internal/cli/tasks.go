package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewTasksCmd создаёт группу команд для просмотра очередей.
func NewTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect task queues",
	}

	cmd.AddCommand(newTasksListCmd(clientFn, outputFn))

	return cmd
}

func newTasksListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var consumer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending tasks of a consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(consumer)
			if err != nil {
				return err
			}

			return out.Tasks(tasks, time.Now())
		},
	}

	cmd.Flags().StringVar(&consumer, "consumer", "orchestrator/", "Consumer id relative to the grid root")

	return cmd
}
