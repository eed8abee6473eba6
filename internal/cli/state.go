package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewStateCmd создаёт группу команд для чтения документов.
func NewStateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect entity states",
	}

	cmd.AddCommand(
		newStateListCmd(clientFn, outputFn),
		newStateGetCmd(clientFn, outputFn),
		newStateSetPropertyCmd(clientFn, outputFn),
	)

	return cmd
}

func newStateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List state ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ids, err := client.ListStates(prefix)
			if err != nil {
				return err
			}

			return out.IDs(ids)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Id prefix relative to the grid root (agents/, services/)")

	return cmd
}

func newStateGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a state document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			state, err := client.GetState(args[0])
			if err != nil {
				return err
			}

			summary, err := summarize(state)
			if err != nil {
				out.Warn("%v", err)
			}
			return out.Document(state, summary)
		},
	}
}

func newStateSetPropertyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "set-property INSTANCE KEY=VALUE",
		Short: "Set a property of a service instance (KEY= removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			key, value, ok := strings.Cut(args[1], "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid property %q, expected KEY=VALUE", args[1])
			}

			result, err := client.SetInstanceProperty(args[0], key, value)
			if err != nil {
				return err
			}

			if out.jsonMode {
				return out.JSON(result)
			}
			out.Notice("Property %s of %s sent to %s", result.Key, result.InstanceID, result.AgentID)
			return nil
		},
	}
}

// NewStatusCmd создаёт команду обзора агентов, сервисов и instances.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show progress of all agents, services and instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var summaries []stateSummary
			for _, prefix := range []string{"agents/", "services/"} {
				ids, err := client.ListStates(prefix)
				if err != nil {
					return err
				}
				for _, id := range ids {
					state, err := client.GetState(id)
					if err != nil {
						return err
					}
					summary, err := summarize(state)
					if err != nil {
						out.Warn("%v", err)
					}
					summaries = append(summaries, summary)
				}
			}

			return out.Summaries(summaries)
		},
	}
}

// stateSummary — строка обзора status.
type stateSummary struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Progress string `json:"progress"`
	Detail   string `json:"detail,omitempty"`
}

// summarize извлекает из документа общие поля всех сущностей.
// Нераспознанный документ даёт строку с kind и id и ошибку.
func summarize(state *StateResponse) (stateSummary, error) {
	var doc struct {
		Progress    string   `json:"progress"`
		IPAddress   string   `json:"ip_address"`
		AgentID     string   `json:"agent_id"`
		InstanceIDs []string `json:"instance_ids"`
	}
	decodeErr := json.Unmarshal(state.State, &doc)

	s := stateSummary{ID: state.ID, Progress: doc.Progress}
	switch {
	case strings.Contains(state.ID, "/instances/"):
		s.Kind = "instance"
		s.Detail = doc.AgentID
	case strings.Contains(state.ID, "/agents/"):
		s.Kind = "agent"
		s.Detail = doc.IPAddress
	case strings.Contains(state.ID, "/services/"):
		s.Kind = "service"
		s.Detail = strconv.Itoa(len(doc.InstanceIDs)) + " instances"
	default:
		s.Kind = "other"
	}

	if decodeErr != nil {
		s.Progress = "?"
		return s, fmt.Errorf("decode %s: %w", state.ID, decodeErr)
	}
	return s, nil
}
