// ABOUTME: Agent config subcommands for the admin CLI
// ABOUTME: add, list, set-prompt, set-temperature, and delete

package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/2389/agentdesk/internal/builtins"
	"github.com/2389/agentdesk/internal/store"
)

var knownTypes = []string{
	builtins.TypeGeneric,
	builtins.TypeWeather,
	builtins.TypeWindy,
	builtins.TypeOpenSky,
	builtins.TypeSkyAnalysis,
}

type agentFlags struct {
	Name        string
	Type        string
	Prompt      string
	Temperature float64
}

func (f *agentFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Name, "name", "", "display name (required)")
	fs.StringVar(&f.Type, "type", builtins.TypeGeneric, "agent type ("+strings.Join(knownTypes, ",")+")")
	fs.StringVar(&f.Prompt, "prompt", "", "system prompt override")
	fs.Float64Var(&f.Temperature, "temperature", store.DefaultTemperature, "sampling temperature between 0 and 2")
}

func (f *agentFlags) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("--name is required")
	}
	if !slices.Contains(knownTypes, f.Type) {
		return fmt.Errorf("unknown agent type %q (known: %s)", f.Type, strings.Join(knownTypes, ", "))
	}
	return store.ValidateTemperature(f.Temperature)
}

func newAgentCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agent configurations",
	}

	af := &agentFlags{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an agent configuration",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return af.Validate()
		},
	}
	af.BindFlags(add.Flags())
	add.RunE = f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
		cfg := &store.AgentConfig{
			ID:           uuid.New().String(),
			Name:         strings.TrimSpace(af.Name),
			Type:         af.Type,
			SystemPrompt: af.Prompt,
			Temperature:  af.Temperature,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.CreateAgentConfig(ctx, cfg); err != nil {
			return err
		}
		success(add.OutOrStdout(), "created %s agent %q with id %s", cfg.Type, cfg.Name, cfg.ID)
		return nil
	})

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List agent configurations",
		Args:  cobra.NoArgs,
	}
	list.Flags().IntVar(&limit, "limit", 100, "maximum agents to show")
	list.Flags().IntVar(&offset, "offset", 0, "agents to skip")
	list.RunE = f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
		agents, err := s.ListAgentConfigs(ctx, limit, offset)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(list.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTEMP\tPROMPT")
		for _, a := range agents {
			prompt := "-"
			if a.SystemPrompt != "" {
				prompt = truncate(a.SystemPrompt, 40)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", a.ID, a.Name, a.Type, a.Temperature, prompt)
		}
		return tw.Flush()
	})

	setPrompt := &cobra.Command{
		Use:   "set-prompt AGENT_ID PROMPT",
		Short: "Replace an agent's system prompt (empty string clears it)",
		Args:  cobra.ExactArgs(2),
	}
	setPrompt.RunE = func(cmd *cobra.Command, args []string) error {
		return f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
			a, err := s.UpdateAgentSystemPrompt(ctx, args[0], args[1])
			if err != nil {
				return describe("agent", args[0], err)
			}
			success(cmd.OutOrStdout(), "updated prompt of agent %s", a.ID)
			return nil
		})(cmd, args)
	}

	setTemp := &cobra.Command{
		Use:   "set-temperature AGENT_ID TEMPERATURE",
		Short: "Change an agent's sampling temperature",
		Args:  cobra.ExactArgs(2),
	}
	setTemp.RunE = func(cmd *cobra.Command, args []string) error {
		t, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("temperature %q is not a number", args[1])
		}
		if err := store.ValidateTemperature(t); err != nil {
			return err
		}
		return f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
			a, err := s.UpdateAgentTemperature(ctx, args[0], t)
			if err != nil {
				return describe("agent", args[0], err)
			}
			success(cmd.OutOrStdout(), "agent %s temperature is now %.2f", a.ID, a.Temperature)
			return nil
		})(cmd, args)
	}

	del := &cobra.Command{
		Use:   "delete AGENT_ID",
		Short: "Delete an agent configuration without history",
		Args:  cobra.ExactArgs(1),
	}
	del.RunE = func(cmd *cobra.Command, args []string) error {
		return f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
			if err := s.DeleteAgentConfig(ctx, args[0]); err != nil {
				return describe("agent", args[0], err)
			}
			success(cmd.OutOrStdout(), "deleted agent %s", args[0])
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(add, list, setPrompt, setTemp, del)
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
