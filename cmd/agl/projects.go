package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectStatsCmd())
	prj.AddCommand(projectMaintenanceCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var (
		opts           engine.ProjectCreateOptions
		dueDate, start string
		advance        float64
		clientEmail    string
		clientPhone    string
		clientCompany  string
		team           []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with the default stage pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.DueDate, err = parseDate("due", dueDate); err != nil {
				return err
			}
			if opts.StartDate, err = parseDate("start", start); err != nil {
				return err
			}
			if cmd.Flags().Changed("advance-percent") {
				opts.AdvancePercent = &advance
			}
			if clientEmail != "" || clientPhone != "" || clientCompany != "" {
				opts.ClientDetails = &domain.ClientDetails{Email: clientEmail, Phone: clientPhone, Company: clientCompany}
			}
			if opts.Team, err = parseTeam(team); err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.CreateProject(ctx, opts, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Client, "client", "", "client name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "project type")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&opts.TotalAmount, "total", 0, "total contract amount")
	cmd.Flags().Float64Var(&advance, "advance-percent", 0, "advance percentage")
	cmd.Flags().IntVar(&opts.Milestones, "milestones", 0, "number of milestone payments")
	cmd.Flags().StringVar(&clientEmail, "client-email", "", "client email")
	cmd.Flags().StringVar(&clientPhone, "client-phone", "", "client phone")
	cmd.Flags().StringVar(&clientCompany, "client-company", "", "client company")
	cmd.Flags().StringArrayVar(&team, "team", nil, `team member as "Role=Name" or "Role=Name@actor-id" (repeatable)`)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListProjects(ctx, f, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Client", "Mode", "Status", "Stage", "Progress", "Due"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Client, p.Mode, p.Status, p.CurrentStage, fmt.Sprintf("%d%%", p.Progress), formatDate(p.DueDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Mode, "mode", "", "mode filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Client, "client", "", "client filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.GetProject(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, client, typ, priority, status, mode, description, dueDate, start string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProjectUpdateOptions{
				Name:        optionalString(name),
				Client:      optionalString(client),
				Type:        optionalString(typ),
				Priority:    optionalString(priority),
				Status:      optionalString(status),
				Mode:        optionalString(mode),
				Description: optionalString(description),
			}
			var err error
			if opts.DueDate, err = parseDate("due", dueDate); err != nil {
				return err
			}
			if opts.StartDate, err = parseDate("start", start); err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateProject(ctx, args[0], opts, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&typ, "type", "", "project type")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&mode, "mode", "", "mode (active, paused, completed)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	return cmd
}

func projectStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count projects by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				stats, err := e.ProjectStats(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
}

func projectMaintenanceCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "maintenance <project-id>",
		Short: "Move a delivered project into maintenance mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.EnterMaintenanceMode(ctx, args[0], actor, notes)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "maintenance notes")
	return cmd
}

func printProject(p domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	fmt.Printf("%s  %s (%s)\n", p.ID, p.Name, p.Client)
	fmt.Printf("mode=%s status=%s stage=%s progress=%d%% version=%d\n", p.Mode, p.Status, p.CurrentStage, p.Progress, p.Version)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Stage", "ID", "Status", "Approved", "Visible", "Deadline"})
	for _, st := range p.Stages {
		tw.AppendRow(table.Row{st.Order, st.Name, st.ID, st.Status, st.Approved, st.ClientVisible, formatDate(st.Deadline)})
	}
	tw.Render()
	return nil
}

// parseTeam reads "Role=Name" or "Role=Name@actor-id" entries.
func parseTeam(entries []string) ([]domain.TeamMember, error) {
	var team []domain.TeamMember
	for _, raw := range entries {
		role, rest, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(rest) == "" {
			return nil, fmt.Errorf("team: expected Role=Name, got %q", raw)
		}
		name, actorID, _ := strings.Cut(rest, "@")
		team = append(team, domain.TeamMember{
			Role:    strings.TrimSpace(role),
			Name:    strings.TrimSpace(name),
			ActorID: strings.TrimSpace(actorID),
		})
	}
	return team, nil
}
