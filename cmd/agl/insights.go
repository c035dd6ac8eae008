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

func blockersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blockers <project-id>",
		Short: "Recompute stage blockers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ComputeBlockers(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Status", "Blockers"})
				for _, sb := range items {
					labels := make([]string, 0, len(sb.Blockers))
					for _, b := range sb.Blockers {
						labels = append(labels, fmt.Sprintf("[%s] %s", b.Severity, b.Label))
					}
					tw.AppendRow(table.Row{sb.StageName, sb.Status, strings.Join(labels, "\n")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <project-id>",
		Short: "Compute project health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				h, err := e.GetProjectHealth(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
}

func clientViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client-view <project-id>",
		Short: "Show the client-facing projection of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				v, err := e.GetClientView(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <project-id>",
		Short: "Run the overdue check and recompute blockers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				res, err := e.RunChecks(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func overdueCmd() *cobra.Command {
	od := &cobra.Command{Use: "overdue", Short: "Pause projects with overdue payments"}
	od.AddCommand(&cobra.Command{
		Use:   "check [project-id]",
		Short: "Check one project, or every active project when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				if len(args) == 1 {
					paused, err := e.CheckPaymentOverdue(ctx, args[0], actor)
					if err != nil {
						return err
					}
					return printJSONOrTable(map[string]bool{"paused": paused})
				}
				paused, err := e.CheckAllOverdue(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string][]string{"paused": paused})
			})
		},
	})
	return od
}

func paymentCmd() *cobra.Command {
	pay := &cobra.Command{Use: "payment", Short: "Manage project payments"}
	pay.AddCommand(paymentRecordCmd())
	pay.AddCommand(paymentStatusCmd())
	pay.AddCommand(paymentListCmd())
	return pay
}

func paymentRecordCmd() *cobra.Command {
	var (
		opts engine.PaymentCreateOptions
		date string
	)
	cmd := &cobra.Command{
		Use:   "record <project-id>",
		Short: "Record a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Date, err = parseDate("date", date); err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.RecordPayment(ctx, args[0], opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Label, "label", "", "payment label, matched against stage milestones")
	cmd.Flags().Float64Var(&opts.Amount, "amount", 0, "amount")
	cmd.Flags().StringVar(&date, "date", "", "due or received date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "pending, received or cancelled")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func paymentStatusCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "status <payment-id> <status>",
		Short: "Change a payment status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate("date", date)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.SetPaymentStatus(ctx, args[0], args[1], d, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "payment date (YYYY-MM-DD)")
	return cmd
}

func paymentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List payments of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListPayments(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Label", "Amount", "Status", "Date"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Label, fmt.Sprintf("%.2f", p.Amount), p.Status, formatDate(p.Date)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func documentsCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "documents <project-id>",
		Short: "List generated documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				docs, err := e.ListDocuments(ctx, args[0], docType, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Stage", "Status", "Generated"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.Type, d.Title, d.Stage, d.Status, d.GeneratedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&docType, "type", "", "document type filter")
	return cmd
}

func remarkCmd() *cobra.Command {
	rm := &cobra.Command{Use: "remark", Short: "Project remarks"}
	rm.AddCommand(&cobra.Command{
		Use:   "add <project-id> <text>",
		Short: "Leave a remark on a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r, err := e.AddRemark(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	})
	rm.AddCommand(&cobra.Command{
		Use:   "list <project-id>",
		Short: "List remarks, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListRemarks(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "By", "Remark"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.CreatedAt, actorLabel(r.ActorName, r.ActorID), r.Text})
				}
				tw.Render()
				return nil
			})
		},
	})
	return rm
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manual project timeline entries"}
	var opts engine.ActivityOptions
	add := &cobra.Command{
		Use:   "add <project-id> <action>",
		Short: "Log an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Action = args[1]
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				a, err := e.AddActivity(ctx, args[0], opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	add.Flags().StringVar(&opts.Type, "type", "general", "activity type")
	add.Flags().StringVar(&opts.Icon, "icon", "", "icon shown on the timeline")
	act.AddCommand(add)
	act.AddCommand(&cobra.Command{
		Use:   "list <project-id>",
		Short: "List the latest activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListActivities(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "By", "Type", "Action"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.CreatedAt, actorLabel(a.ActorName, a.ActorID), a.Type, a.Action})
				}
				tw.Render()
				return nil
			})
		},
	})
	return act
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Read the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				events, err := e.ListEvents(ctx, f, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Project", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ProjectID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().Int64Var(&f.Before, "before", 0, "only events older than this id")
	return cmd
}
