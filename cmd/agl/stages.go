package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/engine/rules"
)

func stageCmd() *cobra.Command {
	st := &cobra.Command{Use: "stage", Short: "Work on project stages"}
	st.AddCommand(stageUpdateCmd())
	st.AddCommand(stageItemCmd())
	st.AddCommand(stageVisibilityCmd())
	st.AddCommand(stageLinkPaymentCmd())
	st.AddCommand(stageReportCmd())
	st.AddCommand(stageSubmitCmd())
	st.AddCommand(stageReviewCmd())
	st.AddCommand(stageApproveCmd())
	return st
}

func stageUpdateCmd() *cobra.Command {
	var status, health, repoURL, liveURL, hosting, domainURL, ssl, summary, deadline, milestone string
	cmd := &cobra.Command{
		Use:   "update <project-id> <stage-id>",
		Short: "Update stage fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.StageUpdateOptions{
				Status:                 optionalString(status),
				Health:                 optionalString(health),
				RepoURL:                optionalString(repoURL),
				LiveURL:                optionalString(liveURL),
				HostingProvider:        optionalString(hosting),
				DomainURL:              optionalString(domainURL),
				SSLStatus:              optionalString(ssl),
				Summary:                optionalString(summary),
				LinkedPaymentMilestone: optionalString(milestone),
			}
			var err error
			if opts.Deadline, err = parseDate("deadline", deadline); err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateStage(ctx, args[0], args[1], opts, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "stage status")
	cmd.Flags().StringVar(&health, "health", "", "stage health")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "repository url")
	cmd.Flags().StringVar(&liveURL, "live-url", "", "live url")
	cmd.Flags().StringVar(&hosting, "hosting", "", "hosting provider")
	cmd.Flags().StringVar(&domainURL, "domain", "", "domain url")
	cmd.Flags().StringVar(&ssl, "ssl", "", "ssl status")
	cmd.Flags().StringVar(&summary, "summary", "", "summary")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&milestone, "payment-milestone", "", "linked payment milestone label")
	return cmd
}

func stageItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "item <project-id> <stage-id> <item-id> <done>",
		Short: "Tick or untick a checklist item",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := strconv.ParseBool(args[3])
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateStageItem(ctx, args[0], args[1], args[2], done, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func stageVisibilityCmd() *cobra.Command {
	var visible bool
	cmd := &cobra.Command{
		Use:   "visibility <project-id> <stage-id>",
		Short: "Set or toggle whether the client sees a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target *bool
			if cmd.Flags().Changed("visible") {
				target = &visible
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.ToggleStageVisibility(ctx, args[0], args[1], target, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().BoolVar(&visible, "visible", true, "explicit visibility (toggles when omitted)")
	return cmd
}

func stageLinkPaymentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link-payment <project-id> <stage-id> <milestone>",
		Short: "Gate a stage on a payment milestone",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.LinkPaymentToStage(ctx, args[0], args[1], args[2], actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func stageReportCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "report <project-id> <stage-id>",
		Short: "Build a stage report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				report, err := e.StageReport(ctx, args[0], args[1], kind, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", rules.ReportTechnical, "report type (technical, client, handover)")
	return cmd
}

func stageSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <project-id> <stage-id>",
		Short: "Submit a stage for approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.SubmitStageForApproval(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func stageReviewCmd() *cobra.Command {
	var decision, comment string
	cmd := &cobra.Command{
		Use:   "review <project-id> <stage-id>",
		Short: "Record the sub-admin review of a submitted stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.SubadminReviewStage(ctx, args[0], args[1], actor, decision, comment)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", domain.DecisionApproved, "approved or rejected")
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func stageApproveCmd() *cobra.Command {
	var decision, comment string
	cmd := &cobra.Command{
		Use:   "approve <project-id> <stage-id>",
		Short: "Record the admin decision; approval advances the project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.AdminApproveStage(ctx, args[0], args[1], actor, decision, comment)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", domain.DecisionApproved, "approved or rejected")
	cmd.Flags().StringVar(&comment, "comment", "", "approval comment")
	return cmd
}

func assetCmd() *cobra.Command {
	as := &cobra.Command{Use: "asset", Short: "Manage client asset requests"}
	as.AddCommand(assetAddCmd())
	as.AddCommand(assetUpdateCmd())
	as.AddCommand(assetDeleteCmd())
	return as
}

func assetAddCmd() *cobra.Command {
	var opts engine.AssetCreateOptions
	cmd := &cobra.Command{
		Use:   "add <project-id> <stage-id>",
		Short: "Request an asset from the client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.AddAssetRequest(ctx, args[0], args[1], opts, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Label, "label", "", "asset label")
	cmd.Flags().StringVar(&opts.Type, "type", "", "asset type")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note for the client")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func assetUpdateCmd() *cobra.Command {
	var status, fileName, fileURL, note string
	cmd := &cobra.Command{
		Use:   "update <project-id> <stage-id> <asset-id>",
		Short: "Update an asset request",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.AssetUpdateOptions{
				Status:   optionalString(status),
				FileName: optionalString(fileName),
				FileURL:  optionalString(fileURL),
				Note:     optionalString(note),
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateAssetRequest(ctx, args[0], args[1], args[2], opts, actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "asset status")
	cmd.Flags().StringVar(&fileName, "file-name", "", "uploaded file name")
	cmd.Flags().StringVar(&fileURL, "file-url", "", "uploaded file url")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func assetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id> <stage-id> <asset-id>",
		Short: "Delete an asset request",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.DeleteAssetRequest(ctx, args[0], args[1], args[2], actor)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}
