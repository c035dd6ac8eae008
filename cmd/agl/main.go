package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agencyline/internal/db"
)

var rootCmd = &cobra.Command{
	Use:   "agl",
	Short: "Agencyline CLI",
	Long: `Agencyline runs client projects through a fixed pipeline of stages.
- Workspace: the .agencyline directory holding the SQLite database. The agency config lives in the DB and is seeded from agencyline.yml.
- Project: one client engagement with its stages, team, payments and health.
- Stages: Requirement, Design, Frontend, Backend, Testing, Hosting & Deployment, Delivery and, after handover, Maintenance.
- Approval: a stage is submitted, reviewed by a sub-admin, then approved by an admin. Approval advances the project to the next stage.
- Blockers: missing assets, unfinished checklist items and pending milestone payments keep a stage blocked.
- Overdue: a pending payment dated in the past pauses an active project.
- Event log: every change is recorded, view it with 'agl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	viper.SetEnvPrefix("AGENCYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-admin", "actor identifier")
	flags.String("actor-role", "admin", "actor role (admin, subadmin, developer, client)")
	flags.String("actor-name", "", "actor display name")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "console", "log format (console or json)")
	for _, name := range []string{"workspace", "json", "actor-id", "actor-role", "actor-name", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(blockersCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(clientViewCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(overdueCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(documentsCmd())
	rootCmd.AddCommand(remarkCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}
