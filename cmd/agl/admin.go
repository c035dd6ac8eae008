package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"agencyline/internal/app"
	"agencyline/internal/config"
	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/metrics"
	"agencyline/internal/repo"
	"agencyline/internal/server"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the agency configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var agencyID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default agencyline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(agencyID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&agencyID, "agency", app.DefaultAgencyID, "agency id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the agency config stored in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the agency config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				if actor.Role != domain.RoleAdmin {
					return fmt.Errorf("config import requires the admin role")
				}
				if err := e.ImportAgencyConfig(ctx, cfg, actor); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	keys.AddCommand(apiKeyCreateCmd())
	keys.AddCommand(apiKeyListCmd())
	keys.AddCommand(apiKeyRevokeCmd())
	return keys
}

func apiKeyCreateCmd() *cobra.Command {
	var holder domain.Actor
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				key, plain, err := e.CreateAPIKey(ctx, holder, name, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "role": key.Role, "key": plain})
				}
				fmt.Printf("created key %s for %s (%s)\n", key.ID, key.ActorID, key.Role)
				fmt.Println("key (shown once):", plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&holder.ID, "for-actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&holder.Role, "for-role", domain.RoleDeveloper, "role of that actor")
	cmd.Flags().StringVar(&holder.Name, "for-name", "", "display name of that actor")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("for-actor")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				keys, err := e.ListAPIKeys(ctx, actorID, actor)
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = ""
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Role", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Role, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				if err := e.RevokeAPIKey(ctx, args[0], actor); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), r)
				if err != nil {
					return err
				}
				m := metrics.New()
				e := engine.New(r.DB, cfg).WithObservability(log, m)
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt-secret"),
					AllowLegacyActorHeader: allowLegacy,
					DevLogin:               devLogin,
					Logger:                 log,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("AGENCYLINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: log, Metrics: m})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e, log)
				server.StartOverdueScheduler(ctx, e, cfg.Overdue.CheckInterval, log)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving agencyline api",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.Bool("legacy_actor_headers", allowLegacy),
					zap.Bool("dev_login", devLogin),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-actor-headers", false, "accept X-Actor-Id/X-Actor-Role headers (local development only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose the dev login endpoint that mints tokens")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (or AGENCYLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
