package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"agencyline/internal/app"
	"agencyline/internal/db"
	"agencyline/internal/domain"
	"agencyline/internal/engine"
	"agencyline/internal/logging"
	"agencyline/internal/migrate"
	"agencyline/internal/repo"
)

const dateLayout = "2006-01-02"

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), r)
		if err != nil {
			return err
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		e := engine.New(r.DB, cfg).WithObservability(log, nil)
		return fn(ctx, e)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newLogger() (*zap.Logger, error) {
	return logging.New(viper.GetString("log-level"), viper.GetString("log-format"))
}

// cliActor is the actor every CLI command runs as.
func cliActor() (domain.Actor, error) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(viper.GetString("actor-id")),
		Name: strings.TrimSpace(viper.GetString("actor-name")),
		Role: strings.TrimSpace(viper.GetString("actor-role")),
	}
	if actor.ID == "" {
		return domain.Actor{}, fmt.Errorf("actor-id is required")
	}
	if !domain.ValidActorRole(actor.Role) {
		return domain.Actor{}, fmt.Errorf("unknown actor role %q", actor.Role)
	}
	return actor, nil
}

// run resolves the engine and the actor before calling fn.
func run(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	actor, err := cliActor()
	if err != nil {
		return err
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e, actor)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func actorLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
