package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agencyline/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.Default("studio")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "studio", cfg.Agency.ID)
	require.Equal(t, 25.0, cfg.Intake.AdvancePercent)
	require.Equal(t, 3, cfg.Intake.Milestones)
	require.Equal(t, 15*time.Second, cfg.Automation.HookTimeout)
	require.Equal(t, time.Hour, cfg.Overdue.CheckInterval)
	require.Contains(t, cfg.RolePermissions("admin"), "stage.approve")
	require.NotContains(t, cfg.RolePermissions("client"), "stage.approve")
	require.NotContains(t, cfg.RolePermissions("client"), "asset.write")
	require.NotContains(t, cfg.RolePermissions("developer"), "stage.submit")
	require.NotContains(t, cfg.RolePermissions("developer"), "stage.update")
	require.Contains(t, cfg.RolePermissions("subadmin"), "stage.submit")
	require.Empty(t, cfg.RolePermissions("intern"))
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := config.GenerateDefault("studio")
	cases := map[string]string{
		"missing role":   strings.Replace(base, "    client:\n", "    customer:\n", 1),
		"bad hook":       strings.Replace(base, "hooks: [stage-summary,", "hooks: [slack-post,", 1),
		"advance range":  strings.Replace(base, "advance_percent: 25", "advance_percent: 140", 1),
		"dup webhook":    base + "webhooks:\n  - id: a\n    url: https://x.test/h\n  - id: a\n    url: https://y.test/h\n",
		"webhook no url": base + "webhooks:\n  - id: a\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestHookEnabled(t *testing.T) {
	var nilCfg *config.Config
	require.True(t, nilCfg.HookEnabled("audit"))

	cfg := config.Default("studio")
	cfg.Automation.Hooks = []string{"stage-summary"}
	require.True(t, cfg.HookEnabled("stage-summary"))
	require.False(t, cfg.HookEnabled("handover-kit"))

	cfg.Automation.Hooks = nil
	require.True(t, cfg.HookEnabled("handover-kit"))
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	require.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "agencyline.yml"), []byte(config.GenerateDefault("studio")), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, "studio", cfg.Agency.ID)
}
