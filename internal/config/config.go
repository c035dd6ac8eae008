package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config models agencyline.yml.
type Config struct {
	Agency struct {
		ID   string `yaml:"id" json:"id" validate:"required"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"agency" json:"agency"`
	Intake     Intake     `yaml:"intake" json:"intake"`
	Automation Automation `yaml:"automation" json:"automation"`
	Overdue    Overdue    `yaml:"overdue" json:"overdue"`
	RBAC       struct {
		Roles map[string]RBACRole `yaml:"roles" json:"roles" validate:"required,dive"`
	} `yaml:"rbac" json:"rbac"`
	Webhooks []Webhook `yaml:"webhooks" json:"webhooks" validate:"dive"`
}

// Intake holds the payment schedule defaults applied when a project is created.
type Intake struct {
	AdvancePercent float64 `yaml:"advance_percent" json:"advance_percent" validate:"gte=0,lte=100"`
	Milestones     int     `yaml:"milestones" json:"milestones" validate:"gte=1,lte=12"`
}

type Automation struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	HookTimeout time.Duration `yaml:"hook_timeout" json:"hook_timeout" validate:"gte=0"`
	Hooks       []string      `yaml:"hooks" json:"hooks" validate:"dive,oneof=stage-summary handover-kit maintenance-agreement feedback-request audit"`
}

type Overdue struct {
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval" validate:"gte=0"`
}

type RBACRole struct {
	Description string   `yaml:"description" json:"description"`
	Permissions []string `yaml:"permissions" json:"permissions" validate:"dive,required"`
}

type Webhook struct {
	ID     string   `yaml:"id" json:"id" validate:"required"`
	URL    string   `yaml:"url" json:"url" validate:"required,url"`
	Events []string `yaml:"events" json:"events"`
	Secret string   `yaml:"secret" json:"secret,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, required := range []string{"admin", "subadmin", "developer", "client"} {
		if _, ok := c.RBAC.Roles[required]; !ok {
			return fmt.Errorf("config.rbac.roles must include %s", required)
		}
	}
	seen := map[string]bool{}
	for _, wh := range c.Webhooks {
		if seen[wh.ID] {
			return fmt.Errorf("config.webhooks has duplicate id %s", wh.ID)
		}
		seen[wh.ID] = true
	}
	return nil
}

// RolePermissions returns the permission set of a role, empty for unknown roles.
func (c *Config) RolePermissions(role string) []string {
	if c == nil {
		return nil
	}
	return c.RBAC.Roles[role].Permissions
}

// HookEnabled reports whether the named automation hook is configured.
// An empty hook list enables every hook.
func (c *Config) HookEnabled(name string) bool {
	if c == nil || len(c.Automation.Hooks) == 0 {
		return true
	}
	for _, h := range c.Automation.Hooks {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "agencyline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with agl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(agencyID string) string {
	return fmt.Sprintf(defaultTemplate, agencyID)
}

// Default returns the default Config for an agency.
func Default(agencyID string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(agencyID)), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `agency:
  id: %s
  name: "Agency"

intake:
  advance_percent: 25
  milestones: 3

automation:
  enabled: true
  hook_timeout: 15s
  hooks: [stage-summary, handover-kit, maintenance-agreement, feedback-request, audit]

overdue:
  check_interval: 1h

rbac:
  roles:
    admin:
      description: "Agency owner, approves stages"
      permissions:
        - project.create
        - project.read
        - project.update
        - project.maintenance
        - stage.update
        - stage.submit
        - stage.review
        - stage.approve
        - stage.visibility
        - asset.write
        - payment.write
        - payment.link
        - blockers.compute
        - health.read
        - overdue.check
        - client_view.read
        - report.read
        - events.read
        - remark.write
        - activity.write
        - apikey.manage
    subadmin:
      description: "Project lead, first-tier review"
      permissions:
        - project.read
        - stage.update
        - stage.submit
        - stage.review
        - asset.write
        - blockers.compute
        - health.read
        - client_view.read
        - report.read
        - events.read
        - remark.write
        - activity.write
    developer:
      description: "Delivery team member"
      permissions:
        - project.read
        - blockers.compute
        - health.read
        - report.read
        - remark.write
    client:
      description: "Client contact"
      permissions:
        - client_view.read
`
