// Package inventory loads the fleet inventory file: per-device
// connection settings, shared defaults, named groups, and optional SNMP
// community strings. Grounded on the teacher's pkg/agent LoadConfig/
// SaveConfig read-unmarshal-validate pattern, generalized from JSON to
// YAML per the inventory file's documented format.
package inventory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nanoncore/switchfleet/pkg/device"
)

const (
	DefaultPasswordEnv = "NETWORK_PASSWORD"
	defaultTimeout     = 30 * time.Second
	defaultRetries     = 3
	defaultRetryDelay  = 2 * time.Second
)

// DeviceConfig is one device's entry in the inventory, before defaults
// merging and validation.
type DeviceConfig struct {
	Type                   string            `yaml:"type"`
	Host                   string            `yaml:"host"`
	Protocol               string            `yaml:"protocol"`
	Port                   int               `yaml:"port"`
	Username               string            `yaml:"username"`
	Password               string            `yaml:"password,omitempty"`
	PasswordEnv            string            `yaml:"password_env,omitempty"`
	Timeout                int               `yaml:"timeout,omitempty"`
	Retries                int               `yaml:"retries,omitempty"`
	RetryDelay             int               `yaml:"retry_delay,omitempty"`
	EnablePasswordRequired bool              `yaml:"enable_password_required,omitempty"`
	UseSCPWorkflow         bool              `yaml:"use_scp_workflow,omitempty"`
	ConfigPaths            map[string]string `yaml:"config_paths,omitempty"`
}

// Document is the raw, on-disk inventory shape.
type Document struct {
	Defaults DeviceConfig            `yaml:"defaults"`
	Devices  map[string]DeviceConfig `yaml:"devices"`
	Groups   map[string][]string     `yaml:"groups"`
	SNMP     struct {
		Communities []string `yaml:"communities"`
	} `yaml:"snmp"`
}

// Inventory is the loaded, defaults-merged, validated fleet inventory.
type Inventory struct {
	Devices map[string]DeviceConfig
	Groups  map[string][]string
	SNMP    []string
}

// ValidationError aggregates inventory field problems found across every
// device entry, named and formatted like pkg/config's ParseError so CLI
// output is consistent across both load paths.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("inventory: %d problem(s): %v", len(e.Problems), e.Problems)
}

// Load reads and validates the inventory file at path.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("inventory: parse %s: %w", path, err)
	}

	return fromDocument(&doc)
}

func fromDocument(doc *Document) (*Inventory, error) {
	inv := &Inventory{
		Devices: make(map[string]DeviceConfig, len(doc.Devices)),
		Groups:  doc.Groups,
		SNMP:    doc.SNMP.Communities,
	}

	var problems []string
	for id, cfg := range doc.Devices {
		merged := mergeDefaults(doc.Defaults, cfg)
		if errs := validateDevice(id, merged); len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		inv.Devices[id] = merged
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return inv, nil
}

// mergeDefaults fills zero-valued fields of cfg from defaults, then
// applies the documented built-in fallbacks (password_env, timeout,
// retries, retry_delay).
func mergeDefaults(defaults, cfg DeviceConfig) DeviceConfig {
	merged := cfg
	if merged.Type == "" {
		merged.Type = defaults.Type
	}
	if merged.Protocol == "" {
		merged.Protocol = defaults.Protocol
	}
	if merged.Port == 0 {
		merged.Port = defaults.Port
	}
	if merged.Username == "" {
		merged.Username = defaults.Username
	}
	if merged.Password == "" {
		merged.Password = defaults.Password
	}
	if merged.PasswordEnv == "" {
		merged.PasswordEnv = defaults.PasswordEnv
	}
	if merged.PasswordEnv == "" {
		merged.PasswordEnv = DefaultPasswordEnv
	}
	if merged.Timeout == 0 {
		merged.Timeout = defaults.Timeout
	}
	if merged.Timeout == 0 {
		merged.Timeout = int(defaultTimeout.Seconds())
	}
	if merged.Retries == 0 {
		merged.Retries = defaults.Retries
	}
	if merged.Retries == 0 {
		merged.Retries = defaultRetries
	}
	if merged.RetryDelay == 0 {
		merged.RetryDelay = defaults.RetryDelay
	}
	if merged.RetryDelay == 0 {
		merged.RetryDelay = int(defaultRetryDelay.Seconds())
	}
	if !merged.EnablePasswordRequired {
		merged.EnablePasswordRequired = defaults.EnablePasswordRequired
	}
	if !merged.UseSCPWorkflow {
		merged.UseSCPWorkflow = defaults.UseSCPWorkflow
	}
	if merged.ConfigPaths == nil {
		merged.ConfigPaths = defaults.ConfigPaths
	}
	return merged
}

var knownTypes = map[string]bool{
	string(device.TypeBrocade):  true,
	string(device.TypeONTI):     true,
	string(device.TypeOpenWrt):  true,
	string(device.TypeZyxel):    true,
	string(device.TypeZyxelCLI): true,
}

func validateDevice(id string, cfg DeviceConfig) []string {
	var problems []string
	if !knownTypes[cfg.Type] {
		problems = append(problems, fmt.Sprintf("%s: unknown device type %q", id, cfg.Type))
	}
	if cfg.Host == "" {
		problems = append(problems, fmt.Sprintf("%s: host is required", id))
	}
	if cfg.Protocol == "" {
		problems = append(problems, fmt.Sprintf("%s: protocol is required", id))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("%s: port must be in 1-65535, got %d", id, cfg.Port))
	}
	if cfg.Username == "" {
		problems = append(problems, fmt.Sprintf("%s: username is required", id))
	}
	return problems
}

// EffectivePassword resolves cfg's password: the inline value if set
// (discouraged), otherwise the value of its password_env environment
// variable.
func (c DeviceConfig) EffectivePassword() string {
	if c.Password != "" {
		return c.Password
	}
	return os.Getenv(c.PasswordEnv)
}

// DeviceIDs returns the ids in a named group, or every device id when
// group is empty or "all".
func (inv *Inventory) DeviceIDs(group string) []string {
	if group == "" || group == "all" {
		ids := make([]string, 0, len(inv.Devices))
		for id := range inv.Devices {
			ids = append(ids, id)
		}
		return ids
	}
	return inv.Groups[group]
}
