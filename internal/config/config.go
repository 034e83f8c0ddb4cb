package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.pipewright/pipewright.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version     int               `yaml:"version"`
	Project     ProjectConfig     `yaml:"project"`
	AWS         AWSConfig         `yaml:"aws,omitempty"`
	SourceDB    SourceDBConfig    `yaml:"source_db"`
	Replication ReplicationConfig `yaml:"replication,omitempty"`
	Storage     StorageConfig     `yaml:"storage,omitempty"`
	Monitoring  MonitoringConfig  `yaml:"monitoring,omitempty"`
	Logging     LogConfig         `yaml:"logging,omitempty"`
}

// ProjectConfig names the deployment.
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// AWSConfig defines credentials and region selection.
type AWSConfig struct {
	Region  string            `yaml:"region,omitempty"`
	Profile string            `yaml:"profile,omitempty"`
	Tags    map[string]string `yaml:"tags,omitempty"`
}

// SourceDBConfig defines the managed source database.
type SourceDBConfig struct {
	Engine           string `yaml:"engine"` // postgres or sqlserver
	InstanceID       string `yaml:"instance_id,omitempty"`
	InstanceClass    string `yaml:"instance_class,omitempty"`
	AllocatedStorage int32  `yaml:"allocated_storage,omitempty"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database,omitempty"`
	Table            string `yaml:"table,omitempty"`
	Port             int    `yaml:"port,omitempty"`
}

// ReplicationConfig defines the replication instance, endpoints, and task.
type ReplicationConfig struct {
	InstanceID       string `yaml:"instance_id,omitempty"`
	InstanceClass    string `yaml:"instance_class,omitempty"`
	AllocatedStorage int32  `yaml:"allocated_storage,omitempty"`
	SourceEndpoint   string `yaml:"source_endpoint,omitempty"`
	TargetEndpoint   string `yaml:"target_endpoint,omitempty"`
	TaskID           string `yaml:"task_id,omitempty"`
	RoleName         string `yaml:"role_name,omitempty"`
}

// StorageConfig defines the object-storage target.
type StorageConfig struct {
	Bucket string `yaml:"bucket,omitempty"` // default: dms-data-ingestion-<account>
	Folder string `yaml:"folder,omitempty"`
}

// MonitoringConfig defines alarm notification settings.
type MonitoringConfig struct {
	Email string `yaml:"email,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.pipewright/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) validate() error {
	switch c.SourceDB.Engine {
	case "postgres", "sqlserver":
	case "":
		return fmt.Errorf("source_db.engine is required (postgres or sqlserver)")
	default:
		return fmt.Errorf("unsupported source_db.engine %q (postgres or sqlserver)", c.SourceDB.Engine)
	}
	if c.SourceDB.Username == "" {
		return fmt.Errorf("source_db.username is required")
	}
	if c.SourceDB.Password == "" {
		return fmt.Errorf("source_db.password is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Project.Name == "" {
		c.Project.Name = "pipewright"
	}
	if c.SourceDB.InstanceID == "" {
		c.SourceDB.InstanceID = "dms-source-db"
	}
	if c.SourceDB.InstanceClass == "" {
		c.SourceDB.InstanceClass = "db.t3.medium"
	}
	if c.SourceDB.AllocatedStorage == 0 {
		c.SourceDB.AllocatedStorage = 20
	}
	if c.SourceDB.Database == "" {
		c.SourceDB.Database = "SRC_DB"
	}
	if c.SourceDB.Table == "" {
		c.SourceDB.Table = "raw_src"
	}
	if c.SourceDB.Port == 0 {
		if c.SourceDB.Engine == "sqlserver" {
			c.SourceDB.Port = 1433
		} else {
			c.SourceDB.Port = 5432
		}
	}
	if c.Replication.InstanceID == "" {
		c.Replication.InstanceID = "dms-replication-instance"
	}
	if c.Replication.InstanceClass == "" {
		c.Replication.InstanceClass = "dms.t3.medium"
	}
	if c.Replication.AllocatedStorage == 0 {
		c.Replication.AllocatedStorage = 50
	}
	if c.Replication.SourceEndpoint == "" {
		c.Replication.SourceEndpoint = c.SourceDB.Engine + "-source"
	}
	if c.Replication.TargetEndpoint == "" {
		c.Replication.TargetEndpoint = "s3-target"
	}
	if c.Replication.TaskID == "" {
		c.Replication.TaskID = c.SourceDB.Engine + "-to-s3-migration"
	}
	if c.Replication.RoleName == "" {
		c.Replication.RoleName = "dms-s3-access-role"
	}
	if c.Storage.Folder == "" {
		c.Storage.Folder = "dms-sql-data"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.pipewright/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.SourceDB.Password, err = ResolveValue(c.SourceDB.Password)
	if err != nil {
		return fmt.Errorf("source_db password: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
