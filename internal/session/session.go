package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/config"
)

const (
	DefaultDir      = "~/.pipewright"
	SessionFileName = "working-parameters.json"
)

// DefaultSessionPath returns the session file location.
func DefaultSessionPath() string {
	return filepath.Join(config.ExpandHome(DefaultDir), SessionFileName)
}

// Session is the durable record of one deployment: its identity, the cloud
// resources created so far, and the resolved configuration values. Unknown
// top-level keys written by other tool versions survive a load/save cycle
// untouched.
type Session struct {
	ProjectName      string
	DeploymentID     string
	Region           string
	LastUpdated      time.Time
	CreatedResources map[string]string
	Configuration    map[string]string

	extra map[string]json.RawMessage
	path  string
}

// New creates a fresh session with a generated deployment ID.
func New(projectName, region, path string) *Session {
	return &Session{
		ProjectName:      projectName,
		DeploymentID:     newDeploymentID(),
		Region:           region,
		CreatedResources: make(map[string]string),
		Configuration:    make(map[string]string),
		path:             path,
	}
}

func newDeploymentID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to a time-derived id; uniqueness per operator is enough
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b[:])
}

// Load reads the session file. A missing file returns os.ErrNotExist.
func Load(path string) (*Session, error) {
	if path == "" {
		path = DefaultSessionPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	s := &Session{path: path}
	if err := s.unmarshal(data); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return s, nil
}

// LoadOrCreate reads the session file, creating a fresh session when the
// file does not exist yet.
func LoadOrCreate(path, projectName, region string) (*Session, error) {
	if path == "" {
		path = DefaultSessionPath()
	}

	s, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s = New(projectName, region, path)
			return s, s.Save()
		}
		return nil, err
	}
	return s, nil
}

// Save rewrites the whole session file.
func (s *Session) Save() error {
	path := s.path
	if path == "" {
		path = DefaultSessionPath()
	}

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := s.marshal()
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Path returns where the session is persisted.
func (s *Session) Path() string {
	if s.path == "" {
		return DefaultSessionPath()
	}
	return s.path
}

// Raw returns the serialized session, for embedding in the unwind marker.
func (s *Session) Raw() ([]byte, error) {
	return s.marshal()
}

// Resource returns a recorded resource value, or "" when absent.
func (s *Session) Resource(key string) string {
	return s.CreatedResources[key]
}

// SetResource records a resource value and saves immediately. An empty
// value never overwrites an existing non-empty record, so a re-run that
// observes less than a prior run cannot erase what was already learned.
func (s *Session) SetResource(key, value string) error {
	if value == "" && s.CreatedResources[key] != "" {
		return nil
	}
	s.CreatedResources[key] = value
	return s.Save()
}

// Config returns a recorded configuration value, or "" when absent.
func (s *Session) Config(key string) string {
	return s.Configuration[key]
}

// SetConfig records a configuration value and saves immediately, with the
// same overwrite discipline as SetResource.
func (s *Session) SetConfig(key, value string) error {
	if value == "" && s.Configuration[key] != "" {
		return nil
	}
	s.Configuration[key] = value
	return s.Save()
}

// knownKeys are the session fields this version understands; everything
// else round-trips through extra.
var knownKeys = map[string]bool{
	"project_name":      true,
	"deployment_id":     true,
	"region":            true,
	"last_updated":      true,
	"created_resources": true,
	"configuration":     true,
}

func (s *Session) unmarshal(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var fields struct {
		ProjectName      string            `json:"project_name"`
		DeploymentID     string            `json:"deployment_id"`
		Region           string            `json:"region"`
		LastUpdated      time.Time         `json:"last_updated"`
		CreatedResources map[string]string `json:"created_resources"`
		Configuration    map[string]string `json:"configuration"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	s.ProjectName = fields.ProjectName
	s.DeploymentID = fields.DeploymentID
	s.Region = fields.Region
	s.LastUpdated = fields.LastUpdated
	s.CreatedResources = fields.CreatedResources
	s.Configuration = fields.Configuration
	if s.CreatedResources == nil {
		s.CreatedResources = make(map[string]string)
	}
	if s.Configuration == nil {
		s.Configuration = make(map[string]string)
	}

	s.extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownKeys[k] {
			s.extra[k] = v
		}
	}
	return nil
}

func (s *Session) marshal() ([]byte, error) {
	out := make(map[string]interface{}, len(knownKeys)+len(s.extra))
	out["project_name"] = s.ProjectName
	out["deployment_id"] = s.DeploymentID
	out["region"] = s.Region
	out["last_updated"] = s.LastUpdated
	out["created_resources"] = s.CreatedResources
	out["configuration"] = s.Configuration
	for k, v := range s.extra {
		out[k] = v
	}
	return json.MarshalIndent(out, "", "  ")
}
