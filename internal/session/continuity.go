package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/pipeline"
)

const ContinuityFileName = "continuity.json"

// DefaultContinuityPath returns the continuity file location.
func DefaultContinuityPath() string {
	return filepath.Join(config.ExpandHome(DefaultDir), ContinuityFileName)
}

// Continuity persists per-stage statuses between runs so an interrupted
// deployment resumes where it stopped. The cleanup entry is always present
// even though the deploy runner never executes it; the unwind coordinator
// flips it.
type Continuity struct {
	ProjectName string                         `json:"project_name"`
	LastRun     time.Time                      `json:"last_run"`
	Region      string                         `json:"region"`
	Tasks       map[pipeline.Stage]pipeline.Status `json:"tasks"`

	path string
}

// NewContinuity creates a continuity record with every stage pending.
func NewContinuity(projectName, region, path string) *Continuity {
	c := &Continuity{
		ProjectName: projectName,
		Region:      region,
		Tasks:       make(map[pipeline.Stage]pipeline.Status),
		path:        path,
	}
	c.ensureEntries()
	return c
}

// LoadContinuity reads the continuity file, creating a fresh record when
// the file does not exist. Persisted statuses pass through ParseStatus so
// legacy or corrupt spellings never leak into the closed status set.
func LoadContinuity(path, projectName, region string) (*Continuity, error) {
	if path == "" {
		path = DefaultContinuityPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c := NewContinuity(projectName, region, path)
			return c, c.Save()
		}
		return nil, fmt.Errorf("reading continuity: %w", err)
	}

	var raw struct {
		ProjectName string            `json:"project_name"`
		LastRun     time.Time         `json:"last_run"`
		Region      string            `json:"region"`
		Tasks       map[string]string `json:"tasks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing continuity: %w", err)
	}

	c := &Continuity{
		ProjectName: raw.ProjectName,
		LastRun:     raw.LastRun,
		Region:      raw.Region,
		Tasks:       make(map[pipeline.Stage]pipeline.Status, len(raw.Tasks)),
		path:        path,
	}
	for stage, status := range raw.Tasks {
		c.Tasks[pipeline.Stage(stage)] = pipeline.ParseStatus(status)
	}
	c.ensureEntries()
	return c, nil
}

func (c *Continuity) ensureEntries() {
	for _, stage := range pipeline.Stages() {
		if _, ok := c.Tasks[stage]; !ok {
			c.Tasks[stage] = pipeline.StatusPending
		}
	}
	if _, ok := c.Tasks[pipeline.StageCleanup]; !ok {
		c.Tasks[pipeline.StageCleanup] = pipeline.StatusPending
	}
}

// Save rewrites the whole continuity file.
func (c *Continuity) Save() error {
	path := c.path
	if path == "" {
		path = DefaultContinuityPath()
	}

	c.LastRun = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating continuity directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling continuity: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// StageStatus implements pipeline.Store.
func (c *Continuity) StageStatus(stage pipeline.Stage) pipeline.Status {
	if st, ok := c.Tasks[stage]; ok {
		return st
	}
	return pipeline.StatusPending
}

// SetStageStatus implements pipeline.Store with write-through persistence.
func (c *Continuity) SetStageStatus(stage pipeline.Stage, status pipeline.Status) error {
	c.Tasks[stage] = status
	return c.Save()
}
