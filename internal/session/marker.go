package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/config"
)

const MarkerFileName = "unwind-progress.json"

// DefaultMarkerPath returns the teardown completion marker location.
func DefaultMarkerPath() string {
	return filepath.Join(config.ExpandHome(DefaultDir), MarkerFileName)
}

// Marker records a completed teardown. It embeds a verbatim copy of the
// session at the moment the last resource was removed, so what existed can
// still be audited after the live state files are gone.
type Marker struct {
	Completed   bool            `json:"completed"`
	CompletedAt time.Time       `json:"completed_at"`
	Session     json.RawMessage `json:"session,omitempty"`
}

// WriteMarker writes the completion marker with the given session snapshot.
func WriteMarker(path string, sessionRaw []byte) error {
	if path == "" {
		path = DefaultMarkerPath()
	}

	m := Marker{
		Completed:   true,
		CompletedAt: time.Now(),
		Session:     sessionRaw,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling marker: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadMarker reads the marker. A missing file returns (nil, nil).
func LoadMarker(path string) (*Marker, error) {
	if path == "" {
		path = DefaultMarkerPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading marker: %w", err)
	}

	m := &Marker{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing marker: %w", err)
	}
	return m, nil
}
