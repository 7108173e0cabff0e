// Package profile loads stored roast profiles for playback. Profiles are
// JSON files in a flat directory, one per roast, keyed by profile id.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
)

// profileFile is the on-disk shape. Samples reuse the wire field names so
// a captured live stream can be replayed as-is.
type profileFile struct {
	ID       string               `json:"id"`
	Samples  []*domain.Sample     `json:"samples"`
	Controls []map[string]float64 `json:"controls,omitempty"`
}

// Dir serves profiles from a directory of <id>.json files.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profile dir: %s is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Load reads one profile. The id must be a bare name; anything that could
// escape the profile directory is rejected.
func (d *Dir) Load(profileID string) (*domain.Profile, error) {
	if profileID == "" || strings.ContainsAny(profileID, `/\`) || strings.Contains(profileID, "..") {
		return nil, fmt.Errorf("profile: invalid id %q", profileID)
	}

	raw, err := os.ReadFile(filepath.Join(d.root, profileID+".json"))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profileID, err)
	}

	var pf profileFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("profile %s: parse: %w", profileID, err)
	}
	if len(pf.Samples) == 0 {
		return nil, fmt.Errorf("profile %s: no samples", profileID)
	}
	if pf.Controls != nil && len(pf.Controls) != len(pf.Samples) {
		return nil, fmt.Errorf("profile %s: %d control entries for %d samples",
			profileID, len(pf.Controls), len(pf.Samples))
	}

	return &domain.Profile{
		ID:       profileID,
		Samples:  pf.Samples,
		Controls: pf.Controls,
	}, nil
}

var _ ports.ProfileSource = (*Dir)(nil)
