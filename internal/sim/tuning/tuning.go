package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	CellSize    float64 `yaml:"cell_size"`
	LayerHeight float64 `yaml:"layer_height"`

	// Trigger is the default turn source: "input" or "tick".
	Trigger string `yaml:"trigger"`
	TickMs  int    `yaml:"tick_ms"`

	GoalAirForBoxes   bool   `yaml:"goal_air_for_boxes"`
	GoalAirForActors  bool   `yaml:"goal_air_for_actors"`
	PortalMode        string `yaml:"portal_mode"`
	Traversal         string `yaml:"traversal"`
	RobotsAvoidLedges bool   `yaml:"robots_avoid_ledges"`

	UndoLimit int `yaml:"undo_limit"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		CellSize:          2.0,
		LayerHeight:       2.0,
		Trigger:           "input",
		TickMs:            500,
		GoalAirForBoxes:   true,
		PortalMode:        "floor",
		Traversal:         "layered",
		RobotsAvoidLedges: true,
	}
}

// Load overlays the file at path on Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.CellSize <= 0 || t.LayerHeight <= 0 {
		return fmt.Errorf("cell_size and layer_height must be positive")
	}
	switch t.Trigger {
	case "input", "tick":
	default:
		return fmt.Errorf("trigger must be input or tick, got %q", t.Trigger)
	}
	if t.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be positive")
	}
	switch t.PortalMode {
	case "floor", "walkin":
	default:
		return fmt.Errorf("portal_mode must be floor or walkin, got %q", t.PortalMode)
	}
	switch t.Traversal {
	case "layered", "column":
	default:
		return fmt.Errorf("traversal must be layered or column, got %q", t.Traversal)
	}
	if t.UndoLimit < 0 {
		return fmt.Errorf("undo_limit must be >= 0")
	}
	return nil
}
