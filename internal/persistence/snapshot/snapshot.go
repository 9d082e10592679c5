package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	LevelID string `json:"level_id"`
	Turn    uint64 `json:"turn"`
	Cleared bool   `json:"cleared,omitempty"`
}

// SessionV1 is a saved play session: the level layout, the rules it was
// played under, the live state and the undo history.
type SessionV1 struct {
	Header Header `json:"header"`

	Layout  string   `json:"layout"`
	Trigger string   `json:"trigger"`
	TickMs  int      `json:"tick_ms,omitempty"`
	Policy  PolicyV1 `json:"policy"`

	Current StateV1   `json:"current"`
	History []StateV1 `json:"history,omitempty"`

	// Setup is set for levels with drop zones. The pool itself is part of
	// Layout.
	Setup *SetupV1 `json:"setup,omitempty"`
}

type SetupV1 struct {
	Started bool          `json:"started"`
	Placed  []PlacementV1 `json:"placed,omitempty"`
}

type PlacementV1 struct {
	Slot int    `json:"slot"`
	Pos  [3]int `json:"pos"`
	Dir  string `json:"dir,omitempty"`
}

type PolicyV1 struct {
	GoalAirForBoxes   bool   `json:"goal_air_for_boxes"`
	GoalAirForActors  bool   `json:"goal_air_for_actors"`
	PortalMode        string `json:"portal_mode"`
	Traversal         string `json:"traversal"`
	RobotsAvoidLedges bool   `json:"robots_avoid_ledges"`
}

// StateV1 is one turn boundary. Cells and Boxes are RLE strings (see
// internal/sim/encoding).
type StateV1 struct {
	Dims       [3]int     `json:"dims"`
	Cells      string     `json:"cells"`
	Boxes      string     `json:"boxes"`
	SwitchOpen bool       `json:"switch_open,omitempty"`
	NextID     uint32     `json:"next_id"`
	Entities   []EntityV1 `json:"entities"`

	GoalReached bool   `json:"goal_reached,omitempty"`
	Lost        bool   `json:"lost,omitempty"`
	Turn        uint64 `json:"turn"`
}

type EntityV1 struct {
	ID     uint32 `json:"id"`
	Kind   string `json:"kind"`
	Pos    [3]int `json:"pos"`
	Facing string `json:"facing,omitempty"`
}

func WriteSession(path string, s SessionV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(s.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&s); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSession(path string) (SessionV1, error) {
	var s SessionV1
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return s, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line; gob also carries it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&s); err != nil {
		return s, fmt.Errorf("gob decode: %w", err)
	}
	if s.Header.Version != Version {
		return s, fmt.Errorf("unsupported session version %d", s.Header.Version)
	}
	return s, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
