package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/stage"
)

const sampleRate = beep.SampleRate(44100)

type note struct {
	freq float64
	dur  time.Duration
}

var (
	pushNotes    = []note{{330, 40 * time.Millisecond}}
	fragileNotes = []note{{180, 60 * time.Millisecond}, {140, 60 * time.Millisecond}}
	undoNotes    = []note{{660, 30 * time.Millisecond}, {440, 30 * time.Millisecond}}
	goalNotes    = []note{{523, 90 * time.Millisecond}, {659, 90 * time.Millisecond}, {784, 180 * time.Millisecond}}
	lostNotes    = []note{{220, 120 * time.Millisecond}, {110, 240 * time.Millisecond}}
	placeNotes   = []note{{392, 30 * time.Millisecond}}
	startNotes   = []note{{392, 50 * time.Millisecond}, {523, 80 * time.Millisecond}}
)

// sounds plays short tones for stage events. Callbacks run on the stage
// goroutine; speaker.Play only queues the streamer.
type sounds struct {
	stage.NopObserver
	on bool
}

func newSounds(enabled bool) (*sounds, error) {
	if !enabled {
		return &sounds{}, nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return &sounds{}, err
	}
	return &sounds{on: true}, nil
}

func (s *sounds) play(notes []note) {
	if !s.on {
		return
	}
	parts := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		sine, err := generators.SineTone(sampleRate, n.freq)
		if err != nil {
			return
		}
		parts = append(parts, beep.Take(sampleRate.N(n.dur), sine))
	}
	speaker.Play(beep.Seq(parts...))
}

func (s *sounds) OnMoveCommitted(_ entity.ID, _, _ grid.Vec3i, kind movement.Kind) {
	if kind == movement.Pushed {
		s.play(pushNotes)
	}
}

func (s *sounds) OnFragileDestroyed(grid.Vec3i) { s.play(fragileNotes) }
func (s *sounds) OnGoalReached()                { s.play(goalNotes) }
func (s *sounds) OnUndoApplied()                { s.play(undoNotes) }

func (s *sounds) OnRecord(r stage.Record) {
	switch {
	case r.Lost:
		s.play(lostNotes)
	case r.Kind == stage.RecordPlace, r.Kind == stage.RecordRotate:
		s.play(placeNotes)
	case r.Kind == stage.RecordStart:
		s.play(startNotes)
	}
}

func (s *sounds) Close() {
	if s.on {
		speaker.Close()
	}
}
