package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	persistlog "voxelpush.ai/internal/persistence/log"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/tuning"
)

const (
	frameMs   = 50
	noticeMs  = 1500
	replyWait = 2 * time.Second
)

func main() {
	var (
		packPath   = flag.String("pack", "./levels/pack.yaml", "level pack manifest")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (defaults when missing)")
		levelID    = flag.String("level", "", "level id to start on (default: first level of the pack)")
		dataDir    = flag.String("data", "", "write turn logs under this dir (optional)")
		mute       = flag.Bool("mute", false, "disable sound")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[play] ", log.LstdFlags)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	base, err := stage.ConfigFromTuning(tune)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	pack, err := level.LoadManifest(*packPath)
	if err != nil {
		logger.Fatalf("load pack: %v", err)
	}

	snd, err := newSounds(!*mute)
	if err != nil {
		// Non-fatal, the game runs without sound.
		logger.Printf("audio init failed: %v", err)
	}
	defer snd.Close()

	obs := stage.Observers{snd}
	var turnLog *persistlog.TurnLogger
	if *dataDir != "" {
		turnLog = persistlog.NewTurnLogger(*dataDir)
		defer turnLog.Close()
		obs = append(obs, turnLog)
	}

	s := stage.New(base, obs)
	load := stage.PackLoader(pack, base)
	s.SetLoader(load)
	lv, cfg, err := load("", *levelID)
	if err != nil {
		logger.Fatalf("level: %v", err)
	}
	if err := s.Load(lv, cfg); err != nil {
		logger.Fatalf("load level: %v", err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		logger.Fatalf("screen init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, nil) }()

	g := &game{screen: screen, inputs: s.Inputs()}
	g.run()

	screen.Fini()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("stage stopped: %v", err)
	}
	if turnLog != nil {
		if err := turnLog.Err(); err != nil {
			logger.Printf("turn log: %v", err)
		}
	}
}

type game struct {
	screen tcell.Screen
	inputs chan<- stage.Input

	view *stage.View
	// zone is the drop zone cursor during setup.
	zone int

	notice     string
	noticeTime time.Time
}

var keyDirs = map[tcell.Key]grid.Dir{
	tcell.KeyUp:    grid.North,
	tcell.KeyRight: grid.East,
	tcell.KeyDown:  grid.South,
	tcell.KeyLeft:  grid.West,
}

var runeDirs = map[rune]grid.Dir{
	'w': grid.North, 'k': grid.North,
	'd': grid.East, 'l': grid.East,
	's': grid.South, 'j': grid.South,
	'a': grid.West, 'h': grid.West,
}

func (g *game) send(in stage.Input) stage.Reply {
	reply := make(chan stage.Reply, 1)
	in.Reply = reply
	select {
	case g.inputs <- in:
	case <-time.After(replyWait):
		return stage.Reply{Err: errors.New("stage busy")}
	}
	select {
	case rep := <-reply:
		return rep
	case <-time.After(replyWait):
		return stage.Reply{Err: errors.New("no reply")}
	}
}

func (g *game) refresh() {
	if rep := g.send(stage.Input{Kind: stage.InputQuery}); rep.View != nil {
		g.view = rep.View
	}
}

func (g *game) flash(msg string) {
	g.notice = msg
	g.noticeTime = time.Now()
}

// handleInput reports false when the player quits.
func (g *game) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
			(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			return false
		}

		var in stage.Input
		if su := g.setupView(); su != nil {
			if si, ok := g.setupInput(ev, su); ok {
				if si.Kind != stage.InputQuery {
					if rep := g.send(si); rep.Err != nil {
						g.flash(fmt.Sprintf("%s: %v", si.Kind, rep.Err))
					}
				}
				g.refresh()
				return true
			}
		}
		if d, ok := keyDirs[ev.Key()]; ok {
			in = stage.Input{Kind: stage.InputMove, Dir: d}
		} else if ev.Key() == tcell.KeyBackspace || ev.Key() == tcell.KeyBackspace2 {
			in = stage.Input{Kind: stage.InputUndo}
		} else if ev.Key() == tcell.KeyRune {
			r := ev.Rune()
			switch {
			case runeDirs[r] != grid.DirNone:
				in = stage.Input{Kind: stage.InputMove, Dir: runeDirs[r]}
			case r == 'u' || r == 'z':
				in = stage.Input{Kind: stage.InputUndo}
			case r == 'r':
				in = stage.Input{Kind: stage.InputRestart}
			case r == 'n':
				in = stage.Input{Kind: stage.InputLoad}
			default:
				return true
			}
		} else {
			return true
		}

		rep := g.send(in)
		if rep.Err != nil {
			g.flash(fmt.Sprintf("%s: %v", in.Kind, rep.Err))
		}
		g.refresh()

	case *tcell.EventResize:
		g.screen.Sync()
	}
	return true
}

func (g *game) setupView() *stage.SetupView {
	if g.view == nil || g.view.Setup == nil || g.view.Setup.Started || len(g.view.Setup.Zones) == 0 {
		return nil
	}
	return g.view.Setup
}

// setupInput maps setup keys: Tab moves the zone cursor, 1-9 drop that
// pool slot on it, o turns the arrow under it, Enter starts.
func (g *game) setupInput(ev *tcell.EventKey, su *stage.SetupView) (stage.Input, bool) {
	g.zone %= len(su.Zones)
	cur := grid.FromArray(su.Zones[g.zone])
	switch {
	case ev.Key() == tcell.KeyTab:
		g.zone = (g.zone + 1) % len(su.Zones)
		return stage.Input{Kind: stage.InputQuery}, true
	case ev.Key() == tcell.KeyEnter:
		return stage.Input{Kind: stage.InputStart}, true
	case ev.Key() != tcell.KeyRune:
		return stage.Input{}, false
	}
	r := ev.Rune()
	switch {
	case r >= '1' && r <= '9':
		return stage.Input{Kind: stage.InputPlace, Slot: int(r - '1'), Pos: cur}, true
	case r == 'o':
		return stage.Input{Kind: stage.InputRotate, Pos: cur}, true
	}
	return stage.Input{}, false
}

func (g *game) run() {
	ticker := time.NewTicker(frameMs * time.Millisecond)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := g.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	g.refresh()
	for {
		select {
		case ev := <-eventChan:
			if !g.handleInput(ev) {
				return
			}
		case <-ticker.C:
			// Tick-driven levels change without input.
			if g.view != nil && g.view.Trigger == stage.TriggerTick {
				g.refresh()
			}
		}
		g.draw()
	}
}

var (
	styleText  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleDim   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleAlert = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleWin   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
)

var kindStyles = map[string]tcell.Style{
	"WALL":         tcell.StyleDefault.Foreground(tcell.ColorSilver),
	"GOAL":         tcell.StyleDefault.Foreground(tcell.ColorGreen),
	"FRAGILE":      tcell.StyleDefault.Foreground(tcell.ColorOlive),
	"LAVA":         tcell.StyleDefault.Foreground(tcell.ColorRed),
	"TELEPORT":     tcell.StyleDefault.Foreground(tcell.ColorPurple),
	"ZONE":         tcell.StyleDefault.Foreground(tcell.ColorBlue),
	"ARROW":        tcell.StyleDefault.Foreground(tcell.ColorFuchsia),
	"ONOFF_SWITCH": tcell.StyleDefault.Foreground(tcell.ColorTeal),
	"SWITCH_PLATE": tcell.StyleDefault.Foreground(tcell.ColorTeal),
	"PLAYER":       tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
	"BOX":          tcell.StyleDefault.Foreground(tcell.ColorOrange),
	"ROBOT":        tcell.StyleDefault.Foreground(tcell.ColorAqua),
}

func (g *game) text(x, y int, s string, style tcell.Style) {
	for i, r := range s {
		g.screen.SetContent(x+i, y, r, nil, style)
	}
}

func (g *game) draw() {
	g.screen.Clear()
	v := g.view
	if v == nil {
		g.text(0, 0, "waiting for stage...", styleDim)
		g.screen.Show()
		return
	}

	status := fmt.Sprintf("level %s  turn %d  undo %d  %s", v.LevelID, v.State.Turn, v.UndoDepth, v.Trigger)
	g.text(0, 0, status, styleText)
	switch {
	case v.State.GoalReached:
		g.text(len(status)+2, 0, "CLEARED (n: next level)", styleWin)
	case v.State.Lost:
		g.text(len(status)+2, 0, "LOST (u: undo, r: restart)", styleAlert)
	}

	rows, err := board(v.State)
	if err != nil {
		g.text(0, 2, err.Error(), styleAlert)
	}
	overlaySetup(rows, v.Setup, g.zone)
	for y, row := range rows {
		for x, c := range row {
			style, ok := kindStyles[c.kind]
			if !ok {
				style = styleDim
			}
			g.screen.SetContent(x*2, y+2, c.r, nil, style)
		}
	}

	help := "arrows/wasd move  u undo  r restart  n next  q quit"
	if su := g.setupView(); su != nil {
		help = "tab zone  1-9 place  o rotate  enter start  " + help
		pool := "pool:"
		for _, gm := range su.Pool {
			mark := ""
			if gm.Placed {
				mark = "*"
			}
			pool += fmt.Sprintf(" %d=%s%s%s", gm.Slot+1, gm.Kind, gm.Dir, mark)
		}
		g.text(0, 1, pool, styleDim)
	}
	g.text(0, len(rows)+3, help, styleDim)
	if g.notice != "" && time.Since(g.noticeTime).Milliseconds() < noticeMs {
		g.text(0, len(rows)+4, g.notice, styleAlert)
	}
	g.screen.Show()
}
