package stage

import (
	"fmt"

	"voxelpush.ai/internal/sim/level"
)

// PackLoader resolves level ids against a manifest. An empty id means the
// level after current, or the first level when nothing is loaded. Per-level
// overrides are applied on top of base.
func PackLoader(m *level.Manifest, base Config) Loader {
	return func(current, requested string) (*level.Level, Config, error) {
		var (
			e  level.Entry
			ok bool
		)
		switch {
		case requested != "":
			e, ok = m.Entry(requested)
		case current != "":
			e, ok = m.Next(current)
		case len(m.Levels) > 0:
			e, ok = m.Levels[0], true
		}
		if !ok {
			id := requested
			if id == "" {
				id = "after " + current
			}
			return nil, Config{}, fmt.Errorf("%w: %s", ErrUnknownLevel, id)
		}
		cfg, err := base.WithEntry(e)
		if err != nil {
			return nil, Config{}, err
		}
		lv, err := m.Load(e)
		if err != nil {
			return nil, Config{}, err
		}
		return lv, cfg, nil
	}
}
