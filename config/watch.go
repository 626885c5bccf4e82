package config

import (
	"github.com/rjeczalik/notify"

	"github.com/aerocore/aerocore/corelog"
)

// Watch reloads and invokes onChange whenever path is rewritten on disk.
// Only the ambient Log/Metrics sections are meant to be hot-reloaded this
// way; GC/IC/JIT knobs are construction-time only (spec §6: "never hot
// swapped on a live heap") and callers should ignore those fields in
// onChange.
func Watch(path string, onChange func(Config)) (stop func(), err error) {
	events := make(chan notify.EventInfo, 4)
	if err := notify.Watch(path, events, notify.Write, notify.Create); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				corelog.Debug("config: reload triggered", "path", ev.Path())
				cfg, err := Load(path)
				if err != nil {
					corelog.Warn("config: reload failed", "err", err)
					continue
				}
				onChange(cfg)
			}
		}
	}()

	return func() {
		notify.Stop(events)
		close(done)
	}, nil
}
