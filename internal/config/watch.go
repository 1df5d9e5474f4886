package config

import (
	"context"
	"os"
	"time"
)

// WatchPractitioners reloads practitioners.yaml when its mtime changes and
// calls onUpdate with the parsed config. It performs an initial load before
// entering the watch loop; a file that fails to parse mid-flight is skipped
// and the previous configuration stays in effect.
func WatchPractitioners(ctx context.Context, path string, interval time.Duration, onUpdate func(*PractitionersConfig)) error {
	if path == "" {
		path = "configs/practitioners.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadPractitioners(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadPractitioners(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
