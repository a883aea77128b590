package replay

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
)

// ScheduledAttack activates Vector at Offset after the replay started.
type ScheduledAttack struct {
	Vector attack.Vector
	Offset time.Duration
}

type Schedule []ScheduledAttack

type attackSetter interface {
	SetAttack(ctx context.Context, v attack.Vector) error
}

// ParseSchedule parses entries of the form vector@duration, the result is
// ordered by offset.
func ParseSchedule(entries []string) (Schedule, error) {
	ret := make(Schedule, 0, len(entries))
	for _, e := range entries {
		name, offset, ok := strings.Cut(e, "@")
		if !ok {
			return nil, fmt.Errorf("attack %q: want vector@duration", e)
		}
		v, err := attack.ParseVector(name)
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(offset)
		if err != nil {
			return nil, fmt.Errorf("attack %q: %w", e, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("attack %q: negative offset", e)
		}
		ret = append(ret, ScheduledAttack{Vector: v, Offset: d})
	}
	slices.SortStableFunc(ret, func(a, b ScheduledAttack) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return ret, nil
}

// Run applies the schedule in the background. The returned function stops
// pending activations.
func (s Schedule) Run(ctx context.Context, target attackSetter) func() {
	if len(s) == 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		start := time.Now()
		for _, a := range s {
			t := time.NewTimer(time.Until(start.Add(a.Offset)))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if err := target.SetAttack(ctx, a.Vector); err != nil {
				log.Warn("could not set attack", log.ErrorField(err))
				return
			}
			log.Info("attack activated", log.String("vector", a.Vector.String()),
				log.Duration("offset", a.Offset))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func formatOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "png"
	}
	return ext
}
