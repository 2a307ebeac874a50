package cache

import (
	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
)

const defaultSweepSchedule = "@every 10m"

// StartSweeper schedules a periodic expiry sweep. The returned cron runner
// should be stopped on shutdown.
func (e *Engine) StartSweeper(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = defaultSweepSchedule
	}

	runner := cron.New()

	err := runner.AddFunc(schedule, func() {
		removed := e.CleanupExpired()
		if removed > 0 {
			log.Debug().Int("removed", removed).Msg("Swept expired cache entries")
		}
	})
	if err != nil {
		return nil, err
	}

	runner.Start()

	return runner, nil
}
