package system

import "time"

// Ticker is anything that advances one logical tick; *ecs.Manager is the
// production implementation.
type Ticker interface {
	UpdateSystems(dt time.Duration)
}

// Hook runs on the driving goroutine after every completed tick. tick counts
// from 1.
type Hook func(tick uint64)
