package controller

import (
	"github.com/rs/zerolog"

	"github.com/sweeney/sortline/internal/config"
	"github.com/sweeney/sortline/internal/metrics"
)

// Conveyor mode as reported in logs.
const (
	ModeRun  = "RUN"
	ModeSafe = "SAFE"
)

// conveyor is the driver.Conveyor the controller hands to its driver. Any
// positive speed energizes both conveyor coils; zero or less de-energizes them.
type conveyor struct {
	io      Gateway
	coils   config.Coils
	metrics *metrics.Metrics
	log     zerolog.Logger
	speed   float64
}

func (cv *conveyor) SetSpeed(speed float64) {
	on := speed > 0
	cv.io.WriteBit(cv.coils.EntryConveyor, on)
	cv.io.WriteBit(cv.coils.ExitConveyor, on)

	mode := ModeSafe
	if on {
		mode = ModeRun
	}
	if speed != cv.speed {
		cv.log.Info().Str("mode", mode).Float64("speed", speed).Msg("conveyor")
	}
	cv.speed = speed
	cv.metrics.ConveyorSpeed.Set(speed)
}

// Speed returns the last speed requested by the driver.
func (cv *conveyor) Speed() float64 {
	return cv.speed
}
