// Package control runs the per-zone fan control loops and the runtime
// that owns them together with the IPMI session registry.
package control

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
)

// fanSession is the actuation surface a controller needs from its zone's
// session. Controllers hold this handle by reference; the session itself
// is owned by the runtime's registry.
type fanSession interface {
	DutyCycle(ctx context.Context, zone int) (int, error)
	SetDutyCycle(ctx context.Context, zone, duty int) error
}

// controller runs one zone's independent sample/aggregate/map/actuate
// loop. Every failure is contained at the tick boundary: the zone logs,
// skips the rest of the tick and retries on the next one.
type controller struct {
	zone    config.Zone
	session fanSession
	sources []sensor.Source
	agg     sensor.Aggregator

	// Last duty cycle applied to the hardware, used only to decide the
	// log level of unchanged ticks. -1 until the first actuation, which
	// leaves the hardware at its power-on duty cycle if no source
	// produces data yet.
	lastDuty int
}

func newController(zone config.Zone, session fanSession, sources []sensor.Source, agg sensor.Aggregator) *controller {
	return &controller{
		zone:     zone,
		session:  session,
		sources:  sources,
		agg:      agg,
		lastDuty: -1,
	}
}

// run ticks the zone at its configured interval until ctx is cancelled.
// Cancellation is only observed between ticks, never mid-actuation.
func (c *controller) run(ctx context.Context) {
	interval := time.Duration(c.zone.Interval) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().
		Str("zone", c.zone.Name).
		Str("interval", interval.String()).
		Int("sources", len(c.sources)).
		Msg("Zone control loop started")

	c.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("zone", c.zone.Name).Msg("Zone control loop stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *controller) tick(ctx context.Context) {
	readings := c.sample(ctx)

	temp, ok := c.agg.Aggregate(readings)
	if !ok {
		logger.Warn().Str("zone", c.zone.Name).Msg("No valid temperature readings, skipping tick")
		return
	}

	duty := curve.Evaluate(c.zone.Steps, temp)
	c.actuate(ctx, temp, duty)
}

// sample polls all sources concurrently. Individual source failures are
// already absorbed inside Read; only usable readings are returned.
func (c *controller) sample(ctx context.Context) []float64 {
	var mu sync.Mutex
	readings := make([]float64, 0, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range c.sources {
		src := src
		g.Go(func() error {
			if value, ok := src.Read(gctx); ok {
				mu.Lock()
				readings = append(readings, value)
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Debug().Str("zone", c.zone.Name).Err(err).Msg("Source sampling interrupted")
	}

	return readings
}

func (c *controller) actuate(ctx context.Context, temp float64, duty int) {
	for _, z := range c.zone.IPMIZones {
		current, err := c.session.DutyCycle(ctx, z)
		if err != nil {
			logger.Error().
				Str("zone", c.zone.Name).
				Int("ipmi_zone", z).
				Err(err).
				Msg("Failed to read duty cycle, skipping tick")
			return
		}

		if err := c.session.SetDutyCycle(ctx, z, duty); err != nil {
			logger.Error().
				Str("zone", c.zone.Name).
				Int("ipmi_zone", z).
				Err(err).
				Msg("Failed to set duty cycle, skipping tick")
			return
		}

		event := logger.Debug()
		if duty != c.lastDuty {
			event = logger.Info()
		}
		event.
			Str("zone", c.zone.Name).
			Int("ipmi_zone", z).
			Float64("temperature", temp).
			Int("current_duty", current).
			Int("target_duty", duty).
			Msg("Zone updated")
	}

	c.lastDuty = duty
}
