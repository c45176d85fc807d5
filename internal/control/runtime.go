package control

import (
	"context"
	"reflect"
	"sync"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/ipmi"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
)

const restoreDutyCycle = 100

// Runtime owns every session and every zone control loop. Zones refer to
// sessions by name; the runtime resolves the reference at start and keeps
// sessions alive until all referencing loops have stopped.
type Runtime struct {
	mu       sync.Mutex
	registry *ipmi.Registry
	sessions map[string]*sessionState
	zones    map[string]*zoneHandle
	running  bool
}

// sessionState remembers what is needed to hand the hardware back: the
// arguments the session was opened with (for reload diffing) and the fan
// mode found before we took over.
type sessionState struct {
	args     []string
	origMode ipmi.FanMode
}

type zoneHandle struct {
	zone   config.Zone
	cancel context.CancelFunc
	done   chan struct{}
}

func New() *Runtime {
	return &Runtime{
		registry: ipmi.NewRegistry(),
		sessions: make(map[string]*sessionState),
		zones:    make(map[string]*zoneHandle),
	}
}

// Start opens every session referenced by at least one zone, switches the
// controllers to manual (full) fan mode and starts all zone loops. The
// configuration must already be validated.
func (r *Runtime) Start(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	if r.running {
		return errFactory.New(ErrAlreadyRunning)
	}

	for name := range referencedSessions(cfg) {
		if err := r.openSession(cfg, name); err != nil {
			r.stopAllLocked()
			return err
		}
	}

	for _, zone := range cfg.Zones {
		if err := r.startZone(zone); err != nil {
			r.stopAllLocked()
			return err
		}
	}

	r.running = true
	logger.Info().Int("zones", len(r.zones)).Int("sessions", len(r.sessions)).Msg("Fan control started")

	return nil
}

// Shutdown stops all zone loops between ticks, sets every controlled fan
// zone back to 100% duty cycle, restores the original fan mode on each
// session and terminates the subprocesses.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.stopAllLocked()
	r.running = false
	logger.Info().Msg("Fan control stopped")
}

// Reload applies a new validated configuration, restarting only what
// changed: sessions whose arguments differ, zones whose configuration
// differs and zones referencing a restarted session. Unaffected loops
// keep running undisturbed.
func (r *Runtime) Reload(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	if !r.running {
		return errFactory.New(ErrNotRunning)
	}

	newRefs := referencedSessions(cfg)
	newZones := make(map[string]config.Zone, len(cfg.Zones))
	for _, zone := range cfg.Zones {
		newZones[zone.Name] = zone
	}

	// Sessions that must be torn down: no longer referenced, removed from
	// the configuration, or opened with different arguments.
	obsoleteSessions := make(map[string]bool)
	for name, state := range r.sessions {
		args, exists := cfg.Sessions[name]
		if !exists || !newRefs[name] || !reflect.DeepEqual(state.args, args) {
			obsoleteSessions[name] = true
		}
	}

	// Remember which fan zones each obsolete session was driving before
	// their loops are stopped, so its hardware state can be restored.
	restoreZones := make(map[string][]int)
	for _, handle := range r.zones {
		if obsoleteSessions[handle.zone.Session] {
			restoreZones[handle.zone.Session] = append(restoreZones[handle.zone.Session], handle.zone.IPMIZones...)
		}
	}

	for name, handle := range r.zones {
		newZone, keep := newZones[name]
		if !keep || !reflect.DeepEqual(handle.zone, newZone) || obsoleteSessions[handle.zone.Session] {
			r.stopZoneLocked(name)
		}
	}

	for name := range obsoleteSessions {
		state := r.sessions[name]
		r.restoreSession(name, restoreZones[name], state.origMode)
		r.registry.Close(name)
		delete(r.sessions, name)
		logger.Info().Str("session", name).Msg("Session closed on reload")
	}

	for name := range newRefs {
		if _, open := r.sessions[name]; !open {
			if err := r.openSession(cfg, name); err != nil {
				return err
			}
		}
	}

	for _, zone := range cfg.Zones {
		if _, active := r.zones[zone.Name]; !active {
			if err := r.startZone(zone); err != nil {
				return err
			}
		}
	}

	logger.Info().Int("zones", len(r.zones)).Int("sessions", len(r.sessions)).Msg("Configuration reloaded")

	return nil
}

// ZoneNames returns the names of the running zone loops.
func (r *Runtime) ZoneNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.zones))
	for name := range r.zones {
		names = append(names, name)
	}

	return names
}

// SessionNames returns the names of the open sessions.
func (r *Runtime) SessionNames() []string {
	return r.registry.Names()
}

func (r *Runtime) openSession(cfg *config.Config, name string) error {
	errFactory := errors.New()

	opts := ipmi.ShellOptions(cfg.IPMITool, cfg.Sessions[name])

	session, err := r.registry.Open(name, opts)
	if err != nil {
		return err
	}

	ctx := context.Background()

	origMode, err := session.FanMode(ctx)
	if err != nil {
		return errFactory.Wrap(ErrSessionInit, err)
	}

	logger.Info().
		Str("session", name).
		Stringer("fan_mode", origMode).
		Msg("Original fan mode recorded")
	logger.Info().
		Str("session", name).
		Stringer("fan_mode", ipmi.FanModeFull).
		Msg("Switching fan mode")

	if err := session.SetFanMode(ctx, ipmi.FanModeFull); err != nil {
		return errFactory.Wrap(ErrSessionInit, err)
	}

	r.sessions[name] = &sessionState{
		args:     cfg.Sessions[name],
		origMode: origMode,
	}

	return nil
}

func (r *Runtime) startZone(zone config.Zone) error {
	errFactory := errors.New()

	session, ok := r.registry.Get(zone.Session)
	if !ok {
		return errFactory.WithData(errors.ErrResourceNotFound, "session: "+zone.Session)
	}

	sources := make([]sensor.Source, 0, len(zone.Sources))
	for _, sourceCfg := range zone.Sources {
		source, err := sensor.New(sourceCfg, session)
		if err != nil {
			return errFactory.Wrap(ErrZoneInit, err)
		}
		sources = append(sources, source)
	}

	agg, err := sensor.NewAggregator(zone.Aggregation)
	if err != nil {
		return errFactory.Wrap(ErrZoneInit, err)
	}

	ctrl := newController(zone, session, sources, agg)

	ctx, cancel := context.WithCancel(context.Background())
	handle := &zoneHandle{
		zone:   zone,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(handle.done)
		ctrl.run(ctx)
	}()

	r.zones[zone.Name] = handle

	return nil
}

func (r *Runtime) stopZoneLocked(name string) {
	handle, ok := r.zones[name]
	if !ok {
		return
	}

	handle.cancel()
	<-handle.done
	delete(r.zones, name)
}

func (r *Runtime) stopAllLocked() {
	restoreZones := make(map[string][]int)
	for _, handle := range r.zones {
		restoreZones[handle.zone.Session] = append(restoreZones[handle.zone.Session], handle.zone.IPMIZones...)
	}

	// Stop every loop first; cancellation is observed between ticks, so
	// no duty cycle command races with the teardown below.
	for _, handle := range r.zones {
		handle.cancel()
	}
	for name, handle := range r.zones {
		<-handle.done
		delete(r.zones, name)
	}

	for name, state := range r.sessions {
		r.restoreSession(name, restoreZones[name], state.origMode)
		delete(r.sessions, name)
	}

	r.registry.CloseAll()
}

// restoreSession hands the hardware back: every fan zone the session was
// driving goes to 100% duty cycle, then the original fan mode is restored.
func (r *Runtime) restoreSession(name string, zones []int, origMode ipmi.FanMode) {
	session, ok := r.registry.Get(name)
	if !ok {
		return
	}

	ctx := context.Background()

	for _, z := range zones {
		logger.Info().Str("session", name).Int("ipmi_zone", z).Msg("Setting duty cycle to 100%")
		if err := session.SetDutyCycle(ctx, z, restoreDutyCycle); err != nil {
			logger.Error().Str("session", name).Int("ipmi_zone", z).Err(err).Msg("Failed to restore duty cycle")
		}
	}

	logger.Info().Str("session", name).Stringer("fan_mode", origMode).Msg("Restoring fan mode")
	if err := session.SetFanMode(ctx, origMode); err != nil {
		logger.Error().Str("session", name).Err(err).Msg("Failed to restore fan mode")
	}
}

// referencedSessions returns the session names at least one zone uses.
// Sessions nothing references are never opened.
func referencedSessions(cfg *config.Config) map[string]bool {
	refs := make(map[string]bool)
	for _, zone := range cfg.Zones {
		refs[zone.Session] = true
	}

	return refs
}
