package control

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
)

type setCall struct {
	zone int
	duty int
}

type fakeSession struct {
	mu      sync.Mutex
	current int
	sets    []setCall
	readErr error
	setErr  error
}

func (f *fakeSession) DutyCycle(_ context.Context, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current, f.readErr
}

func (f *fakeSession) SetDutyCycle(_ context.Context, zone, duty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, setCall{zone: zone, duty: duty})
	f.current = duty

	return nil
}

func (f *fakeSession) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]setCall(nil), f.sets...)
}

type fixedSource struct {
	value float64
	ok    bool
}

func (s fixedSource) Read(context.Context) (float64, bool) { return s.value, s.ok }

func (s fixedSource) Describe() string { return "fixed" }

func testZone(ipmiZones ...int) config.Zone {
	return config.Zone{
		Name:      "cpu",
		Session:   config.DefaultSession,
		Interval:  1,
		IPMIZones: ipmiZones,
		Aggregation: config.Aggregation{
			Type: config.AggregationMaximum,
		},
		Steps: []curve.Step{
			{Temp: 30, Duty: 30},
			{Temp: 70, Duty: 70},
		},
	}
}

func maxAggregator(t *testing.T) sensor.Aggregator {
	t.Helper()

	agg, err := sensor.NewAggregator(config.Aggregation{Type: config.AggregationMaximum})
	require.NoError(t, err)

	return agg
}

func TestControllerTickAppliesCurve(t *testing.T) {
	session := &fakeSession{}
	ctrl := newController(testZone(0), session,
		[]sensor.Source{fixedSource{value: 50, ok: true}}, maxAggregator(t))

	ctrl.tick(context.Background())

	assert.Equal(t, []setCall{{zone: 0, duty: 50}}, session.setCalls())
	assert.Equal(t, 50, ctrl.lastDuty)
}

func TestControllerTickDrivesAllZones(t *testing.T) {
	session := &fakeSession{}
	ctrl := newController(testZone(0, 1), session,
		[]sensor.Source{fixedSource{value: 70, ok: true}}, maxAggregator(t))

	ctrl.tick(context.Background())

	assert.Equal(t, []setCall{{zone: 0, duty: 70}, {zone: 1, duty: 70}}, session.setCalls())
}

func TestControllerTickAggregatesSources(t *testing.T) {
	session := &fakeSession{}
	ctrl := newController(testZone(0), session,
		[]sensor.Source{
			fixedSource{value: 40, ok: true},
			fixedSource{value: 60, ok: true},
			fixedSource{ok: false},
		}, maxAggregator(t))

	ctrl.tick(context.Background())

	assert.Equal(t, []setCall{{zone: 0, duty: 60}}, session.setCalls(), "Expected the hottest reading to drive the zone")
}

func TestControllerTickNoReadings(t *testing.T) {
	session := &fakeSession{}
	ctrl := newController(testZone(0), session,
		[]sensor.Source{fixedSource{ok: false}}, maxAggregator(t))

	ctrl.tick(context.Background())

	assert.Empty(t, session.setCalls(), "Expected no actuation without valid readings")
	assert.Equal(t, -1, ctrl.lastDuty, "Expected the hardware to keep its current duty cycle")
}

func TestControllerTickReadErrorSkipsTick(t *testing.T) {
	session := &fakeSession{readErr: errors.New().New(errors.ErrUnavailable)}
	ctrl := newController(testZone(0), session,
		[]sensor.Source{fixedSource{value: 50, ok: true}}, maxAggregator(t))

	ctrl.tick(context.Background())

	assert.Empty(t, session.setCalls())
	assert.Equal(t, -1, ctrl.lastDuty)
}

func TestControllerTickSetErrorRecovers(t *testing.T) {
	session := &fakeSession{setErr: errors.New().New(errors.ErrUnavailable)}
	ctrl := newController(testZone(0), session,
		[]sensor.Source{fixedSource{value: 50, ok: true}}, maxAggregator(t))

	ctrl.tick(context.Background())
	assert.Empty(t, session.setCalls())
	assert.Equal(t, -1, ctrl.lastDuty)

	// The failure is contained at the tick boundary; the next tick
	// proceeds normally.
	session.mu.Lock()
	session.setErr = nil
	session.mu.Unlock()

	ctrl.tick(context.Background())
	assert.Equal(t, []setCall{{zone: 0, duty: 50}}, session.setCalls())
	assert.Equal(t, 50, ctrl.lastDuty)
}
