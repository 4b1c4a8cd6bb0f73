package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/fixed"
	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/hal/sim"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/qadc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testResolution = 64
	testInterval   = 50000
)

var referenceCircuit = lut.Circuit{
	PotOhms:         47000,
	CapacitorFarads: 5000e-12,
	SeriesOhms:      330,
	VRail:           3.3,
	VThresh:         1.15,
}

func indexPosition(idx int) float64 {
	return float64(idx) / float64(testResolution-1)
}

type fixture struct {
	timer *sim.Timer
	pins  []*sim.Pin
	pot   *qadc.Pot
}

// newFixture builds a potentiometer instance on simulated pins. wrap may
// replace the pins handed to the instance.
func newFixture(t *testing.T, positions []float64, wrap func(timer *sim.Timer, pin *sim.Pin) hal.Pin) *fixture {
	t.Helper()
	model, err := sim.NewPotModel(referenceCircuit, testResolution, lut.DefaultTimerHz)
	require.NoError(t, err)

	f := &fixture{timer: sim.NewTimer(lut.DefaultTimerHz)}
	var pins []hal.Pin
	for _, position := range positions {
		pin := sim.NewPin(f.timer, model, position)
		f.pins = append(f.pins, pin)
		if wrap != nil {
			pins = append(pins, wrap(f.timer, pin))
		} else {
			pins = append(pins, pin)
		}
	}
	require.NoError(t, hal.PreInit(f.timer, pins))

	f.pot, err = qadc.NewPot(pins, f.timer, qadc.Config{
		Circuit:              referenceCircuit,
		ConvertIntervalTicks: testInterval,
	}, qadc.WithResolution(testResolution), qadc.WithFilterDepth(1))
	require.NoError(t, err)
	return f
}

func start(ctx context.Context, s *Scheduler) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	return done
}

func send(t *testing.T, ch *control.Channel, cmd control.Command) uint32 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	response, err := ch.Send(ctx, cmd)
	require.NoError(t, err)
	return response
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		require.FailNow(t, "scheduler did not stop")
		return nil
	}
}

func TestRun_ReadAndExit(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(12), indexPosition(45)}, nil)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)

	// WHEN
	first := send(t, ch, control.Read(0))
	second := send(t, ch, control.Read(1))
	dir := send(t, ch, control.Direction(1))
	exit := send(t, ch, control.Command{Op: control.OpExit})

	// THEN
	assert.Equal(t, uint32(12), first)
	assert.Equal(t, uint32(45), second)
	assert.Equal(t, uint32(lut.Up), dir)
	assert.Equal(t, control.StatusAck, exit)
	assert.NoError(t, waitDone(t, done))

	for _, pin := range f.pins {
		assert.True(t, pin.Closed())
	}
	_, err := ch.Send(context.Background(), control.Read(0))
	assert.ErrorIs(t, err, control.ErrClosed)
}

func TestRun_FollowsKnob(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(5)}, nil)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)

	// WHEN
	f.pins[0].SetPosition(indexPosition(50))

	// THEN
	assert.Eventually(t, func() bool {
		return send(t, ch, control.Read(0)) == 50
	}, 5*time.Second, time.Millisecond)
	stats := s.Stats()
	assert.Equal(t, uint16(50), stats.Channels[0].Result)
	assert.Equal(t, lut.Up, stats.Channels[0].Direction)
	assert.Positive(t, stats.Cycles)

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

func TestRun_ContextCancel(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{0.3}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s := New("pot", f.pot, WithControl(control.NewChannel()))
	done := start(ctx, s)

	// WHEN
	cancel()

	// THEN
	assert.NoError(t, waitDone(t, done))
	assert.True(t, f.pins[0].Closed())
}

func TestRun_ProtocolMisuse(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(30)}, nil)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)

	// WHEN
	unknown := send(t, ch, control.Decode(0x42000000))
	outOfRange := send(t, ch, control.Read(7))
	dirOutOfRange := send(t, ch, control.Direction(1))
	finishWithoutStart := send(t, ch, control.Command{Op: control.OpCalibrationFinish})
	stillAlive := send(t, ch, control.Read(0))

	// THEN
	assert.Equal(t, control.StatusInvalid, unknown)
	assert.Equal(t, control.StatusInvalid, outOfRange)
	assert.Equal(t, control.StatusInvalid, dirOutOfRange)
	assert.Equal(t, control.StatusInvalid, finishWithoutStart)
	assert.Equal(t, uint32(30), stillAlive)

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

func TestRun_StopStart(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(10)}, nil)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)

	// WHEN
	stop := send(t, ch, control.Command{Op: control.OpStop})
	cycles := s.Stats().Cycles
	f.pins[0].SetPosition(indexPosition(60))
	frozen := send(t, ch, control.Read(0))
	stopped := s.Stats()
	startResponse := send(t, ch, control.Command{Op: control.OpStart})

	// THEN
	assert.Equal(t, control.StatusAck, stop)
	assert.Equal(t, control.StatusAck, startResponse)
	assert.Equal(t, uint32(10), frozen)
	assert.False(t, stopped.Running)
	assert.Equal(t, cycles, stopped.Cycles)

	assert.Eventually(t, func() bool {
		return send(t, ch, control.Read(0)) == 60
	}, 5*time.Second, time.Millisecond)
	assert.True(t, s.Stats().Running)

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

func TestRun_ExitWhileStopped(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{0.5}, nil)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)
	send(t, ch, control.Command{Op: control.OpStop})

	// WHEN
	exit := send(t, ch, control.Command{Op: control.OpExit})

	// THEN
	assert.Equal(t, control.StatusAck, exit)
	assert.NoError(t, waitDone(t, done))
}

func TestRun_Calibration(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{0.8}, nil)
	maxUp := f.pot.Table().MaxUp
	published := f.pot.Result(0)

	var saved atomic.Pointer[qadc.Calibration]
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch), WithCalibrationHandler(func(calibration qadc.Calibration) {
		saved.Store(&calibration)
	}))
	done := start(context.Background(), s)

	// WHEN
	assert.Equal(t, control.StatusAck, send(t, ch, control.Command{Op: control.OpCalibrationStart}))
	f.pins[0].SetModel(sim.FixedModel{Rest: hal.High, Ticks: maxUp * 12 / 10})
	cycles := s.Stats().Cycles
	assert.Eventually(t, func() bool {
		return s.Stats().Cycles > cycles+2
	}, 5*time.Second, time.Millisecond)
	during := send(t, ch, control.Read(0))
	calibrating := s.Stats().Calibrating
	assert.Equal(t, control.StatusAck, send(t, ch, control.Command{Op: control.OpCalibrationFinish}))

	// THEN
	assert.True(t, calibrating)
	assert.Equal(t, uint32(published), during)

	calibration := saved.Load()
	require.NotNil(t, calibration)
	assert.Equal(t, fixed.Q3_13(0x2666), calibration.Channels[0].ScaleUp)
	assert.Equal(t, fixed.One, calibration.Channels[0].ScaleDown)
	assert.Equal(t, fixed.Q3_13(0x2666), s.Stats().Calibration.Channels[0].ScaleUp)
	assert.False(t, s.Stats().Calibrating)

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

func TestRun_TransitionFaultKeepsLastResult(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(20)}, nil)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)

	// WHEN
	f.pins[0].SetModel(sim.DisconnectedModel{})

	// THEN
	assert.Eventually(t, func() bool {
		return s.Stats().Channels[0].Faults > 2
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, uint32(20), send(t, ch, control.Read(0)))
	assert.Contains(t, s.Stats().Channels[0].LastError, "did not cross the threshold")

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

// latePin reports a timed out wait only some ticks after the deadline, like
// a host timer firing late.
type latePin struct {
	*sim.Pin
	timer *sim.Timer
	late  uint32
}

func (p *latePin) WaitFor(level hal.Level, deadline hal.Tick) (hal.Tick, bool, error) {
	tick, ok, err := p.Pin.WaitFor(level, deadline)
	if err == nil && !ok {
		p.timer.Advance(p.late)
	}
	return tick, ok, err
}

func TestRun_LateTransitionTimeoutIsAFault(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(20)}, func(timer *sim.Timer, pin *sim.Pin) hal.Pin {
		return &latePin{Pin: pin, timer: timer, late: testInterval / 10}
	})
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch))
	done := start(context.Background(), s)
	require.Eventually(t, func() bool {
		return s.Stats().Channels[0].Conversions > 0
	}, 5*time.Second, time.Millisecond)

	// WHEN
	f.pins[0].SetModel(sim.DisconnectedModel{})

	// THEN
	assert.Eventually(t, func() bool {
		return s.Stats().Channels[0].Faults > 2
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, uint32(20), send(t, ch, control.Read(0)))

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

// sleepingPin blocks on the wall clock until shortly after the deadline
// when the level is never reached.
type sleepingPin struct {
	*sim.Pin
	timer *sim.Timer
}

func (p *sleepingPin) WaitFor(level hal.Level, deadline hal.Tick) (hal.Tick, bool, error) {
	tick, ok, err := p.Pin.WaitFor(level, deadline)
	if err != nil || ok {
		return tick, ok, err
	}
	remaining := deadline.Since(p.timer.Now())
	if remaining <= 1<<31 {
		time.Sleep(hal.DurationOf(remaining, p.timer.Hz()))
	}
	time.Sleep(100 * time.Microsecond)
	return deadline, false, nil
}

func TestRun_RealtimeDisconnectedChannel(t *testing.T) {
	// GIVEN
	timer := sim.NewRealtimeTimer(lut.DefaultTimerHz)
	pins := []hal.Pin{&sleepingPin{Pin: sim.NewPin(timer, sim.DisconnectedModel{}, 0), timer: timer}}
	require.NoError(t, hal.PreInit(timer, pins))
	pot, err := qadc.NewPot(pins, timer, qadc.Config{
		Circuit:              referenceCircuit,
		ConvertIntervalTicks: 200_000,
	}, qadc.WithResolution(testResolution), qadc.WithFilterDepth(1))
	require.NoError(t, err)
	ch := control.NewChannel()
	s := New("pot", pot, WithControl(ch))

	// WHEN
	done := start(context.Background(), s)

	// THEN
	assert.Eventually(t, func() bool {
		return s.Stats().Channels[0].Faults > 2
	}, 5*time.Second, time.Millisecond)
	assert.Contains(t, s.Stats().Channels[0].LastError, "did not cross the threshold")
	assert.True(t, s.Stats().Running)

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}

func TestRun_Board(t *testing.T) {
	// GIVEN
	f := newFixture(t, []float64{indexPosition(3), indexPosition(33)}, nil)
	board := qadc.NewBoard(2)
	ctx, cancel := context.WithCancel(context.Background())
	s := New("pot", f.pot, WithBoard(board))

	// WHEN
	seeded := board.Snapshot()
	done := start(ctx, s)
	f.pins[1].SetPosition(indexPosition(40))

	// THEN
	assert.Equal(t, []uint16{3, 33}, seeded)
	assert.Eventually(t, func() bool {
		return board.Load(1) == 40
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, uint16(3), board.Load(0))

	cancel()
	assert.NoError(t, waitDone(t, done))
}

// slowPin spends extra time before releasing, as if the host was stalled.
type slowPin struct {
	*sim.Pin
	timer *sim.Timer
	delay atomic.Uint32
}

func (p *slowPin) Release() error {
	p.timer.Advance(p.delay.Load())
	return p.Pin.Release()
}

func TestRun_DeadlineExceeded(t *testing.T) {
	// GIVEN
	var slow *slowPin
	f := newFixture(t, []float64{0.5}, func(timer *sim.Timer, pin *sim.Pin) hal.Pin {
		slow = &slowPin{Pin: pin, timer: timer}
		return slow
	})
	slow.delay.Store(testInterval)
	s := New("pot", f.pot)

	// WHEN
	err := s.Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.True(t, f.pins[0].Closed())
}

func TestRun_NoInterval(t *testing.T) {
	// GIVEN
	model, err := sim.NewPotModel(referenceCircuit, testResolution, lut.DefaultTimerHz)
	require.NoError(t, err)
	timer := sim.NewTimer(lut.DefaultTimerHz)
	pins := sim.NewPins(timer, model, 0.5)
	require.NoError(t, hal.PreInit(timer, pins))
	pot, err := qadc.NewPot(pins, timer, qadc.Config{Circuit: referenceCircuit}, qadc.WithResolution(testResolution))
	require.NoError(t, err)

	// WHEN
	err = New("pot", pot).Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrNoInterval)
}

// gatedPin holds the first transition wait after being armed until released.
type gatedPin struct {
	*sim.Pin
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPin) WaitFor(level hal.Level, deadline hal.Tick) (hal.Tick, bool, error) {
	if p.armed.CompareAndSwap(true, false) {
		p.entered <- struct{}{}
		<-p.release
	}
	return p.Pin.WaitFor(level, deadline)
}

func TestRun_ExitDuringConversion(t *testing.T) {
	// GIVEN
	var gated *gatedPin
	f := newFixture(t, []float64{indexPosition(8)}, func(timer *sim.Timer, pin *sim.Pin) hal.Pin {
		gated = &gatedPin{
			Pin:     pin,
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		return gated
	})
	board := qadc.NewBoard(1)
	ch := control.NewChannel()
	s := New("pot", f.pot, WithControl(ch), WithBoard(board))

	f.pins[0].SetPosition(indexPosition(55))
	gated.armed.Store(true)
	done := start(context.Background(), s)
	<-gated.entered

	// WHEN
	exited := make(chan uint32, 1)
	go func() {
		response, _ := ch.Send(context.Background(), control.Command{Op: control.OpExit})
		exited <- response
	}()
	time.Sleep(20 * time.Millisecond)

	// THEN
	select {
	case <-exited:
		require.FailNow(t, "exit was handled while converting")
	case <-done:
		require.FailNow(t, "scheduler stopped while converting")
	default:
	}

	close(gated.release)
	assert.Equal(t, control.StatusAck, <-exited)
	assert.NoError(t, waitDone(t, done))

	// the interrupted conversion was completed and published
	assert.Equal(t, uint16(55), board.Load(0))
	assert.Equal(t, uint16(55), s.Stats().Channels[0].Result)
	assert.Equal(t, uint64(1), s.Stats().Channels[0].Conversions)
	assert.True(t, f.pins[0].Closed())
}

func TestRun_Rheo(t *testing.T) {
	// GIVEN
	model, err := sim.NewRheoModel(referenceCircuit, lut.DefaultTimerHz)
	require.NoError(t, err)
	timer := sim.NewTimer(lut.DefaultTimerHz)
	pins := sim.NewPins(timer, model, 1)
	require.NoError(t, hal.PreInit(timer, pins))
	rheo, err := qadc.NewRheo(pins, timer, qadc.Config{
		Circuit:              referenceCircuit,
		ConvertIntervalTicks: testInterval,
	}, qadc.WithResolution(100))
	require.NoError(t, err)

	ch := control.NewChannel()
	s := New("rheo", rheo, WithControl(ch))
	done := start(context.Background(), s)

	// WHEN
	result := send(t, ch, control.Read(0))
	dir := send(t, ch, control.Direction(0))

	// THEN
	assert.Equal(t, uint32(99), result)
	assert.Equal(t, control.StatusInvalid, dir)

	send(t, ch, control.Command{Op: control.OpExit})
	assert.NoError(t, waitDone(t, done))
}
