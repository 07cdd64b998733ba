package airnfc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AirNFC/pkg/airerr"
	"AirNFC/pkg/async"
	"AirNFC/pkg/device"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
	"AirNFC/pkg/session"
)

const blocksPerSecond = ofdm.SampleRate / port.BlockSize

type events struct {
	nfc       *AirNFC
	progress  []float64
	states    []State
	connected int
	data      [][]byte
	errs      []error
}

func (e *events) DidUpdateConnectingProgress(p float64) { e.progress = append(e.progress, p) }
func (e *events) DidConnect()                           { e.connected++ }
func (e *events) DidReceiveData(data []byte)            { e.data = append(e.data, data) }
func (e *events) DidFail(err error)                     { e.errs = append(e.errs, err) }

func (e *events) observe() {
	s := e.nfc.State()
	if len(e.states) == 0 || e.states[len(e.states)-1] != s {
		e.states = append(e.states, s)
	}
}

type pair struct {
	network  *device.Network[string]
	loop     *async.Loop
	nfc      [2]*AirNFC
	sessions [2]*session.Manager
	ev       [2]*events
}

func newPair(t *testing.T) *pair {
	p := &pair{loop: async.NewLoop()}
	p.network = &device.Network[string]{
		Manual: true,
		Noise:  0.0005,
		Seed:   3,
		Config: device.NetworkConfig[string]{{In: "air", Out: "air"}, {In: "air", Out: "air"}},
	}
	nodes := p.network.Build()
	t.Cleanup(p.network.Close)

	for i := range p.nfc {
		p.sessions[i] = session.NewManager(p.loop, session.Hooks{})
		p.nfc[i] = New(Config{
			Device:      nodes[i],
			Executor:    p.loop,
			Session:     p.sessions[i],
			MaxOverruns: -1,
			Seed:        uint64(1000 * (i + 1)),
		})
		p.ev[i] = &events{nfc: p.nfc[i]}
		p.nfc[i].SetListener(p.ev[i])
	}
	return p
}

func (p *pair) run(limit int, done func() bool) bool {
	for range limit {
		if done() {
			return true
		}
		p.network.Step()
		p.loop.RunPending()
		for _, e := range p.ev {
			e.observe()
		}
	}
	return done()
}

func (p *pair) idle(seconds int) {
	p.run(seconds*blocksPerSecond, func() bool { return false })
}

func (p *pair) connect(t *testing.T) {
	for i, nfc := range p.nfc {
		require.NoError(t, nfc.Connect())
		p.ev[i].observe()
	}
	ok := p.run(60*blocksPerSecond, func() bool {
		return p.nfc[0].State() == Connected && p.nfc[1].State() == Connected
	})
	require.True(t, ok, "devices did not connect")
	// the tail of the handshake is still in the air
	p.idle(2)
}

func TestConnectAndExchange(t *testing.T) {
	p := newPair(t)
	p.connect(t)

	for i, e := range p.ev {
		assert.Equal(t, []State{LookingForOtherDevice, Connecting, Connected}, e.states, "device %d", i)
		assert.Equal(t, 1, e.connected)
		assert.Empty(t, e.errs)
		require.NotEmpty(t, e.progress)
		assert.Equal(t, 0.0, e.progress[0])
		assert.Equal(t, 1.0, e.progress[len(e.progress)-1])
	}
	secret := p.nfc[0].SharedSecret()
	assert.Len(t, secret, 32)
	assert.Equal(t, secret, p.nfc[1].SharedSecret())
	assert.NotEqual(t, p.nfc[0].SessionID(), p.nfc[1].SessionID())

	ping := []byte("ping over the air")
	require.NoError(t, p.nfc[0].Write(ping))
	require.True(t, p.run(10*blocksPerSecond, func() bool { return len(p.ev[1].data) > 0 }))
	assert.Equal(t, [][]byte{ping}, p.ev[1].data)

	pong := bytes.Repeat([]byte{0xa5}, 100)
	require.NoError(t, p.nfc[1].Write(pong))
	require.True(t, p.run(10*blocksPerSecond, func() bool { return len(p.ev[0].data) > 0 }))
	assert.Equal(t, [][]byte{pong}, p.ev[0].data)

	p.idle(1)
	assert.Len(t, p.ev[0].data, 1, "own echo delivered")
	assert.Len(t, p.ev[1].data, 1, "own echo delivered")

	err := p.nfc[0].Write(make([]byte, DefaultMaxWriteSize+1))
	assert.ErrorIs(t, err, ErrWriteTooLarge)
}

func TestSharedSecretIsACopy(t *testing.T) {
	p := newPair(t)
	p.connect(t)

	s := p.nfc[0].SharedSecret()
	s[0] ^= 0xff
	assert.NotEqual(t, s, p.nfc[0].SharedSecret())
}

func TestWriteNotConnected(t *testing.T) {
	p := newPair(t)
	assert.ErrorIs(t, p.nfc[0].Write([]byte("x")), ErrNotConnected)

	require.NoError(t, p.nfc[0].Connect())
	assert.ErrorIs(t, p.nfc[0].Write([]byte("x")), ErrNotConnected)
	assert.Nil(t, p.nfc[0].SharedSecret())
	p.nfc[0].Disconnect()
}

func TestInterruptionWhileConnected(t *testing.T) {
	p := newPair(t)
	p.connect(t)

	p.sessions[0].Interrupt()
	p.sessions[0].Interrupt()
	p.idle(1)

	e := p.ev[0]
	require.Len(t, e.errs, 1)
	assert.ErrorIs(t, e.errs[0], airerr.ErrInterruption)
	assert.Equal(t, Disconnected, p.nfc[0].State())
	assert.Nil(t, p.nfc[0].SharedSecret())
	assert.False(t, p.nfc[0].Port().Running())
	assert.False(t, p.sessions[0].Running())
	assert.ErrorIs(t, p.nfc[0].Write([]byte("x")), ErrNotConnected)

	// the other side does not notice
	assert.Equal(t, Connected, p.nfc[1].State())
	assert.Empty(t, p.ev[1].errs)
}

func TestInterruptionWhileLooking(t *testing.T) {
	p := newPair(t)
	require.NoError(t, p.nfc[0].Connect())
	p.run(10, func() bool { return false })

	p.sessions[0].Interrupt()
	p.idle(1)

	require.Len(t, p.ev[0].errs, 1)
	assert.Equal(t, airerr.KindInterruption, airerr.KindOf(p.ev[0].errs[0]))
	assert.Equal(t, Disconnected, p.nfc[0].State())
	assert.Zero(t, p.ev[0].connected)
}

func TestDisconnect(t *testing.T) {
	p := newPair(t)
	p.nfc[0].Disconnect()
	assert.Equal(t, Disconnected, p.nfc[0].State())

	p.connect(t)
	require.NoError(t, p.nfc[0].Write([]byte("lost")))
	p.nfc[0].Disconnect()
	p.nfc[0].Disconnect()
	p.sessions[0].Interrupt()
	p.idle(3)

	assert.Equal(t, Disconnected, p.nfc[0].State())
	assert.Empty(t, p.ev[0].errs)
	assert.False(t, p.nfc[0].Port().Running())
	assert.False(t, p.sessions[0].Running())

	// a fresh attempt starts over
	require.NoError(t, p.nfc[0].Connect())
	assert.Equal(t, LookingForOtherDevice, p.nfc[0].State())
	p.nfc[0].Disconnect()
}

func TestConnectTwice(t *testing.T) {
	p := newPair(t)
	require.NoError(t, p.nfc[0].Connect())
	id := p.nfc[0].SessionID()
	require.NoError(t, p.nfc[0].Connect())
	assert.Equal(t, id, p.nfc[0].SessionID())
	p.nfc[0].Disconnect()
}

type brokenDevice struct{}

func (brokenDevice) Start(device.Callback) error { return errors.New("microphone denied") }
func (brokenDevice) Stop()                       {}

func TestConnectFailure(t *testing.T) {
	loop := async.NewLoop()
	s := session.NewManager(loop, session.Hooks{})
	nfc := New(Config{Device: brokenDevice{}, Executor: loop, Session: s})
	ev := &events{nfc: nfc}
	nfc.SetListener(ev)

	err := nfc.Connect()
	assert.ErrorIs(t, err, airerr.ErrUnableToStart)
	assert.Equal(t, Disconnected, nfc.State())
	assert.False(t, s.Running())
	loop.RunPending()
	assert.Empty(t, ev.errs)
}

type interruptibleDevice struct {
	brokenDevice
	handler func()
}

func (d *interruptibleDevice) SetInterruptHandler(f func()) { d.handler = f }

func TestDefaultSessionFollowsDevice(t *testing.T) {
	d := &interruptibleDevice{}
	New(Config{Device: d, Executor: async.NewLoop()})
	assert.NotNil(t, d.handler)
}
