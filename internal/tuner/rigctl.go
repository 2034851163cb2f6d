// Package tuner provides tuning-hook implementations for the trunking
// follower: a rigctl TCP client for network-controlled receivers and an
// in-memory fallback for tests and headless operation.
package tuner

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo/internal/trunk"
)

const (
	dialTimeout  = 2 * time.Second
	writeTimeout = 50 * time.Millisecond
)

// Rigctl drives a rigctld-compatible server over TCP. Tune requests are
// fire-and-forget: a bounded write deadline, no reply wait, and a failed
// write drops the connection so the next request redials. The follower
// recovers from silently failed tunes through its grant timeout.
type Rigctl struct {
	addr string
	log  zerolog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewRigctl returns a client for the given host:port. No connection is
// made until the first tune request.
func NewRigctl(addr string, log zerolog.Logger) *Rigctl {
	return &Rigctl{
		addr: addr,
		log:  log.With().Str("component", "rigctl").Logger(),
	}
}

// SetFreq sends a set-frequency command. Errors are logged and swallowed.
func (r *Rigctl) SetFreq(freqHz int64) {
	r.send(fmt.Sprintf("F %d\n", freqHz))
}

// Close drops the connection if one is open.
func (r *Rigctl) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// Hooks returns a hook table wired to this client. ReturnToCC retunes to
// the frequency the follower passes in; the voice/CC distinction only
// matters to receivers that reconfigure demodulation per channel type.
func (r *Rigctl) Hooks() trunk.Hooks {
	return trunk.Hooks{
		TuneVoice:  func(freqHz int64, _ int) { r.SetFreq(freqHz) },
		TuneCC:     func(freqHz int64, _ int) { r.SetFreq(freqHz) },
		ReturnToCC: func(freqHz int64) { r.SetFreq(freqHz) },
	}
}

func (r *Rigctl) send(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		conn, err := net.DialTimeout("tcp", r.addr, dialTimeout)
		if err != nil {
			r.log.Warn().Err(err).Str("addr", r.addr).Msg("rigctl dial failed")
			return
		}
		r.conn = conn
	}

	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := r.conn.Write([]byte(cmd)); err != nil {
		r.log.Warn().Err(err).Msg("rigctl write failed, dropping connection")
		r.conn.Close()
		r.conn = nil
	}
}

// Fallback records the requested frequencies without touching hardware.
// It implements the same hook surface for tests and for running the
// follower against a capture file.
type Fallback struct {
	mu        sync.Mutex
	voiceFreq int64
	ccFreq    int64
	tunes     int
	ccTunes   int
	returns   int
}

// NewFallback returns an in-memory tuner.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Hooks returns a hook table updating only this tuner's fields.
func (f *Fallback) Hooks() trunk.Hooks {
	return trunk.Hooks{
		TuneVoice: func(freqHz int64, _ int) {
			f.mu.Lock()
			f.voiceFreq = freqHz
			f.tunes++
			f.mu.Unlock()
		},
		TuneCC: func(freqHz int64, _ int) {
			f.mu.Lock()
			f.ccFreq = freqHz
			f.ccTunes++
			f.mu.Unlock()
		},
		ReturnToCC: func(freqHz int64) {
			f.mu.Lock()
			f.ccFreq = freqHz
			f.returns++
			f.mu.Unlock()
		},
	}
}

// VoiceFreq returns the last voice-channel tune request.
func (f *Fallback) VoiceFreq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voiceFreq
}

// CCFreq returns the last control-channel tune or return request.
func (f *Fallback) CCFreq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ccFreq
}

// Counts returns (voice tunes, cc tunes, returns to cc).
func (f *Fallback) Counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tunes, f.ccTunes, f.returns
}
