package tuner

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRigctlSendsSetFreqCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	lines := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	r := NewRigctl(ln.Addr().String(), zerolog.Nop())
	defer r.Close()

	r.SetFreq(852250000)
	select {
	case got := <-lines:
		if got != "F 852250000" {
			t.Fatalf("command = %q, want %q", got, "F 852250000")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rigctl command")
	}

	// Hooks route through the same command path.
	hooks := r.Hooks()
	hooks.TuneVoice(853000000, 4)
	select {
	case got := <-lines:
		if got != "F 853000000" {
			t.Fatalf("command = %q, want %q", got, "F 853000000")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hook command")
	}
}

func TestRigctlUnreachableIsNonFatal(t *testing.T) {
	r := NewRigctl("127.0.0.1:1", zerolog.Nop())
	defer r.Close()
	// Must not panic or block beyond the dial timeout.
	r.SetFreq(852250000)
}

func TestFallbackRecordsRequests(t *testing.T) {
	f := NewFallback()
	hooks := f.Hooks()

	hooks.TuneVoice(852250000, 4)
	hooks.TuneCC(851012500, 10)
	hooks.ReturnToCC(851012500)
	hooks.ReturnToCC(851012500)

	if got := f.VoiceFreq(); got != 852250000 {
		t.Errorf("voice freq = %d", got)
	}
	if got := f.CCFreq(); got != 851012500 {
		t.Errorf("cc freq = %d", got)
	}
	tunes, cc, returns := f.Counts()
	if tunes != 1 || cc != 1 || returns != 2 {
		t.Errorf("counts = %d/%d/%d, want 1/1/2", tunes, cc, returns)
	}
}
