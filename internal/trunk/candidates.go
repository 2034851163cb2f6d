package trunk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxCandidates bounds the control-channel candidate cache. Sites rarely
// announce more than a handful of alternates; 16 covers every system
// observed in the wild.
const maxCandidates = 16

type candidate struct {
	freqHz        int64
	cooldownUntil time.Time
}

// CandidateCache is a FIFO-bounded set of control-channel frequencies with
// per-entry cooldowns and a rotating read index. It lives entirely on the
// processing goroutine; persistence is best-effort.
type CandidateCache struct {
	entries []candidate
	idx     int

	added uint64
	used  uint64

	writeErrLogged bool
	log            zerolog.Logger
}

// NewCandidateCache returns an empty cache.
func NewCandidateCache(log zerolog.Logger) *CandidateCache {
	return &CandidateCache{log: log.With().Str("component", "candidates").Logger()}
}

// Add inserts a frequency, returning true on insertion and false for
// duplicates. At capacity the oldest entry is evicted; the rotating read
// index is pulled back when it pointed past the evicted slot. bump
// controls whether the observed-additions statistic increments.
func (c *CandidateCache) Add(freqHz int64, bump bool) bool {
	if freqHz == 0 {
		return false
	}
	for _, e := range c.entries {
		if e.freqHz == freqHz {
			return false
		}
	}
	if len(c.entries) >= maxCandidates {
		c.entries = c.entries[1:]
		if c.idx > 0 {
			c.idx--
		}
	}
	c.entries = append(c.entries, candidate{freqHz: freqHz})
	if bump {
		c.added++
	}
	return true
}

// Next rotates through the cache starting at the read index, skipping the
// current control-channel frequency and any entry still cooling down.
// Returns false when no entry qualifies.
func (c *CandidateCache) Next(now time.Time, ccFreqHz int64) (int64, bool) {
	n := len(c.entries)
	for i := 0; i < n; i++ {
		pos := (c.idx + i) % n
		e := c.entries[pos]
		if e.freqHz == ccFreqHz {
			continue
		}
		if !e.cooldownUntil.IsZero() && now.Before(e.cooldownUntil) {
			continue
		}
		c.idx = (pos + 1) % n
		c.used++
		return e.freqHz, true
	}
	return 0, false
}

// SetCooldown inhibits a specific entry until the given time. Unknown
// frequencies are ignored.
func (c *CandidateCache) SetCooldown(freqHz int64, until time.Time) {
	for i := range c.entries {
		if c.entries[i].freqHz == freqHz {
			c.entries[i].cooldownUntil = until
			return
		}
	}
}

// Len returns the number of cached candidates.
func (c *CandidateCache) Len() int { return len(c.entries) }

// Freqs returns the cached frequencies in FIFO order.
func (c *CandidateCache) Freqs() []int64 {
	out := make([]int64, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.freqHz
	}
	return out
}

// Clear drops all entries and resets the read index.
func (c *CandidateCache) Clear() {
	c.entries = nil
	c.idx = 0
}

// CacheFileName returns the per-site persistence file name:
// p25_cc_<WACN:5X>_<SYSID:3X>.txt.
func CacheFileName(wacn uint32, sysid uint16) string {
	return fmt.Sprintf("p25_cc_%05X_%03X.txt", wacn, sysid)
}

// DefaultCacheDir resolves the candidate cache directory:
// $LOCALAPPDATA/dsd-neo on Windows-like hosts, $HOME/.cache/dsd-neo
// elsewhere, falling back to ./dsdneo_cache when neither is set.
func DefaultCacheDir() string {
	if runtime.GOOS == "windows" {
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			return filepath.Join(d, "dsd-neo")
		}
	} else if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".cache", "dsd-neo")
	}
	return "dsdneo_cache"
}

// Save writes the cache contents for the given site, one decimal Hz value
// per line, via a temp file and rename. Failures are logged once and are
// never fatal.
func (c *CandidateCache) Save(dir string, wacn uint32, sysid uint16) {
	if len(c.entries) == 0 {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logWriteErr(err, dir)
		return
	}
	path := filepath.Join(dir, CacheFileName(wacn, sysid))
	tmp, err := os.CreateTemp(dir, ".p25_cc_*")
	if err != nil {
		c.logWriteErr(err, path)
		return
	}
	var sb strings.Builder
	for _, e := range c.entries {
		fmt.Fprintf(&sb, "%d\n", e.freqHz)
	}
	if _, err = tmp.WriteString(sb.String()); err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		c.logWriteErr(err, path)
		return
	}
	c.log.Debug().Str("path", path).Int("entries", len(c.entries)).Msg("candidate cache saved")
}

func (c *CandidateCache) logWriteErr(err error, path string) {
	if c.writeErrLogged {
		return
	}
	c.writeErrLogged = true
	c.log.Warn().Err(err).Str("path", path).Msg("candidate cache write failed, continuing in-memory")
}

// Load appends the persisted frequencies for the given site in file order.
// A missing file is not an error; a malformed line aborts parsing of the
// rest of the file without error.
func (c *CandidateCache) Load(dir string, wacn uint32, sysid uint16) int {
	path := filepath.Join(dir, CacheFileName(wacn, sysid))
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	loaded := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		freq, err := strconv.ParseInt(line, 10, 64)
		if err != nil || freq <= 0 {
			break
		}
		if c.Add(freq, false) {
			loaded++
		}
	}
	if loaded > 0 {
		c.log.Info().Str("path", path).Int("loaded", loaded).Msg("candidate cache restored")
	}
	return loaded
}
