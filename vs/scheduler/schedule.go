// Package scheduler implements the Voting Server's per-election ballot
// schedule: a pseudo-random sequence of emission slots per voter,
// constructed so an observer watching only slot timings cannot
// distinguish a tick that will carry a genuine vote from one that will
// carry an obfuscation.
//
// The sampling draws a discrete-uniform vote count, then truncated-
// Gaussian inter-ballot intervals accumulated until the election's
// duration is covered, with a final slot appended after the election
// closes for the scheduler's closing obfuscation.
package scheduler

import (
	cryptorand "crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lokivote/cbr-voting/vs/imagepool"
	"github.com/lokivote/cbr-voting/vs/store"
)

// Config tunes the schedule-generation algorithm. Zero value is invalid;
// use DefaultConfig.
type Config struct {
	// VoteAmountMin and VoteAmountMax bound the discrete-uniform vote count
	// drawn per voter; the mean inter-slot interval is the election's
	// duration divided by that count, and the number of slots is however
	// many sampled intervals fit in the election, plus the closing slot.
	VoteAmountMin int
	VoteAmountMax int
	// MinInterval is the smallest accepted inter-slot interval; sampled
	// intervals at or below it are rejected and redrawn.
	MinInterval time.Duration
	// FinalObfuscationDelay is how long after the election's end the
	// scheduler's closing obfuscation slot is placed.
	FinalObfuscationDelay time.Duration
}

// DefaultConfig returns the production defaults: a vote count of 10-15, a 5 second
// interval floor, and a 60 second closing delay.
func DefaultConfig() Config {
	return Config{
		VoteAmountMin:         10,
		VoteAmountMax:         15,
		MinInterval:           5 * time.Second,
		FinalObfuscationDelay: 60 * time.Second,
	}
}

// newRand seeds a math/rand source from crypto/rand; slot timings must
// not be reproducible by an observer guessing a time-based seed.
func newRand() (*rand.Rand, error) {
	seedBig, err := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to seed PRNG: %w", err)
	}
	return rand.New(rand.NewSource(uint64(seedBig.Int64()))), nil
}

// voteAmount draws the discrete-uniform vote count in
// [cfg.VoteAmountMin, cfg.VoteAmountMax] that sets the mean interval.
func voteAmount(cfg Config, rnd *rand.Rand) int {
	span := cfg.VoteAmountMax - cfg.VoteAmountMin + 1
	return cfg.VoteAmountMin + rnd.Intn(span)
}

// sampleInterval draws a Normal(mean, mean/3) interval, rejecting and
// redrawing until the result lies in (cfg.MinInterval, 2*mean) — the
// original's accept/reject window from generate_epochs.
func sampleInterval(dist distuv.Normal, cfg Config, mean time.Duration) time.Duration {
	upper := 2 * mean
	for {
		v := dist.Rand()
		if v <= 0 {
			continue
		}
		d := time.Duration(v)
		if d > cfg.MinInterval && d < upper {
			return d
		}
	}
}

// round rounds ts to the nearest second, matching vs/clock's rounding
// rule so schedule timestamps and the scheduler's cached clock compare
// cleanly.
func round(ts time.Time) time.Time {
	if ts.Nanosecond() >= 500_000_000 {
		ts = ts.Add(time.Second)
	}
	return ts.Truncate(time.Second)
}

// GenerateTimestamps builds one voter's full slot sequence: a
// truncated-Gaussian accumulation of timestamps from start covering the
// election's duration, truncated at end, followed by one final slot at
// end+cfg.FinalObfuscationDelay for the scheduler's closing obfuscation.
func GenerateTimestamps(start, end time.Time, cfg Config) ([]time.Time, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("scheduler: election end %s is not after start %s", end, start)
	}
	rnd, err := newRand()
	if err != nil {
		return nil, err
	}
	n := voteAmount(cfg, rnd)
	duration := end.Sub(start)
	mean := duration / time.Duration(n)
	if mean <= 0 {
		mean = time.Second
	}
	sigma := float64(mean) * 2 / 6
	dist := distuv.Normal{Mu: float64(mean), Sigma: sigma, Src: rnd}

	var timestamps []time.Time
	cur := start
	for cur.Before(end) {
		interval := sampleInterval(dist, cfg, mean)
		cur = cur.Add(interval)
		if cur.After(end) {
			cur = end
		}
		// Rounding can land two samples on the same second near the
		// election's end; CBR ordering is strict per timestamp, so
		// collapse them.
		rt := round(cur)
		if n := len(timestamps); n > 0 && !rt.After(timestamps[n-1]) {
			continue
		}
		timestamps = append(timestamps, rt)
	}
	timestamps = append(timestamps, round(end.Add(cfg.FinalObfuscationDelay)))
	return timestamps, nil
}

// BuildSchedule generates one voter's timestamp sequence and assigns each
// slot a distinct, independently-shuffled image filename from
// vs/imagepool, returning the full vs/store.ScheduleEntry row set ready
// for Store.SetSchedule.
func BuildSchedule(start, end time.Time, cfg Config) ([]store.ScheduleEntry, error) {
	timestamps, err := GenerateTimestamps(start, end, cfg)
	if err != nil {
		return nil, err
	}
	images, err := imagepool.Generate(len(timestamps))
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to build image pool: %w", err)
	}
	entries := make([]store.ScheduleEntry, len(timestamps))
	for i, ts := range timestamps {
		entries[i] = store.ScheduleEntry{
			Timestamp: ts,
			ImagePath: images[i],
		}
	}
	return entries, nil
}
