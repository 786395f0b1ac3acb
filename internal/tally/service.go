// Package tally ties the personal counter, the event log and the sync
// queue into the two user actions: a single tap and a bulk add.
package tally

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/syncq"
)

// LargeBulkThreshold is the largest bulk add accepted without confirmation.
const LargeBulkThreshold = 10_000

// MaxBulkCount is the largest single bulk add.
const MaxBulkCount = 1_000_000_000

// Messages shown to the user.
const (
	InvalidCountMessage = "Please enter a valid number"
	SyncPendingWarning  = "Failed to sync with global count. Your personal count is saved."
)

// ErrInvalidCount rejects bulk adds that are not whole numbers in
// 1..MaxBulkCount.
var ErrInvalidCount = errors.New("tally: count must be a positive whole number")

type Counter interface {
	Count() int64
	Increment(delta int64) (int64, error)
}

type Recorder interface {
	Record(count int64, typ store.EntryType) (store.HistoryEntry, error)
}

type Syncer interface {
	Submit(ctx context.Context, delta int64) syncq.Outcome
}

// Result describes a completed user action.
type Result struct {
	PersonalCount int64
	Outcome       syncq.Outcome
	// Warning is set when the count was saved locally but not yet synced.
	Warning string
}

type Service struct {
	counter Counter
	history Recorder
	sync    Syncer
	log     zerolog.Logger
	wg      sync.WaitGroup
}

func NewService(c Counter, h Recorder, s Syncer) *Service {
	return &Service{counter: c, history: h, sync: s, log: logging.Component("tally")}
}

// Count is the current personal count.
func (s *Service) Count() int64 {
	return s.counter.Count()
}

// Tap adds one to the personal count and logs it. The global sync runs in
// the background and never reports back; a failure just queues the delta.
func (s *Service) Tap() (int64, error) {
	n, err := s.counter.Increment(1)
	if err != nil {
		return n, err
	}
	s.record(1, store.EntryIncrement)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out := s.sync.Submit(context.Background(), 1)
		s.log.Debug().Str("outcome", out.String()).Msg("tap synced")
	}()
	return n, nil
}

// AddBulk adds n at once and waits for the sync outcome. n outside
// 1..MaxBulkCount is rejected before anything changes.
func (s *Service) AddBulk(ctx context.Context, n int64) (Result, error) {
	if n <= 0 || n > MaxBulkCount {
		return Result{PersonalCount: s.counter.Count(), Outcome: syncq.Rejected}, ErrInvalidCount
	}
	count, err := s.counter.Increment(n)
	if err != nil {
		return Result{PersonalCount: count, Outcome: syncq.Rejected}, err
	}
	s.record(n, store.EntryBulk)

	res := Result{PersonalCount: count, Outcome: s.sync.Submit(ctx, n)}
	if res.Outcome == syncq.QueuedForRetry {
		res.Warning = SyncPendingWarning
	}
	return res, nil
}

// Wait blocks until background tap syncs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) record(n int64, typ store.EntryType) {
	if _, err := s.history.Record(n, typ); err != nil {
		s.log.Error().Err(err).Int64("count", n).Str("type", string(typ)).Msg("record history")
	}
}

// ParseCount reads user input for a bulk add.
func ParseCount(input string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || n <= 0 || n > MaxBulkCount {
		return 0, ErrInvalidCount
	}
	return n, nil
}

// NeedsConfirmation reports whether a bulk add is large enough to ask the
// user first.
func NeedsConfirmation(n int64) bool {
	return n > LargeBulkThreshold
}
