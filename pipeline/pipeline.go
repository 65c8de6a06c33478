package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-linkcheck/models"
)

var (
	// ErrSinkClosed is returned when Process is called after shutdown.
	ErrSinkClosed = errors.New("pipeline: sink closed")
)

// OutputWriter defines the interface for streaming record output.
type OutputWriter interface {
	Write(records []models.Record) error
	Close() error
	Validate() error
}

// Sink streams finished records to an OutputWriter in batches, dropping
// repeated keys. It does not close the writer.
type Sink struct {
	writer    OutputWriter
	recordCh  chan models.Record
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	stats stats

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewSink builds a sink with the given channel buffer and batch size.
func NewSink(writer OutputWriter, bufferSize, batchSize int) *Sink {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Sink{
		writer:    writer,
		recordCh:  make(chan models.Record, bufferSize),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (s *Sink) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Process enqueues records for writing.
func (s *Sink) Process(records ...models.Record) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := s.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrSinkClosed
	}

	for _, rec := range records {
		if err := s.enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to flush and prevents more submissions.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
	}
	s.mu.Unlock()

	s.signalShutdown()
	s.closeOnce.Do(func() {
		close(s.recordCh)
	})

	s.wg.Wait()
	return s.Err()
}

// Err returns the first error encountered during writing.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Written is the number of records handed to the writer.
func (s *Sink) Written() int64 {
	return s.stats.snapshot().written
}

// Duplicates is the number of records dropped as repeats.
func (s *Sink) Duplicates() int64 {
	return s.stats.snapshot().duplicates
}

func (s *Sink) worker() {
	defer s.wg.Done()

	batch := make([]models.Record, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.Write(batch); err != nil {
			return err
		}
		s.stats.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	for rec := range s.recordCh {
		if !s.firstSeen(rec) {
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				s.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		s.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (s *Sink) firstSeen(rec models.Record) bool {
	key := models.Target{URL: rec.URL, Section: rec.Section}.Key()

	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, ok := s.seen[key]; ok {
		s.stats.addDuplicate()
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *Sink) enqueue(rec models.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrSinkClosed
		}
	}()

	select {
	case <-s.shutdown:
		return ErrSinkClosed
	case s.recordCh <- rec:
		return nil
	}
}

func (s *Sink) setErr(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.closed = true
	s.mu.Unlock()

	s.signalShutdown()
}

func (s *Sink) state() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.err
}

func (s *Sink) signalShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})
}

type stats struct {
	mu         sync.Mutex
	written    int64
	duplicates int64
}

type statsSnapshot struct {
	written    int64
	duplicates int64
}

func (st *stats) addWritten(n int) {
	st.mu.Lock()
	st.written += int64(n)
	st.mu.Unlock()
}

func (st *stats) addDuplicate() {
	st.mu.Lock()
	st.duplicates++
	st.mu.Unlock()
}

func (st *stats) snapshot() statsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return statsSnapshot{written: st.written, duplicates: st.duplicates}
}
