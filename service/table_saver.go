package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cartograph/api/codec"
	"cartograph/api/log"
	"cartograph/api/system"
	"cartograph/api/worldmap"
)

const (
	tableSaveRetryDelay  = 5 * time.Second
	tableSaveMaxAttempts = 5
)

type tableSaveJob struct {
	pos        worldmap.BlockPos
	tree       *codec.MemoryTree
	generation uint64
	attempt    int
}

// TableSaver 异步写制图桌快照，失败延迟重试；同一位置只保留最新一代
type TableSaver struct {
	store TableStore
	queue *system.RichQueue[tableSaveJob]
	once  sync.Once

	mu         sync.Mutex
	generation uint64
	// pending 每个位置最新的未写快照
	pending map[worldmap.BlockPos]tableSaveJob

	// saveMu 串行化后台写与 Flush
	saveMu sync.Mutex

	retryDelay time.Duration
	// OnSaved is called after every attempt. Used by tests and metrics.
	OnSaved func(pos worldmap.BlockPos, err error)
}

func NewTableSaver(store TableStore) *TableSaver {
	return &TableSaver{
		store:      store,
		queue:      system.NewRichQueue[tableSaveJob](),
		pending:    make(map[worldmap.BlockPos]tableSaveJob),
		retryDelay: tableSaveRetryDelay,
	}
}

// Submit queues a snapshot. tree must not be modified afterwards.
func (s *TableSaver) Submit(pos worldmap.BlockPos, tree *codec.MemoryTree) {
	s.mu.Lock()
	s.generation++
	job := tableSaveJob{pos: pos, tree: tree, generation: s.generation}
	s.pending[pos] = job
	s.mu.Unlock()
	s.queue.Enqueue(job)
}

// Forget drops every unsaved snapshot of pos, so a removed table is not
// written back.
func (s *TableSaver) Forget(pos worldmap.BlockPos) {
	s.mu.Lock()
	delete(s.pending, pos)
	s.mu.Unlock()
}

// Start runs the writer until ctx is done. Later calls are no-ops.
func (s *TableSaver) Start(ctx context.Context) {
	s.once.Do(func() {
		go s.queue.ConsumerWithContext(ctx, 1, func(job tableSaveJob, _ *sync.WaitGroup) {
			s.save(job)
		})
	})
}

// Pending is the number of positions with an unsaved snapshot.
func (s *TableSaver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every unsaved snapshot now, one attempt each. It is meant
// for shutdown and may run while the background writer is still active.
func (s *TableSaver) Flush(ctx context.Context) error {
	s.mu.Lock()
	jobs := make([]tableSaveJob, 0, len(s.pending))
	for _, job := range s.pending {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("flush cartography tables: %w", err))
			break
		}
		if _, err := s.write(job); err != nil {
			errs = append(errs, fmt.Errorf("cartography table %s: %w", job.pos, err))
		}
	}
	return errors.Join(errs...)
}

func (s *TableSaver) current(job tableSaveJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[job.pos]
	return ok && p.generation == job.generation
}

func (s *TableSaver) done(job tableSaveJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[job.pos]; ok && p.generation == job.generation {
		delete(s.pending, job.pos)
	}
}

// write saves job unless a newer snapshot replaced it or it was forgotten.
// attempted reports whether the store was called.
func (s *TableSaver) write(job tableSaveJob) (attempted bool, err error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if !s.current(job) {
		return false, nil
	}
	err = s.store.Save(job.pos, job.tree)
	if s.OnSaved != nil {
		s.OnSaved(job.pos, err)
	}
	if err == nil || errors.Is(err, system.ErrTableNotFound) {
		s.done(job)
	}
	return true, err
}

func (s *TableSaver) save(job tableSaveJob) {
	attempted, err := s.write(job)
	if !attempted || err == nil {
		return
	}
	if errors.Is(err, system.ErrTableNotFound) {
		log.Warnf("cartography table %s was removed, snapshot dropped", job.pos)
		return
	}
	job.attempt++
	if job.attempt >= tableSaveMaxAttempts {
		log.Errorf("cartography table %s not saved after %d attempts: %v", job.pos, job.attempt, err)
		s.done(job)
		return
	}
	log.Warnf("cartography table %s save failed, retry %d: %v", job.pos, job.attempt, err)
	s.queue.EnqueueWithDelay(job, s.retryDelay)
}
