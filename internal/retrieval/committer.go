package retrieval

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/khanglvm/casebank/internal/learning"
	"github.com/khanglvm/casebank/internal/model"
)

const (
	// defaultQueueSize is the buffer size for the commit queue.
	// If full, the commit runs on its own goroutine instead of being dropped.
	defaultQueueSize = 1000

	// defaultWorkers is the number of background committers.
	defaultWorkers = 4

	// defaultMaxAttempts bounds retries of a retryable failure.
	defaultMaxAttempts = 3

	// defaultBackoff is the delay before the first retry; it doubles per attempt.
	defaultBackoff = 100 * time.Millisecond
)

// Recorder persists one example.
type Recorder interface {
	Record(ctx context.Context, e learning.Entry) (model.StoredExample, error)
}

// Commit is the pending result of recording one example.
type Commit struct {
	RequestID string

	done     chan struct{}
	example  model.StoredExample
	err      error
	attempts int
}

func newCommit(requestID string) *Commit {
	return &Commit{RequestID: requestID, done: make(chan struct{})}
}

func (c *Commit) finish(ex model.StoredExample, err error, attempts int) {
	c.example, c.err, c.attempts = ex, err, attempts
	close(c.done)
}

// Done is closed once the commit has finished.
func (c *Commit) Done() <-chan struct{} { return c.done }

// Wait blocks until the commit finishes or ctx ends. Abandoning the wait does
// not cancel the commit.
func (c *Commit) Wait(ctx context.Context) (model.StoredExample, error) {
	select {
	case <-c.done:
		return c.example, c.err
	case <-ctx.Done():
		return model.StoredExample{}, ctx.Err()
	}
}

// Err returns the final error. Only valid after Done is closed.
func (c *Commit) Err() error {
	<-c.done
	return c.err
}

// Attempts returns how many times the record was tried. Only valid after Done is closed.
func (c *Commit) Attempts() int {
	<-c.done
	return c.attempts
}

type job struct {
	entry  learning.Entry
	commit *Commit
}

// Committer records examples in the background with bounded retry.
type Committer struct {
	recorder    Recorder
	queue       chan job
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	mu          sync.RWMutex
	stopped     bool
	workers     int
	maxAttempts int
	backoff     time.Duration
}

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithWorkers sets the number of background workers.
func WithWorkers(n int) CommitterOption {
	return func(c *Committer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the queue buffer size.
func WithQueueSize(n int) CommitterOption {
	return func(c *Committer) {
		if n >= 0 {
			c.queue = make(chan job, n)
		}
	}
}

// WithRetry sets the attempt limit and the initial backoff.
func WithRetry(maxAttempts int, backoff time.Duration) CommitterOption {
	return func(c *Committer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// NewCommitter creates a committer and starts its workers.
func NewCommitter(r Recorder, opts ...CommitterOption) *Committer {
	c := &Committer{
		recorder:    r,
		queue:       make(chan job, defaultQueueSize),
		stopChan:    make(chan struct{}),
		workers:     defaultWorkers,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go c.processJobs()
	}

	return c
}

// Submit queues entry for recording and returns immediately.
func (c *Committer) Submit(entry learning.Entry) *Commit {
	commit := newCommit(entry.RequestID)
	j := job{entry: entry, commit: commit}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		commit.finish(model.StoredExample{}, model.ErrCommitterStopped, 0)
		return commit
	}

	select {
	case c.queue <- j:
		// Job queued successfully
	default:
		log.Printf("Warning: commit queue full, recording %s out of band", entry.RequestID)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(j)
		}()
	}

	return commit
}

// Stop rejects new submissions and waits for every queued commit to finish.
func (c *Committer) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()

		close(c.stopChan)
		c.wg.Wait()
	})
}

// Pending returns the current number of queued commits.
func (c *Committer) Pending() int {
	return len(c.queue)
}

// processJobs runs in the background until Stop, then drains the queue.
func (c *Committer) processJobs() {
	defer c.wg.Done()

	for {
		select {
		case j := <-c.queue:
			c.run(j)

		case <-c.stopChan:
			// Stop signal: drain remaining jobs, then exit
			for {
				select {
				case j := <-c.queue:
					c.run(j)
				default:
					return
				}
			}
		}
	}
}

// run records one entry, retrying retryable failures with doubling backoff.
func (c *Committer) run(j job) {
	ctx := context.Background()
	delay := c.backoff

	var (
		ex       model.StoredExample
		err      error
		attempts int
	)
	for attempts = 1; attempts <= c.maxAttempts; attempts++ {
		ex, err = c.recorder.Record(ctx, j.entry)
		if err == nil || !model.IsRetryable(err) {
			break
		}
		if attempts == c.maxAttempts {
			break
		}
		log.Printf("Warning: record %s failed (attempt %d/%d), retrying in %v: %v",
			j.entry.RequestID, attempts, c.maxAttempts, delay, err)
		time.Sleep(delay)
		delay *= 2
	}

	if err != nil {
		log.Printf("Warning: failed to record %s: %v", j.entry.RequestID, err)
	}
	j.commit.finish(ex, err, min(attempts, c.maxAttempts))
}
