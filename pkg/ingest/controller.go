package ingest

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Job is one unit of ingestion work.
type Job struct {
	ID         string
	FileName   string
	FilePath   string
	StatusPath string
	FileSize   int64

	// Priority orders the queue; higher values run first, ties break by
	// arrival order.
	Priority int

	enqueuedAt time.Time
	seq        uint64
}

// ProcessFunc runs one job to completion.
type ProcessFunc func(ctx context.Context, job *Job) error

// Controller bounds the number of concurrently running ingestion jobs. Jobs
// are admitted from a priority queue by a poll loop that starts lazily on
// the first admission and stops once queue and running set are both empty.
type Controller struct {
	process       ProcessFunc
	maxConcurrent int
	pollInterval  time.Duration
	jobTimeout    time.Duration

	// QueueRetention, when positive, evicts jobs that have waited in the
	// queue longer than the window without being admitted. Set before the
	// first Add.
	QueueRetention time.Duration

	mu      sync.Mutex
	queue   []*Job
	running map[string]*runningJob
	seq     uint64
	looping bool

	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type runningJob struct {
	job       *Job
	startedAt time.Time
	watchdog  *time.Timer
}

// NewController creates a controller. maxConcurrent below 1 is treated as 1.
func NewController(process ProcessFunc, maxConcurrent int, pollInterval, jobTimeout time.Duration) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		process:       process,
		maxConcurrent: maxConcurrent,
		pollInterval:  pollInterval,
		jobTimeout:    jobTimeout,
		running:       make(map[string]*runningJob),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Add enqueues a job. Returns false without side effects when a job with the
// same ID is already queued or running, so admission is idempotent.
func (c *Controller) Add(job *Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.running[job.ID]; ok {
		return false
	}
	for _, queued := range c.queue {
		if queued.ID == job.ID {
			return false
		}
	}

	c.seq++
	job.seq = c.seq
	job.enqueuedAt = time.Now()
	c.queue = append(c.queue, job)

	sort.SliceStable(c.queue, func(i, j int) bool {
		if c.queue[i].Priority != c.queue[j].Priority {
			return c.queue[i].Priority > c.queue[j].Priority
		}
		return c.queue[i].seq < c.queue[j].seq
	})

	if !c.looping {
		c.looping = true
		c.wg.Add(1)
		go c.loop()
	}

	return true
}

// loop admits queued jobs while capacity allows, then exits once there is
// nothing queued or running. A later Add restarts it.
func (c *Controller) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.evictStale()
		c.admit()

		c.mu.Lock()
		if len(c.queue) == 0 && len(c.running) == 0 {
			c.looping = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		select {
		case <-c.ctx.Done():
			c.mu.Lock()
			c.looping = false
			c.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

// evictStale drops queued jobs that outlived the retention window. Evicted
// jobs get a terminal failed status so pollers are not left hanging.
func (c *Controller) evictStale() {
	if c.QueueRetention <= 0 {
		return
	}

	cutoff := time.Now().Add(-c.QueueRetention)

	c.mu.Lock()
	var evicted []*Job
	kept := c.queue[:0]
	for _, job := range c.queue {
		if job.enqueuedAt.Before(cutoff) {
			evicted = append(evicted, job)
		} else {
			kept = append(kept, job)
		}
	}
	c.queue = kept
	c.mu.Unlock()

	for _, job := range evicted {
		log.Printf("[controller] job %s evicted after waiting %s in queue",
			job.ID, time.Since(job.enqueuedAt).Round(time.Second))
		if job.StatusPath != "" {
			now := time.Now().UTC()
			if err := NewStatusWriter(job.StatusPath).Write(&Status{
				JobID:    job.ID,
				FileName: job.FileName,
				Status:   StatusFailed,
				Error:    "job evicted from queue before processing started",
				FailedAt: &now,
			}); err != nil {
				log.Printf("[controller] job %s: eviction status write: %v", job.ID, err)
			}
		}
	}
}

// admit moves jobs from the queue into the running set up to capacity.
func (c *Controller) admit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) > 0 && len(c.running) < c.maxConcurrent {
		job := c.queue[0]
		c.queue = c.queue[1:]

		rj := &runningJob{job: job, startedAt: time.Now()}
		if c.jobTimeout > 0 {
			// Advisory watchdog. The job is flagged, not killed, since a
			// blocking read cannot always be preempted safely mid-line.
			rj.watchdog = time.AfterFunc(c.jobTimeout, func() {
				log.Printf("[controller] job %s exceeded the %s processing ceiling",
					job.ID, c.jobTimeout)
			})
		}
		c.running[job.ID] = rj

		c.wg.Add(1)
		go c.runJob(rj)
	}
}

func (c *Controller) runJob(rj *runningJob) {
	defer c.wg.Done()

	job := rj.job
	log.Printf("[controller] job %s started (%s)", job.ID, job.FileName)

	if err := c.process(c.ctx, job); err != nil {
		log.Printf("[controller] job %s failed: %v", job.ID, err)
	} else {
		log.Printf("[controller] job %s finished in %s", job.ID, time.Since(rj.startedAt).Round(time.Millisecond))
	}

	c.mu.Lock()
	if rj.watchdog != nil {
		rj.watchdog.Stop()
	}
	delete(c.running, job.ID)
	c.mu.Unlock()
}

// QueueLength returns the number of jobs waiting for admission.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// RunningCount returns the number of jobs currently processing.
func (c *Controller) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

// Snapshot lists queued and running job IDs for status endpoints.
func (c *Controller) Snapshot() (queued, running []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, job := range c.queue {
		queued = append(queued, job.ID)
	}
	for id := range c.running {
		running = append(running, id)
	}
	sort.Strings(running)
	return queued, running
}

// Shutdown cancels the job context and waits for in-flight jobs and the poll
// loop to drain.
func (c *Controller) Shutdown() {
	c.cancel()
	c.wg.Wait()
}
