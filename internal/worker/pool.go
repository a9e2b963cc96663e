package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Executor runs one scan end to end.
type Executor interface {
	ExecuteScan(ctx context.Context, scanID, apkPath string) error
}

// Job is one unit of work for the pool.
type Job struct {
	ScanID   string
	APKPath  string
	resultCh chan error // set by SubmitAndWait
}

// Pool fans scan jobs out to a fixed set of workers.
type Pool struct {
	workers  int
	jobChan  chan *Job
	executor Executor
	logger   *logrus.Logger
	wg       sync.WaitGroup
}

func NewPool(workers, queueSize int, executor Executor, logger *logrus.Logger) *Pool {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		workers:  workers,
		jobChan:  make(chan *Job, queueSize),
		executor: executor,
		logger:   logger,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.WithField("worker_id", id).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Info("Worker shutting down")
			return

		case job, ok := <-p.jobChan:
			if !ok {
				p.logger.WithField("worker_id", id).Info("Job channel closed, worker exiting")
				return
			}

			p.logger.WithFields(logrus.Fields{
				"worker_id": id,
				"scan_id":   job.ScanID,
				"apk_path":  job.APKPath,
			}).Info("Processing scan")

			err := p.executor.ExecuteScan(ctx, job.ScanID, job.APKPath)
			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"worker_id": id,
					"scan_id":   job.ScanID,
				}).Error("Scan execution failed")
			} else {
				p.logger.WithFields(logrus.Fields{
					"worker_id": id,
					"scan_id":   job.ScanID,
				}).Info("Scan completed successfully")
			}

			if job.resultCh != nil {
				job.resultCh <- err
				close(job.resultCh)
			}
		}
	}
}

// Submit queues a job without waiting for the result.
func (p *Pool) Submit(job *Job) error {
	select {
	case p.jobChan <- job:
		p.logger.WithField("scan_id", job.ScanID).Debug("Job submitted to pool")
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

// SubmitAndWait queues a job and blocks until it finishes or ctx is done.
func (p *Pool) SubmitAndWait(ctx context.Context, job *Job) error {
	job.resultCh = make(chan error, 1)

	if err := p.Submit(job); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-job.resultCh:
		return err
	}
}

// QueuedJobs reports how many jobs are buffered.
func (p *Pool) QueuedJobs() int {
	return len(p.jobChan)
}

func (p *Pool) Size() int {
	return p.workers
}

// Stop closes the job channel and waits for workers to drain.
func (p *Pool) Stop() {
	close(p.jobChan)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}
