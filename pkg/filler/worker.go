package filler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"diskfiller/pkg/types"
	"diskfiller/pkg/volume"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	defaultEventBuffer = 64
	dirPerm            = 0o755
	filePerm           = 0o644
)

var ErrAlreadyStarted = errors.New("worker already started")

type Option func(*Worker)

// WithFs replaces the OS filesystem the worker writes to.
func WithFs(fs afero.Fs) Option {
	return func(w *Worker) {
		w.fs = fs
	}
}

// WithProber replaces the free-space source.
func WithProber(p volume.Prober) Option {
	return func(w *Worker) {
		w.prober = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithEventBuffer sets the capacity of the event channel. Zero makes
// every emit wait for the consumer.
func WithEventBuffer(n int) Option {
	return func(w *Worker) {
		if n >= 0 {
			w.bufferSize = n
		}
	}
}

// Worker writes one fill job in the background. The run state is the
// only thing shared with the controller; it is guarded by mu and the
// pause condition is bound to the same lock.
type Worker struct {
	job        types.Job
	fs         afero.Fs
	prober     volume.Prober
	logger     *zap.Logger
	bufferSize int

	mu       sync.Mutex
	cond     *sync.Cond
	state    types.RunState
	started  bool
	finished bool
	result   types.Result

	events chan types.Event
	done   chan struct{}
}

// New creates a worker for job. The job must already be validated.
func New(job types.Job, opts ...Option) *Worker {
	w := &Worker{
		job:        job,
		fs:         afero.NewOsFs(),
		prober:     volume.OSProber{},
		logger:     zap.NewNop(),
		bufferSize: defaultEventBuffer,
		state:      types.StateRunning,
		done:       make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	for _, opt := range opts {
		opt(w)
	}

	w.events = make(chan types.Event, w.bufferSize)
	w.logger = w.logger.With(zap.String("dir", job.Dir))
	return w
}

// Start launches the background goroutine. Cancelling ctx requests a stop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	go w.run()
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.done:
		}
	}()

	return nil
}

// Events delivers progress, log and exactly one terminal event, in loop
// order. The channel is closed after the terminal event and must be
// drained, otherwise the worker blocks.
func (w *Worker) Events() <-chan types.Event {
	return w.events
}

// Done is closed once the run has ended and the job directory is gone.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Result is the summary of the run. It is set before the terminal event
// is emitted.
func (w *Worker) Result() types.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *Worker) Job() types.Job {
	return w.job
}

func (w *Worker) State() types.RunState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return types.StateFinished
	}
	return w.state
}

// Pause holds the worker before its next write. It reports false when
// the worker is not running.
func (w *Worker) Pause() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished || w.state != types.StateRunning {
		return false
	}
	w.state = types.StatePaused
	return true
}

// Resume releases a paused worker. A pending stop is not cleared.
func (w *Worker) Resume() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished || w.state != types.StatePaused {
		return false
	}
	w.state = types.StateRunning
	w.cond.Broadcast()
	return true
}

// Stop requests the run to end before its next write. A paused worker is
// woken so that it can observe the request.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return
	}
	w.state = types.StateStopping
	w.cond.Broadcast()
}

func (w *Worker) run() {
	defer close(w.done)
	defer close(w.events)

	w.logger.Info("Fill started",
		zap.String("volume", w.job.Volume),
		zap.Int64("target_mib", w.job.TargetMiB),
		zap.Int64("chunk_mib", w.job.ChunkMiB))

	res := w.fill()

	w.mu.Lock()
	w.result = res
	w.finished = true
	w.mu.Unlock()

	w.logger.Info("Fill finished",
		zap.String("outcome", string(res.Outcome)),
		zap.String("reason", string(res.Reason)),
		zap.Int("files", res.FilesWritten),
		zap.Int64("written_mib", res.WrittenMiB),
		zap.Error(res.Err))

	switch res.Outcome {
	case types.OutcomeStopped:
		w.emit(types.Event{Kind: types.EventStopped, Progress: w.capped(res.WrittenMiB)})
	case types.OutcomeFailed:
		w.emit(types.Event{Kind: types.EventFailed, Progress: w.capped(res.WrittenMiB), Err: res.Err})
	default:
		w.emit(types.Event{Kind: types.EventCompleted, Progress: w.capped(res.WrittenMiB), Reason: res.Reason})
	}
}

func (w *Worker) fill() types.Result {
	var res types.Result
	job := w.job

	// One chunk must fit before any memory is spent on the block.
	usage, err := w.prober.Usage(job.Volume)
	if err != nil {
		w.logf("Error checking free space on %s: %v", job.Volume, err)
		return w.finish(res, fmt.Errorf("failed to check free space: %w", err))
	}
	if job.ChunkMiB > usage.FreeMiB() {
		w.logf("Error: chunk size of %d MB exceeds the %d MB available on %s.", job.ChunkMiB, usage.FreeMiB(), job.Volume)
		return w.finish(res, fmt.Errorf("%w: %d MiB requested, %d MiB free", ErrChunkTooLarge, job.ChunkMiB, usage.FreeMiB()))
	}

	if err := w.fs.MkdirAll(job.Dir, dirPerm); err != nil {
		w.logf("Error creating folder %s: %v", job.Dir, err)
		w.logger.Error("Failed to create job directory", zap.Error(err))
		return w.finish(res, fmt.Errorf("failed to create job directory: %w", err))
	}

	block, err := NewBlock(job.ChunkMiB)
	if err != nil {
		w.logf("Error generating content: %v", err)
		return w.finish(res, err)
	}

	var failure error
	res.Reason = types.ReasonTargetReached

	for res.WrittenMiB < job.TargetMiB {
		if w.awaitTurn() {
			w.logf("Stopping process and deleting folder...")
			w.removeDir()
			res.Outcome = types.OutcomeStopped
			res.Reason = types.ReasonNone
			return res
		}

		name := filepath.Join(job.Dir, types.FileName(res.FilesWritten))
		if err := afero.WriteFile(w.fs, name, block, filePerm); err != nil {
			w.logf("Error writing file %s: %v", name, err)
			w.logger.Error("Failed to write filler file", zap.String("file", name), zap.Error(err))
			failure = fmt.Errorf("failed to write %s: %w", name, err)
			break
		}

		res.FilesWritten++
		res.WrittenMiB += job.ChunkMiB
		w.logf("Created %s of size %d MB. Total written: %d MB.", name, job.ChunkMiB, res.WrittenMiB)
		w.logger.Debug("Wrote filler file", zap.String("file", name), zap.Int64("written_mib", res.WrittenMiB))
		w.emit(types.Event{Kind: types.EventProgress, Progress: w.capped(res.WrittenMiB)})

		usage, err := w.prober.Usage(job.Volume)
		if err != nil {
			w.logf("Error checking free space on %s: %v", job.Volume, err)
			failure = fmt.Errorf("failed to check free space: %w", err)
			break
		}
		if usage.BelowFloor() {
			w.logf("Disk space is low. Deleting filler folder...")
			w.logger.Warn("Free space below floor",
				zap.Uint64("free_bytes", usage.Free),
				zap.Int64("floor_bytes", types.LowSpaceFloor))
			res.Reason = types.ReasonLowSpace
			break
		}
	}

	w.logf("Process completed.")
	return w.finish(res, failure)
}

// finish removes the job directory and sets the outcome of every path
// except an explicit stop.
func (w *Worker) finish(res types.Result, failure error) types.Result {
	w.removeDir()
	if failure != nil {
		res.Outcome = types.OutcomeFailed
		res.Reason = types.ReasonNone
		res.Err = failure
		return res
	}
	res.Outcome = types.OutcomeCompleted
	return res
}

// awaitTurn blocks while the run is paused and reports whether a stop
// has been requested.
func (w *Worker) awaitTurn() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.state == types.StatePaused {
		// Never emit under the lock, the consumer may call back into us.
		w.mu.Unlock()
		w.logf("Paused.")
		w.mu.Lock()

		if w.state != types.StatePaused {
			break
		}
		w.cond.Wait()
	}

	return w.state == types.StateStopping
}

func (w *Worker) removeDir() {
	if err := w.fs.RemoveAll(w.job.Dir); err != nil {
		w.logf("Error deleting folder %s: %v", w.job.Dir, err)
		w.logger.Error("Failed to delete job directory", zap.Error(err))
	}
}

func (w *Worker) capped(written int64) int64 {
	return min(written, w.job.TargetMiB)
}

func (w *Worker) logf(format string, args ...interface{}) {
	w.emit(types.Event{Kind: types.EventLog, Message: fmt.Sprintf(format, args...)})
}

func (w *Worker) emit(ev types.Event) {
	w.events <- ev
}
