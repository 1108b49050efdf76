package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"diskfiller/pkg/config"
	"diskfiller/pkg/filler"
	"diskfiller/pkg/types"
	"diskfiller/pkg/utils"
	"diskfiller/pkg/volume"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrNoVolume     = volume.ErrNoVolume
	ErrInvalidJob   = errors.New("invalid input")
	ErrRunActive    = errors.New("a fill run is already active")
	ErrNoRun        = errors.New("no fill run")
	ErrNotRunning   = errors.New("fill run is not running")
	ErrNotPaused    = errors.New("fill run is not paused")
	ErrVolumeLocked = errors.New("volume is being filled by another process")
)

// Controls mirrors which user actions are currently allowed.
type Controls struct {
	Start  bool
	Stop   bool
	Pause  bool
	Resume bool
}

var (
	idleControls     = Controls{Start: true}
	runningControls  = Controls{Stop: true, Pause: true}
	pausedControls   = Controls{Stop: true, Resume: true}
	stoppingControls = Controls{}
)

// Observer receives the events of a run in emission order, from a single
// goroutine.
type Observer interface {
	OnProgress(mib int64)
	OnLog(message string)
	OnFinished(res types.Result)
}

type nopObserver struct{}

func (nopObserver) OnProgress(int64)        {}
func (nopObserver) OnLog(string)            {}
func (nopObserver) OnFinished(types.Result) {}

// Status is a point-in-time view of the current or last run.
type Status struct {
	State           types.RunState
	RunID           string
	Volume          string
	Dir             string
	TargetMiB       int64
	ChunkMiB        int64
	ProgressMiB     int64
	FilesWritten    int
	LastLog         string
	Elapsed         time.Duration
	ThroughputMiBps float64
	Controls        Controls
	Outcome         types.Outcome
	Reason          types.Reason
	Error           string
}

type Option func(*Session)

// WithFs replaces the filesystem the filler writes to. The cross-process
// volume lock only guards the OS filesystem, so runs on any other Fs are
// not locked.
func WithFs(fs afero.Fs) Option {
	return func(s *Session) {
		s.fs = fs
	}
}

func WithProber(p volume.Prober) Option {
	return func(s *Session) {
		s.prober = p
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// Session is the controller side of the filler: it validates input,
// allows a single active run per volume and translates user actions into
// worker calls.
type Session struct {
	dirName  string
	logger   *zap.Logger
	fs       afero.Fs
	prober   volume.Prober
	clock    clockwork.Clock
	observer Observer
	validate *validator.Validate

	mu       sync.Mutex
	current  *run
	last     *run
	controls Controls
}

type run struct {
	id        string
	job       types.Job
	worker    *filler.Worker
	lock      *flock.Flock
	startedAt time.Time
	endedAt   time.Time
	progress  *atomic.Int64
	files     *atomic.Int64
	lastLog   *atomic.String
	result    types.Result
	done      chan struct{}
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		dirName:  cfg.DirName,
		logger:   logger,
		fs:       afero.NewOsFs(),
		prober:   volume.OSProber{},
		clock:    clockwork.NewRealClock(),
		observer: nopObserver{},
		validate: validator.New(),
		controls: idleControls,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateInputs parses the two size fields as entered by the user.
func ValidateInputs(target, chunk string) (int64, int64, error) {
	targetMiB, err := utils.ParseMiB(target)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: space to fill: %w", ErrInvalidJob, err)
	}
	chunkMiB, err := utils.ParseMiB(chunk)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: chunk size: %w", ErrInvalidJob, err)
	}
	if chunkMiB > types.MaxChunkMiB {
		return 0, 0, fmt.Errorf("%w: chunk size: at most %d MiB", ErrInvalidJob, types.MaxChunkMiB)
	}
	return targetMiB, chunkMiB, nil
}

// Start validates the job and launches its worker. Nothing is written to
// the volume when validation fails.
func (s *Session) Start(ctx context.Context, volumePath string, targetMiB, chunkMiB int64) (string, error) {
	if strings.TrimSpace(volumePath) == "" {
		return "", ErrNoVolume
	}

	job := types.NewJob(volumePath, s.dirName, targetMiB, chunkMiB)
	if err := s.validate.Struct(job); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidJob, describe(err))
	}
	if job.ChunkMiB > types.MaxChunkMiB {
		return "", fmt.Errorf("%w: ChunkMiB must be at most %d", ErrInvalidJob, types.MaxChunkMiB)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return "", ErrRunActive
	}

	var lock *flock.Flock
	if _, onDisk := s.fs.(*afero.OsFs); onDisk {
		lock = flock.New(lockPath(job))
		if locked, err := lock.TryLock(); err != nil {
			return "", fmt.Errorf("cannot acquire volume lock %q: %w", lock.Path(), err)
		} else if !locked {
			return "", fmt.Errorf("%w: %s", ErrVolumeLocked, lock.Path())
		}
	}

	r := &run{
		id:        uuid.NewString(),
		job:       job,
		lock:      lock,
		startedAt: s.clock.Now(),
		progress:  atomic.NewInt64(0),
		files:     atomic.NewInt64(0),
		lastLog:   atomic.NewString(""),
		done:      make(chan struct{}),
	}
	logger := s.logger.With(zap.String("run_id", r.id))
	r.worker = filler.New(job,
		filler.WithFs(s.fs),
		filler.WithProber(s.prober),
		filler.WithLogger(logger),
	)

	if err := r.worker.Start(ctx); err != nil {
		s.releaseLock(r)
		return "", err
	}

	s.current = r
	s.controls = runningControls
	go s.pump(r)

	logger.Info("Fill run started",
		zap.String("volume", job.Volume),
		zap.String("dir", job.Dir),
		zap.Int64("target_mib", job.TargetMiB),
		zap.Int64("chunk_mib", job.ChunkMiB))

	return r.id, nil
}

func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoRun
	}
	if !s.current.worker.Pause() {
		return ErrNotRunning
	}
	s.controls = pausedControls
	s.logger.Info("Fill run paused", zap.String("run_id", s.current.id))
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoRun
	}
	if !s.current.worker.Resume() {
		return ErrNotPaused
	}
	s.controls = runningControls
	s.logger.Info("Fill run resumed", zap.String("run_id", s.current.id))
	return nil
}

// Stop requests the active run to end; the run finishes asynchronously.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoRun
	}
	s.current.worker.Stop()
	s.controls = stoppingControls
	s.logger.Info("Fill run stop requested", zap.String("run_id", s.current.id))
	return nil
}

func (s *Session) Controls() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls
}

// Wait blocks until the current run, or the last one, has finished.
func (s *Session) Wait(ctx context.Context) (types.Result, error) {
	s.mu.Lock()
	r := s.current
	if r == nil {
		r = s.last
	}
	s.mu.Unlock()

	if r == nil {
		return types.Result{}, ErrNoRun
	}

	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: types.StateIdle, Controls: s.controls}

	r := s.current
	if r == nil {
		r = s.last
	}
	if r == nil {
		return st
	}

	st.RunID = r.id
	st.Volume = r.job.Volume
	st.Dir = r.job.Dir
	st.TargetMiB = r.job.TargetMiB
	st.ChunkMiB = r.job.ChunkMiB
	st.ProgressMiB = r.progress.Load()
	st.FilesWritten = int(r.files.Load())
	st.LastLog = r.lastLog.Load()

	end := s.clock.Now()
	if r == s.last {
		end = r.endedAt
		st.State = types.StateFinished
		st.Outcome = r.result.Outcome
		st.Reason = r.result.Reason
		if r.result.Err != nil {
			st.Error = r.result.Err.Error()
		}
	} else {
		st.State = r.worker.State()
	}

	st.Elapsed = end.Sub(r.startedAt)
	if secs := st.Elapsed.Seconds(); secs > 0 {
		st.ThroughputMiBps = float64(st.ProgressMiB) / secs
	}

	return st
}

func (s *Session) pump(r *run) {
	for ev := range r.worker.Events() {
		switch ev.Kind {
		case types.EventProgress:
			r.progress.Store(ev.Progress)
			r.files.Inc()
			s.observer.OnProgress(ev.Progress)
		case types.EventLog:
			r.lastLog.Store(ev.Message)
			s.observer.OnLog(ev.Message)
		}
	}

	res := r.worker.Result()

	s.mu.Lock()
	r.result = res
	r.endedAt = s.clock.Now()
	s.releaseLock(r)
	s.last = r
	s.current = nil
	s.controls = idleControls
	s.mu.Unlock()

	s.logger.Info("Fill run finished",
		zap.String("run_id", r.id),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("files", res.FilesWritten))

	s.observer.OnFinished(res)
	close(r.done)
}

// releaseLock unlocks but keeps the lock file. Removing it would let two
// processes lock different inodes under the same path.
func (s *Session) releaseLock(r *run) {
	if r.lock == nil {
		return
	}
	if err := r.lock.Unlock(); err != nil {
		s.logger.Warn("Failed to release volume lock", zap.String("path", r.lock.Path()), zap.Error(err))
	}
}

// lockPath sits next to the job directory so that deleting the directory
// never drops the lock of a run in progress.
func lockPath(job types.Job) string {
	return filepath.Join(job.Volume, "."+filepath.Base(job.Dir)+".lock")
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}
