// Package build implements the build service: the heart of the
// orchestrator. It admits build requests, reserves each job's queue slot,
// runs the setup/android/ios stage pipeline, tails subprocess output into
// a ring buffer and an on-disk log, parses structured progress, and
// computes final job status.
package build

import (
	"sync"
	"time"

	"mobileci/internal/workspace"
)

// Status is a job's position in its state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageHandle is the runtime state of one stage subprocess (setup,
// android, or ios). ExitCode is nil while the stage is still running or
// its outcome is otherwise unknown; it is set exactly once, by the
// goroutine that waits on the subprocess, under the owning Job's mutex.
// Nothing outside this package ever reads a process handle directly - the
// status query only ever reads ExitCode.
type StageHandle struct {
	ExitCode *int
	Err      error
}

// StepRecord is one completed STEP: line for a platform stage.
type StepRecord struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PlatformProgress is the most recent PROGRESS: state plus the full
// history of STEP: completions for one platform stage.
type PlatformProgress struct {
	CurrentStep    string       `json:"current_step"`
	Percentage     int          `json:"percentage"`
	CurrentMessage string       `json:"current_message"`
	StepsCompleted []StepRecord `json:"steps_completed"`
}

// Job is the single typed record for one build. Its mutable fields are
// guarded by mu, except logTail, which is guarded by logMu; the build service is the only component that ever holds
// a pointer to a Job's StageHandles.
type Job struct {
	ID          string
	Flavor      string
	Platform    string
	BuildName   string
	BuildNumber string
	Branch      string
	FVMFlavor   string
	Versions    workspace.Versions
	QueueKey    string
	StartedAt   time.Time
	LogPath     string

	mu       sync.Mutex
	status   Status
	stages   map[string]*StageHandle
	progress map[string]*PlatformProgress

	logMu   sync.Mutex
	logTail []string
}

const (
	logTailCap    = 500
	logTailTrimTo = 400
)

func newJob(id, flavor, platform, buildName, buildNumber, branch, fvmFlavor string, versions workspace.Versions, queueKey, logPath string, startedAt time.Time) *Job {
	return &Job{
		ID:          id,
		Flavor:      flavor,
		Platform:    platform,
		BuildName:   buildName,
		BuildNumber: buildNumber,
		Branch:      branch,
		FVMFlavor:   fvmFlavor,
		Versions:    versions,
		QueueKey:    queueKey,
		StartedAt:   startedAt,
		LogPath:     logPath,
		status:      StatusPending,
		stages:      map[string]*StageHandle{},
		progress:    map[string]*PlatformProgress{},
	}
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

func (j *Job) getStatus() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) registerStage(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages[name] = &StageHandle{}
}

func (j *Job) completeStage(name string, exitCode int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ec := exitCode
	j.stages[name] = &StageHandle{ExitCode: &ec, Err: err}
}

func (j *Job) progressFor(platform string) *PlatformProgress {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.progress[platform]
	if !ok {
		p = &PlatformProgress{}
		j.progress[platform] = p
	}
	return p
}

func (j *Job) recordProgress(platform, step, message string, pct int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.progress[platform]
	if !ok {
		p = &PlatformProgress{}
		j.progress[platform] = p
	}
	p.CurrentStep = step
	p.CurrentMessage = message
	p.Percentage = pct
}

func (j *Job) recordStep(platform string, rec StepRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.progress[platform]
	if !ok {
		p = &PlatformProgress{}
		j.progress[platform] = p
	}
	p.StepsCompleted = append(p.StepsCompleted, rec)
}

// appendLogTail appends line to the in-memory tail, trimming to
// logTailTrimTo entries once logTailCap is exceeded. Must be called with
// logMu held so the disk write and the tail update happen in the same
// critical section (see internal/build.Service.appendLog).
func (j *Job) appendLogTail(line string) {
	j.logTail = append(j.logTail, line)
	if len(j.logTail) > logTailCap {
		j.logTail = append([]string{}, j.logTail[len(j.logTail)-logTailTrimTo:]...)
	}
}
