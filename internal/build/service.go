package build

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"sync"
	"time"

	goexec "mobileci/go/exec"
	"mobileci/go/sklog"
	"mobileci/internal/config"
	"mobileci/internal/progress"
	"mobileci/internal/queue"
	"mobileci/internal/toolchain"
	"mobileci/internal/workspace"
)

// Request is a normalized build request, produced either by the webhook
// router or by the manual /build HTTP handler.
type Request struct {
	Flavor      string
	Platform    string
	BuildName   string
	BuildNumber string
	Branch      string
	FVMFlavor   string
	Overrides   toolchain.Overrides
}

// Service owns every Job for the lifetime of the process (job state is
// in-memory only, not persisted across restarts) and the background
// workers that drive each one through its pipeline.
type Service struct {
	layout   *workspace.Layout
	queue    *queue.Manager
	resolver *toolchain.Resolver
	stageDir string

	sem chan struct{}

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewService constructs a Service. stageDir is the directory containing
// 0_setup.sh, 1_android.sh, and 1_ios.sh. maxParallel bounds the number of
// jobs holding an admission slot at once; a job takes its slot before it
// waits on its queue key, so jobs waiting on a queue key count against it.
func NewService(layout *workspace.Layout, q *queue.Manager, resolver *toolchain.Resolver, stageDir string, maxParallel int) *Service {
	return &Service{
		layout:   layout,
		queue:    q,
		resolver: resolver,
		stageDir: stageDir,
		sem:      make(chan struct{}, maxParallel),
		jobs:     map[string]*Job{},
	}
}

// Submit admits req: it synchronously allocates a job ID, resolves the
// branch and queue key, inserts a pending Job record, creates the on-disk
// log file, and dispatches the rest of the work to a background worker.
// It never blocks on the build itself.
func (s *Service) Submit(req Request) (string, error) {
	branch := config.BranchName(req.Flavor, req.Branch)
	versions := s.resolver.Resolve(req.FVMFlavor, req.Overrides)
	queueKey := queue.Key(req.Flavor, branch, req.FVMFlavor)

	s.mu.Lock()
	jobID, startedAt := s.allocateJobID(req.Flavor, req.Platform)
	logPath := filepath.Join(s.layout.JobDir(jobID), "build.log")
	job := newJob(jobID, req.Flavor, req.Platform, req.BuildName, req.BuildNumber, branch, req.FVMFlavor, versions, queueKey, logPath, startedAt)
	s.jobs[jobID] = job
	s.mu.Unlock()

	if err := s.initLogFile(job); err != nil {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
		return "", fmt.Errorf("creating log file: %w", err)
	}

	go s.runPipeline(job, req)

	return jobID, nil
}

// allocateJobID computes "<flavor>-<platform>-<YYYYMMDD-HHMMSS>", nudging
// the timestamp forward a second at a time on collision so two build
// requests arriving in the same wall-clock second (see scenario of two
// concurrent identical manual builds) still get distinct IDs. The caller
// must hold s.mu and insert the job under the same critical section.
func (s *Service) allocateJobID(flavor, platform string) (string, time.Time) {
	t := time.Now()
	for {
		id := fmt.Sprintf("%s-%s-%s", flavor, platform, t.Format("20060102-150405"))
		if _, exists := s.jobs[id]; !exists {
			return id, t
		}
		t = t.Add(time.Second)
	}
}

func (s *Service) initLogFile(job *Job) error {
	if err := os.MkdirAll(filepath.Dir(job.LogPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(job.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	header := fmt.Sprintf("=== Build Log for %s ===\nStarted: %s\n", job.ID, job.StartedAt.Format(time.RFC3339))
	_, err = f.WriteString(header)
	return err
}

// appendLog writes line to the job's on-disk log (authoritative, flushed
// immediately) and its in-memory tail, under the same critical section so
// an observer never sees the tail run ahead of the file except while the
// write is in flight.
func (s *Service) appendLog(job *Job, line string) {
	job.logMu.Lock()
	defer job.logMu.Unlock()

	job.appendLogTail(line)

	f, err := os.OpenFile(job.LogPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		sklog.Errorf("opening log for %s: %s", job.ID, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		sklog.Errorf("writing log for %s: %s", job.ID, err)
		return
	}
	_ = f.Sync()
}

// runPipeline is the background worker for one job: it waits for an
// admission slot, then for its queue key, then runs the stage pipeline,
// and always seals a terminal status before returning.
func (s *Service) runPipeline(job *Job, req Request) {
	s.sem <- struct{}{}
	activeCount.Inc()
	activeBuilds.Set(float64(activeCount.Get()))
	defer func() {
		<-s.sem
		activeCount.Dec()
		activeBuilds.Set(float64(activeCount.Get()))
		jobsTotal.WithLabelValues(string(job.getStatus()), job.Flavor).Inc()
	}()
	defer func() {
		if r := recover(); r != nil {
			sklog.Errorf("job %s panicked: %v", job.ID, r)
			s.appendLog(job, fmt.Sprintf("❌ panic: %v", r))
			job.setStatus(StatusFailed)
		}
	}()

	ctx := context.Background()
	err := s.queue.Execute(ctx, job.QueueKey, job.ID, func() error {
		job.setStatus(StatusRunning)
		return s.runStages(job, req)
	})
	if err != nil {
		sklog.Errorf("job %s failed: %s", job.ID, err)
		s.appendLog(job, fmt.Sprintf("❌ %s", err))
		job.setStatus(StatusFailed)
	}
}

// runStages assembles the job environment and runs setup to completion,
// then - if it exits zero - the platform stages in parallel. It never
// returns an error for an ordinary stage failure (that's recorded as a
// StageHandle exit code and a failed status, and a missing or unstartable
// script counts as such a failure); the returned error is reserved for
// workspace preparation failures, which the caller logs and also turns
// into a failed status.
func (s *Service) runStages(job *Job, req Request) error {
	prepared, err := s.layout.PrepareEnvironment(job.ID, job.Versions)
	if err != nil {
		job.setStatus(StatusFailed)
		return fmt.Errorf("preparing workspace: %w", err)
	}

	env := s.buildEnv(job, req, prepared)

	setupScript := filepath.Join(s.stageDir, "0_setup.sh")
	exitCode, stageErr := s.runStage(job, "setup", setupScript, nil, env, prepared.RepoDir)
	if stageErr != nil || exitCode != 0 {
		job.setStatus(StatusFailed)
		return nil
	}

	platforms := platformsFor(req.Platform)
	var extraArgs []string
	if req.BuildName != "" {
		extraArgs = append(extraArgs, "-n", req.BuildName)
	}
	if req.BuildNumber != "" {
		extraArgs = append(extraArgs, "-b", req.BuildNumber)
	}

	type result struct {
		exitCode int
		err      error
	}
	results := make(chan result, len(platforms))
	var wg sync.WaitGroup
	for _, p := range platforms {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			script := filepath.Join(s.stageDir, "1_"+p+".sh")
			ec, err := s.runStage(job, p, script, extraArgs, env, prepared.RepoDir)
			results <- result{ec, err}
		}()
	}
	wg.Wait()
	close(results)

	allZero := true
	for r := range results {
		if r.err != nil || r.exitCode != 0 {
			allZero = false
		}
	}
	if allZero {
		job.setStatus(StatusCompleted)
	} else {
		job.setStatus(StatusFailed)
	}
	return nil
}

func platformsFor(platform string) []string {
	switch platform {
	case "android":
		return []string{"android"}
	case "ios":
		return []string{"ios"}
	default:
		return []string{"android", "ios"}
	}
}

// runStage launches one stage subprocess, streams its merged stdout+stderr
// through the structured progress parser into the job's log, waits for it
// to exit, and records the result on the job's StageHandle. It never
// hands the raw process out of this function; the caller only ever sees
// the exit code.
func (s *Service) runStage(job *Job, name, script string, args []string, env []string, workDir string) (int, error) {
	job.registerStage(name)
	s.appendLog(job, fmt.Sprintf("▶ starting %s (%s)", name, script))

	pr, pw := io.Pipe()
	cmd := &goexec.Command{
		Name:           "bash",
		Args:           append([]string{script}, args...),
		Env:            env,
		Dir:            workDir,
		CombinedOutput: pw,
		Verbose:        goexec.Silent,
	}

	_, done, err := goexec.RunIndefinitely(cmd)
	if err != nil {
		pw.Close()
		s.appendLog(job, fmt.Sprintf("❌ failed to start %s: %s", name, err))
		job.completeStage(name, -1, err)
		return -1, err
	}

	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			ev := progress.Parse(line)
			switch ev.Kind {
			case progress.KindProgress:
				job.recordProgress(name, ev.Step, ev.Message, ev.Percentage)
			case progress.KindStep:
				job.recordStep(name, StepRecord{Step: ev.StepName, Status: ev.Status, Message: ev.Message, Timestamp: time.Now()})
			}
			s.appendLog(job, progress.Render(name, ev))
		}
	}()

	waitErr := <-done
	pw.Close()
	readerWG.Wait()

	exitCode := 0
	if waitErr != nil {
		exitCode = exitCodeOf(waitErr)
	}
	job.completeStage(name, exitCode, waitErr)
	s.appendLog(job, fmt.Sprintf("■ %s exited with code %d", name, exitCode))
	return exitCode, waitErr
}

func exitCodeOf(err error) int {
	if ee, ok := err.(*osexec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// buildEnv turns the prepared workspace env plus job/request fields into
// the flat Env slice every stage subprocess inherits.
func (s *Service) buildEnv(job *Job, req Request, prepared *workspace.Prepared) []string {
	m := map[string]string{}
	for k, v := range prepared.Env {
		m[k] = v
	}
	m["REPO_URL"] = os.Getenv("REPO_URL")
	m["LOCAL_DIR"] = prepared.RepoDir
	m["BRANCH_NAME"] = job.Branch
	m["FLAVOR"] = job.Flavor
	m["FASTLANE_LANE"] = config.FastlaneLane(job.Flavor)
	if mp := os.Getenv("MATCH_PASSWORD"); mp != "" {
		m["MATCH_PASSWORD"] = mp
	} else {
		sklog.Warningf("job %s: MATCH_PASSWORD not set; fastlane match steps may fail", job.ID)
	}
	if job.Versions.Flutter != "" {
		m["FLUTTER_VERSION"] = job.Versions.Flutter
	}
	if job.Versions.Gradle != "" {
		m["GRADLE_VERSION"] = job.Versions.Gradle
	}
	if job.Versions.Cocoapods != "" {
		m["COCOAPODS_VERSION"] = job.Versions.Cocoapods
	}
	if job.Versions.Fastlane != "" {
		m["FASTLANE_VERSION"] = job.Versions.Fastlane
	}
	if job.FVMFlavor != "" {
		m["FVM_FLAVOR"] = job.FVMFlavor
	}

	env := make([]string, 0, len(m))
	for k, v := range m {
		env = append(env, k+"="+v)
	}
	return env
}
