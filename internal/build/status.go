package build

// StageSnapshot is the externally visible state of one stage.
type StageSnapshot struct {
	Running    bool `json:"running"`
	ReturnCode *int `json:"return_code"`
}

// Snapshot is the full externally visible state of a job, returned by
// GetStatus and embedded (trimmed) in ListBuilds.
type Snapshot struct {
	ID          string                      `json:"build_id"`
	Flavor      string                      `json:"flavor"`
	Platform    string                      `json:"platform"`
	BuildName   string                      `json:"build_name,omitempty"`
	BuildNumber string                      `json:"build_number,omitempty"`
	Branch      string                      `json:"branch_name"`
	FVMFlavor   string                      `json:"fvm_flavor,omitempty"`
	QueueKey    string                      `json:"queue_key"`
	Status      Status                      `json:"status"`
	Stages      map[string]StageSnapshot    `json:"stages"`
	Progress    map[string]PlatformProgress `json:"progress"`
	LogTail     []string                    `json:"logs"`
	LogPath     string                      `json:"log_file"`
}

// GetStatus live-computes a job's status from its StageHandles: if any
// stage is still running, the job is running; if the stored status was
// running and every stage has now exited, it's promoted to completed (all
// zero) or failed (otherwise); any other stored status is returned as-is.
// Terminal states are absorbing except for this live promotion.
func (s *Service) GetStatus(jobID string) (*Snapshot, bool) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	anyAlive := false
	anyHandle := false
	allZero := true
	stages := make(map[string]StageSnapshot, len(job.stages))
	for name, h := range job.stages {
		anyHandle = true
		running := h.ExitCode == nil
		if running {
			anyAlive = true
			allZero = false
		} else if *h.ExitCode != 0 {
			allZero = false
		}
		var rc *int
		if h.ExitCode != nil {
			code := *h.ExitCode
			rc = &code
		}
		stages[name] = StageSnapshot{Running: running, ReturnCode: rc}
	}

	status := job.status
	if anyAlive {
		status = StatusRunning
	} else if job.status == StatusRunning && anyHandle {
		if allZero {
			status = StatusCompleted
		} else {
			status = StatusFailed
		}
		job.status = status
	}

	progressCopy := make(map[string]PlatformProgress, len(job.progress))
	for k, v := range job.progress {
		progressCopy[k] = *v
	}

	job.logMu.Lock()
	tail := make([]string, len(job.logTail))
	copy(tail, job.logTail)
	job.logMu.Unlock()

	return &Snapshot{
		ID:          job.ID,
		Flavor:      job.Flavor,
		Platform:    job.Platform,
		BuildName:   job.BuildName,
		BuildNumber: job.BuildNumber,
		Branch:      job.Branch,
		FVMFlavor:   job.FVMFlavor,
		QueueKey:    job.QueueKey,
		Status:      status,
		Stages:      stages,
		Progress:    progressCopy,
		LogTail:     tail,
		LogPath:     job.LogPath,
	}, true
}

// Summary is the lightweight per-job projection returned by ListBuilds.
type Summary struct {
	ID       string `json:"build_id"`
	Flavor   string `json:"flavor"`
	Platform string `json:"platform"`
	Status   Status `json:"status"`
}

// ListBuilds returns a summary of every job the service has ever admitted,
// in an unspecified order.
func (s *Service) ListBuilds() []Summary {
	s.mu.RLock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		snap, ok := s.GetStatus(id)
		if !ok {
			continue
		}
		out = append(out, Summary{ID: snap.ID, Flavor: snap.Flavor, Platform: snap.Platform, Status: snap.Status})
	}
	return out
}

// IsRunning reports whether jobID is currently in the running state. Used
// by the cleanup scheduler so it never deletes a workspace still in use.
func (s *Service) IsRunning(jobID string) bool {
	snap, ok := s.GetStatus(jobID)
	return ok && snap.Status == StatusRunning
}
