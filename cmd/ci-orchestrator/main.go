// Command ci-orchestrator is the build-job orchestrator's HTTP front door:
// it wires together the workspace layout, queue manager, toolchain
// resolver, build service, and cleanup scheduler, and serves the
// orchestrator's HTTP endpoints.
package main

import (
	"flag"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"mobileci/go/common"
	"mobileci/go/httputils"
	"mobileci/go/profsrv"
	"mobileci/go/sklog"
	"mobileci/internal/api"
	"mobileci/internal/build"
	"mobileci/internal/config"
	"mobileci/internal/gc"
	"mobileci/internal/queue"
	"mobileci/internal/toolchain"
	"mobileci/internal/workspace"
)

type serverFlags struct {
	Port        string
	PromPort    string
	PprofPort   string
	HealthzPort string
	StageDir    string
	FVMFlavors  string
}

func (s *serverFlags) flagset() *flag.FlagSet {
	fs := flag.NewFlagSet("ci-orchestrator", flag.ExitOnError)
	fs.StringVar(&s.Port, "port", ":8000", "Main HTTP address (e.g., ':8000').")
	fs.StringVar(&s.PromPort, "prom_port", ":20000", "Metrics service address (e.g., ':20000').")
	fs.StringVar(&s.PprofPort, "pprof_port", "", "PProf handler (e.g., ':9001'). PProf not enabled if the empty string (default).")
	fs.StringVar(&s.HealthzPort, "healthz_port", ":10000", "The port for health checks.")
	fs.StringVar(&s.StageDir, "stage_dir", "action", "Directory containing 0_setup.sh, 1_android.sh, 1_ios.sh.")
	fs.StringVar(&s.FVMFlavors, "fvm_flavors", "fvm_flavors.json", "Path to the fvm_flavor -> tool-version mapping file.")
	return fs
}

var flags serverFlags

func main() {
	common.InitWithMust(
		"ci-orchestrator",
		common.PrometheusOpt(&flags.PromPort),
		common.FlagSetOpt((&flags).flagset()),
	)

	if config.WebhookSecret() == "" {
		sklog.Fatal("GITHUB_WEBHOOK_SECRET is not set; refusing to start")
	}

	logStartupDiagnostics()

	root, err := config.WorkspaceRoot()
	if err != nil {
		sklog.Fatalf("resolving workspace root: %s", err)
	}
	layout, err := workspace.New(root)
	if err != nil {
		sklog.Fatalf("preparing workspace layout: %s", err)
	}

	queueMgr := queue.NewManager(layout.LockFile)
	resolver := toolchain.NewResolver(flags.FVMFlavors)
	service := build.NewService(layout, queueMgr, resolver, flags.StageDir, config.MaxParallelBuilds())

	scheduler := gc.New(filepath.Join(root, "builds"), filepath.Join(root, "queue_locks"), config.CacheCleanupDays, service.IsRunning)
	if err := scheduler.Start(); err != nil {
		sklog.Fatalf("starting cleanup scheduler: %s", err)
	}

	profsrv.Start(flags.PprofPort)
	httputils.StartHealthzServer(flags.HealthzPort)

	a := &api.API{Service: service, Scheduler: scheduler, WebhookSecret: config.WebhookSecret()}
	r := chi.NewRouter()
	a.Routes(r)

	sklog.Infof("ci-orchestrator listening on %q", flags.Port)
	sklog.Fatal(http.ListenAndServe(flags.Port, httputils.LoggingGzipRequestResponse(r)))
}

// logStartupDiagnostics logs informational (never fatal) checks of the
// git-access configuration this process will hand to stage subprocesses,
// so an operator sees misconfiguration immediately instead of at first
// build.
func logStartupDiagnostics() {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		sklog.Infof("SSH_AUTH_SOCK is set: %s", sock)
	} else {
		sklog.Infof("SSH_AUTH_SOCK is not set; builds will rely on GITHUB_TOKEN or the default ssh-agent")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	keyPath := filepath.Join(home, ".ssh", "id_rsa")
	info, err := os.Stat(keyPath)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		sklog.Warningf("%s is group/world accessible (mode %v); tighten its permissions", keyPath, info.Mode().Perm())
	}
}
