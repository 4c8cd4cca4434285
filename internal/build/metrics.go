package build

import (
	"github.com/prometheus/client_golang/prometheus"

	"mobileci/go/util"
)

var (
	activeBuilds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mobileci_active_builds",
		Help: "Number of build jobs currently occupying the MAX_PARALLEL_BUILDS admission semaphore.",
	})
	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mobileci_jobs_total",
		Help: "Count of jobs that reached a terminal status, by status and flavor.",
	}, []string{"status", "flavor"})
)

func init() {
	prometheus.MustRegister(activeBuilds, jobsTotal)
}

// activeCount tracks the same occupancy as activeBuilds but also backs
// Service.ActiveBuilds(), so status/metrics consumers don't need to scrape
// their own process's /metrics endpoint.
var activeCount util.AtomicCounter

// ActiveBuilds returns the number of jobs currently holding an admission
// semaphore slot (queued for or running their stage pipeline).
func (s *Service) ActiveBuilds() int {
	return activeCount.Get()
}
