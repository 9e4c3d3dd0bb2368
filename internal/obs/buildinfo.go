package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "agentdesk edge build information.",
		},
		[]string{"version", "commit", "provider"},
	)
)

// InitBuildInfo registers build_info once and sets it to 1 for the running binary.
func InitBuildInfo(version, commit, provider string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit, provider).Set(1)
}
