// Package metrics exports run statistics in the Prometheus text format so a
// node-exporter textfile collector can pick them up between runs.
package metrics

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tinytelemetry/satis/internal/model"
)

// Recorder collects the metrics of one run in a private registry.
type Recorder struct {
	reg *prometheus.Registry

	logFiles        prometheus.Gauge
	logFilesFailed  prometheus.Gauge
	events          *prometheus.GaugeVec
	uniquePlayers   prometheus.Gauge
	sessions        prometheus.Gauge
	loggingGaps     prometheus.Gauge
	longestGap      prometheus.Gauge
	scanDuration    prometheus.Gauge
	lastSuccess     prometheus.Gauge
	residentMemory  prometheus.Gauge
	historyFailures prometheus.Counter
}

// NewRecorder creates a recorder with every metric registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		logFiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_log_files",
			Help: "Number of log files discovered in the last run",
		}),
		logFilesFailed: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_log_files_failed",
			Help: "Number of log files that could not be read in the last run",
		}),
		events: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "satis_events",
			Help: "Events extracted in the last run by kind",
		}, []string{"kind"}),
		uniquePlayers: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_unique_players",
			Help: "Distinct usernames with at least one join",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_sessions",
			Help: "Inferred player sessions",
		}),
		loggingGaps: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_logging_gaps",
			Help: "Gaps in log coverage above the threshold",
		}),
		longestGap: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_longest_gap_seconds",
			Help: "Length of the longest gap in log coverage",
		}),
		scanDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_run_duration_seconds",
			Help: "Wall time of the last analysis run",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_last_success_timestamp_seconds",
			Help: "Unix time the last snapshot was written",
		}),
		residentMemory: f.NewGauge(prometheus.GaugeOpts{
			Name: "satis_process_resident_memory_bytes",
			Help: "Resident set size of the analyzer at the end of the run",
		}),
		historyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "satis_history_write_failures_total",
			Help: "History store writes that failed during the run",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveCorpus records file and event counts.
func (r *Recorder) ObserveCorpus(c *model.CorpusResult) {
	r.logFiles.Set(float64(len(c.Files)))
	r.logFilesFailed.Set(float64(len(c.Failed)))

	var errs, warns int
	for _, rec := range c.Records {
		if rec.Severity == model.SeverityError {
			errs++
		} else {
			warns++
		}
	}
	r.events.WithLabelValues("join").Set(float64(len(c.Joins)))
	r.events.WithLabelValues("connection").Set(float64(len(c.Connections)))
	r.events.WithLabelValues("error").Set(float64(errs))
	r.events.WithLabelValues("warning").Set(float64(warns))
}

// ObserveSnapshot records the derived counters of a finished snapshot.
func (r *Recorder) ObserveSnapshot(s model.Snapshot) {
	r.uniquePlayers.Set(float64(s.Summary.TotalUniquePlayers))
	r.sessions.Set(float64(s.Summary.TotalSessions))
	r.loggingGaps.Set(float64(s.Summary.TotalLoggingGaps))
	r.longestGap.Set(s.Summary.LongestGapHours * time.Hour.Seconds())
}

// ObserveRun records the run duration and the time the snapshot was written.
func (r *Recorder) ObserveRun(duration time.Duration, finished time.Time) {
	r.scanDuration.Set(duration.Seconds())
	r.lastSuccess.Set(float64(finished.Unix()))
}

// HistoryFailed counts a failed history write.
func (r *Recorder) HistoryFailed() {
	r.historyFailures.Inc()
}

// SampleProcess records the current resident memory of this process.
func (r *Recorder) SampleProcess() error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("process info: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return fmt.Errorf("memory info: %w", err)
	}
	r.residentMemory.Set(float64(mem.RSS))
	return nil
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
