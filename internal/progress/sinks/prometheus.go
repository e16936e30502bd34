package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/wayback-crawler/internal/progress"
)

// PrometheusSink exports run-level progress collectors.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	runRuntime     *prometheus.HistogramVec
	pagesCrawled   *prometheus.CounterVec
	linksQueued    *prometheus.CounterVec
	domainsSkipped prometheus.Counter
	archiveResults *prometheus.CounterVec
	archiveLatency *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wayback_progress_runs_started_total",
			Help: "Coordinator runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayback_progress_runs_finished_total",
			Help: "Coordinator runs finished, by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wayback_progress_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 21600, 86400},
		}, []string{"result"}),
		pagesCrawled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayback_progress_pages_crawled_total",
			Help: "Pages whose links were harvested, by root domain.",
		}, []string{"domain"}),
		linksQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayback_progress_links_queued_total",
			Help: "New links queued for crawl and archive, by root domain.",
		}, []string{"domain"}),
		domainsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wayback_progress_domains_skipped_total",
			Help: "Root domains abandoned after refused connections.",
		}),
		archiveResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayback_progress_archive_results_total",
			Help: "Archive task outcomes.",
		}, []string{"outcome"}),
		archiveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wayback_progress_archive_duration_seconds",
			Help:    "Time from archive task start to outcome.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted, s.runsFinished, s.runRuntime, s.pagesCrawled,
		s.linksQueued, s.domainsSkipped, s.archiveResults, s.archiveLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone, progress.StageRunStopped:
			result := "completed"
			if evt.Stage == progress.StageRunStopped {
				result = "stopped"
			}
			s.runsFinished.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
		case progress.StagePageCrawled:
			domain := labelOrUnknown(evt.Domain)
			s.pagesCrawled.WithLabelValues(domain).Inc()
			if evt.Links > 0 {
				s.linksQueued.WithLabelValues(domain).Add(float64(evt.Links))
			}
		case progress.StageDomainSkipped:
			s.domainsSkipped.Inc()
		case progress.StageArchiveDone:
			s.archiveResults.WithLabelValues(evt.Outcome).Inc()
			if evt.Dur > 0 {
				s.archiveLatency.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
