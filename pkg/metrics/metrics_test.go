package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func familyNames(t *testing.T, registry *prometheus.Registry) map[string]int {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]int, len(families))
	for _, mf := range families {
		names[mf.GetName()] = len(mf.GetMetric())
	}
	return names
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			m.searches.Inc()
			m.searchLatency.Observe(3)

			Convey("Then metrics use the configured names and labels", func() {
				names := familyNames(t, registry)
				So(names, ShouldContainKey, "test_unit_searches_total")
				So(names, ShouldContainKey, "test_unit_search_latency_milliseconds")

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				for _, mf := range families {
					if mf.GetName() != "test_unit_searches_total" {
						continue
					}
					labels := mf.GetMetric()[0].GetLabel()
					So(labels, ShouldHaveLength, 1)
					So(labels[0].GetName(), ShouldEqual, "env")
					So(labels[0].GetValue(), ShouldEqual, "test")
					So(mf.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 1)
				}
			})
		})

		Convey("When options carry empty values", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(m.namespace, ShouldEqual, "pitchrank")
				So(m.subsystem, ShouldEqual, "rankings")
				So(m.latencyBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestPackageRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When every recorder is called", func() {
			So(func() {
				RecordSearch(0.4, 3)
				RecordStaleResultDiscarded()
				RecordSessionSelection()
				RecordIndexBuild("u12-boys", 2.5, 1200)
				RecordIndexReuse("u12-boys")
				RecordSort("score", 1.2)
				RecordWindow(20)
				RecordFetch("u12-boys", "ok", 40)
				RecordFetchRetry("u12-boys")
				UpdateCohortRecords("u12-boys", 1200)
				RecordSourceReload()
				RecordSnapshotPublish(3 * time.Millisecond)
				UpdateQueueCapacity(1024)
				UpdateQueueSize(10, 1024)
				UpdateQueueSize(0, 0)
				RecordQueueEnqueue("background")
				RecordQueueEnqueueError("full")
				RecordQueueDequeue(0.2)
				UpdateWorkerActiveCount(2)
				RecordWorkerTaskLatency(0.3)
				RecordWorkerPanic()
				RecordSchedulerInline()
				RecordFlagOperation("set", "memory")
				RecordHTTPRequest("/search", "GET", "200")
				RecordHTTPRequestDuration("/search", "GET", "200", 1.5)
				RecordErrorByComponent("source", "fetch")
				RecordErrorByType("fetch", "warning")
				RecordErrorByEndpoint("/search", "GET", "bad_request")
				RecordErrorLatency("source", "fetch", 12)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)

			Convey("Then the shared registry exports them", func() {
				names := familyNames(t, GetRegistry())
				So(names, ShouldContainKey, "pitchrank_rankings_searches_total")
				So(names, ShouldContainKey, "pitchrank_rankings_stale_results_discarded_total")
				So(names, ShouldContainKey, "pitchrank_rankings_fetches_total")
				So(names, ShouldContainKey, "pitchrank_rankings_scheduler_inline_total")
				So(names["pitchrank_rankings_cohort_records"], ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})
}
