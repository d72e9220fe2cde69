package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})

			Convey("And metrics are registered on the given registry", func() {
				manager.claimsInvalid.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if strings.HasPrefix(f.GetName(), "test_namespace_test_subsystem_") {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty values are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "signpost")
				So(manager.subsystem, ShouldEqual, "pipeline")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestPipelineMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When duplicates are recorded", func() {
			before := testutil.ToFloat64(globalManager.claimsDuplicate.WithLabelValues("url_test"))
			RecordClaimDuplicate("url_test")
			RecordClaimDuplicate("url_test")
			So(testutil.ToFloat64(globalManager.claimsDuplicate.WithLabelValues("url_test")), ShouldEqual, before+2)
		})

		Convey("When links are recorded", func() {
			before := testutil.ToFloat64(globalManager.linksCreated.WithLabelValues("C", "true"))
			RecordLinkCreated("C", true)
			So(testutil.ToFloat64(globalManager.linksCreated.WithLabelValues("C", "true")), ShouldEqual, before+1)
		})

		Convey("When cache invalidations are recorded", func() {
			before := testutil.ToFloat64(globalManager.cacheInvalidations)
			RecordCacheInvalidations(3)
			So(testutil.ToFloat64(globalManager.cacheInvalidations), ShouldEqual, before+3)
		})

		Convey("When the overall index is published", func() {
			UpdateIndexOverall("equal_test", 0.42, true)
			So(testutil.ToFloat64(globalManager.indexOverall.WithLabelValues("equal_test")), ShouldEqual, 0.42)
			So(testutil.ToFloat64(globalManager.indexInsufficient.WithLabelValues("equal_test")), ShouldEqual, 0)

			UpdateIndexOverall("equal_test", 0, false)
			So(testutil.ToFloat64(globalManager.indexInsufficient.WithLabelValues("equal_test")), ShouldEqual, 1)
			So(testutil.ToFloat64(globalManager.indexOverall.WithLabelValues("equal_test")), ShouldEqual, 0.42)
		})

		Convey("When the remaining recorders are called", func() {
			So(func() {
				RecordClaimIngested("inserted")
				RecordClaimInvalid()
				RecordMappingOutcome("rules")
				RecordLinkReview("approved")
				RecordOracleCall("timeout")
				RecordOracleLatency(12)
				RecordRetraction("retracted")
				RecordCacheLookup(true)
				RecordCacheLookup(false)
				RecordRecomputeLatency(3)
				RecordRecomputeError()
				RecordCredibilitySnapshots(4)
				UpdateQueueSize(10)
				UpdateWorkerCount(4)
				UpdateTotalClaims(100)
				RecordHTTPRequest("/claims", "POST", "201")
				RecordHTTPRequestDuration("/claims", "POST", "201", 5)
				RecordRepositoryQueryLatency("insert_claim", 1.5)
				RecordRepositoryError("insert_claim")
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(4)
				UpdateWorkerIdleCount(0)
				UpdateWorkerMessagesPerSecond(2.5)
				RecordWorkerProcessingLatency(8)
				RecordWorkerError()
				RecordErrorByComponent("oracle", "timeout")
				RecordErrorByType("timeout", "medium")
				RecordErrorByEndpoint("/claims", "POST", "client_error")
				RecordErrorLatency("http", "client_error", 2)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
