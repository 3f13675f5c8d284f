package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			reg := prometheus.NewRegistry()
			m := NewManager(WithRegistry(reg))
			So(m, ShouldNotBeNil)
		})

		Convey("When creating with custom options", func() {
			reg := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test-ns"),
				WithSubsystem("test-sub"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithEnabled(true),
				WithRegistry(reg),
			)
			So(m, ShouldNotBeNil)
			So(m.namespace, ShouldEqual, "test-ns")
			So(m.subsystem, ShouldEqual, "test-sub")
		})
	})
}

func TestRecordingHelpers(t *testing.T) {
	Convey("Given the global metrics helpers", t, func() {
		Convey("Then verification metrics record without panicking", func() {
			So(func() {
				RecordSessionVerified(true)
				RecordSessionVerified(false)
				ObserveFraudScore(0.5)
				ObserveVerificationLatency(12.0)
				UpdateAuditListSize(3)
			}, ShouldNotPanic)
		})

		Convey("And detection metrics record without panicking", func() {
			So(func() {
				RecordSuspiciousActivity("exact_repetition")
				RecordInputValidated()
				RecordInputRejected("rate_limited")
				RecordReconstructionViolation("score_manipulation")
				RecordCrossSessionFlag("score_improvement")
			}, ShouldNotPanic)
		})

		Convey("And intake metrics record without panicking", func() {
			So(func() {
				RecordDuplicateSubmission()
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
			}, ShouldNotPanic)
		})

		Convey("And worker and store metrics record without panicking", func() {
			So(func() {
				UpdateWorkerActiveCount(4)
				RecordWorkerProcessingLatency(2.0)
				RecordWorkerError()
				UpdateProfilesTracked(7)
				UpdateSessionsRetained(42)
				RecordFingerprintTaken()
			}, ShouldNotPanic)
		})

		Convey("And a handler can be built for the registry", func() {
			So(Handler(), ShouldNotBeNil)
		})
	})
}
