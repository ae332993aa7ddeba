package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testexec"
)

var (
	Debug                bool = false
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	workItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "work_items_total",
		Help:      "Count of completed work items",
	}, []string{
		"result",
		"label",
		"site",
	})

	workItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "work_item_duration_seconds",
		Help:      "Duration of work item execution",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"result",
	})

	workItemFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "work_item_faults_total",
		Help:      "Count of faults intercepted by the work item executor",
	})

	compositionDefects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "composition_defects_total",
		Help:      "Count of upstream actions rejected because their targets exclude tests",
	}, []string{
		"targets",
	})

	runTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_total",
		Help:      "Number of tests dispatched per run, by result",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of a dispatch run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordWorkItem records a finalized work item result
func RecordWorkItem(state types.ResultState, duration time.Duration) {
	if !isValidResult(state.Status) {
		log.Error("RecordWorkItem - invalid result", "result", state.Status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "work_items_total",
			"result", state.Status,
			"label", state.Label,
			"site", state.Site)
	}
	workItemsTotal.WithLabelValues(string(state.Status), state.Label, string(state.Site)).Inc()
	workItemDuration.WithLabelValues(string(state.Status)).Observe(duration.Seconds())
}

// RecordFault counts a fault that escaped the command chain
func RecordFault() {
	workItemFaults.Inc()
}

// RecordCompositionDefect counts an upstream action that could not be applied to a test
func RecordCompositionDefect(targets types.ActionTargets) {
	compositionDefects.WithLabelValues(targets.String()).Inc()
}

// RecordRun records the per-result totals and duration of a dispatch run
func RecordRun(runID string, passed, failed, skipped, errored int, duration time.Duration) {
	runTestsTotal.WithLabelValues(runID, string(types.TestStatusPass)).Add(float64(passed))
	runTestsTotal.WithLabelValues(runID, string(types.TestStatusFail)).Add(float64(failed))
	runTestsTotal.WithLabelValues(runID, string(types.TestStatusSkip)).Add(float64(skipped))
	runTestsTotal.WithLabelValues(runID, string(types.TestStatusError)).Add(float64(errored))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
