package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/event"
)

const namespace = "examprep"

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_total",
		Help:      "Attempt lifecycle transitions by kind (started, resumed, finalized).",
	}, []string{"transition"})

	answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_total",
		Help:      "Submitted answers by correctness.",
	}, []string{"correct"})

	finalScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attempt_percent_of_points",
		Help:      "Percent of points earned by finalized attempts.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	eventHandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_handler_duration_seconds",
		Help:      "Event handler latency by event and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event", "outcome"})

	grpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "grpc_request_duration_seconds",
		Help:      "gRPC unary call latency by method and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// EventObserver records event handler latencies.
func EventObserver() event.Observer {
	return func(name string, d time.Duration, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		eventHandlerDuration.WithLabelValues(name, outcome).Observe(d.Seconds())
	}
}

// ObserveAttempts counts attempt lifecycle events published on the bus.
func ObserveAttempts(eb *event.Bus) {
	eb.Subscribe(domain.EventNameAttemptStarted, func(context.Context, event.Event) error {
		attemptsTotal.WithLabelValues("started").Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAttemptResumed, func(context.Context, event.Event) error {
		attemptsTotal.WithLabelValues("resumed").Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAnswerSubmitted, func(_ context.Context, e event.Event) error {
		a := e.(domain.EventAnswerSubmitted).Answer
		answersTotal.WithLabelValues(strconv.FormatBool(a.Correct)).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAttemptFinalized, func(_ context.Context, e event.Event) error {
		attemptsTotal.WithLabelValues("finalized").Inc()
		if r := e.(domain.EventAttemptFinalized).Attempt.Result; r != nil {
			finalScore.Observe(r.Aggregates.PercentOfPoints.InexactFloat64())
		}
		return nil
	})
}
