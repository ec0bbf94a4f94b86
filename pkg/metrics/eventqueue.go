// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventQueueGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelEventQueue,
			Name:      "open_queues",
			Help:      "Number of live completion queues.",
		})

	QueuePollCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelEventQueue,
			Name:      "poll_total",
			Help:      "Number of completion queue polls.",
		})

	QueuePollErrCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelEventQueue,
			Name:      "poll_error_total",
			Help:      "Number of failed completion queue polls.",
		})

	CompletionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelEventQueue,
			Name:      "completion_total",
			Help:      "Number of completions reaped from the queues.",
		})

	DiscardedCompletionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelEventQueue,
			Name:      "completion_discarded_total",
			Help:      "Number of completions whose waiter was already gone.",
		})
)
