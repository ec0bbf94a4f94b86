// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label constants.
const (
	LblResult = "result"
	LblType   = "type"

	LblOK    = "ok"
	LblError = "error"
)

var (
	AllocCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelAllocator,
			Name:      "alloc_total",
			Help:      "Number and result of object ID allocations.",
		}, []string{LblResult})

	BatchClaimCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelAllocator,
			Name:      "batch_claim_total",
			Help:      "Number and result of cursor batch claims.",
		}, []string{LblResult})

	BatchClaimDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelAllocator,
			Name:      "batch_claim_duration_seconds",
			Help:      "Bucketed histogram of batch claim round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20), // 0.1ms ~ 52s
		})

	BootstrapRaceCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelAllocator,
			Name:      "bootstrap_race_total",
			Help:      "Number of lost cursor bootstrap races (the one-shot refetch path).",
		})
)
