// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

const (
	// ModuleQuarry is the metric namespace.
	ModuleQuarry = "quarry"
)

// Metric subsystems.
const (
	LabelAllocator  = "allocator"
	LabelEventQueue = "eventqueue"
	LabelTxn        = "txn"
	LabelEngine     = "engine"
)

var registerOnce sync.Once

// MetricsManager registers the collectors. Registration is process-wide and
// survives Close; Close only exists to mirror the other managers' lifecycle.
type MetricsManager struct {
	logger *zap.Logger
}

func NewMetricsManager() *MetricsManager {
	return &MetricsManager{}
}

func (mm *MetricsManager) Init(ctx context.Context, logger *zap.Logger) {
	mm.logger = logger
	registerOnce.Do(registerMetrics)
}

func (mm *MetricsManager) Close() {
}

func registerMetrics() {
	prometheus.DefaultRegisterer.Unregister(prometheus.NewGoCollector())
	prometheus.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorRuntimeMetrics()))

	prometheus.MustRegister(AllocCounter)
	prometheus.MustRegister(BatchClaimCounter)
	prometheus.MustRegister(BatchClaimDurationHistogram)
	prometheus.MustRegister(BootstrapRaceCounter)
	prometheus.MustRegister(EventQueueGauge)
	prometheus.MustRegister(QueuePollCounter)
	prometheus.MustRegister(QueuePollErrCounter)
	prometheus.MustRegister(CompletionCounter)
	prometheus.MustRegister(DiscardedCompletionCounter)
	prometheus.MustRegister(TxnCounter)
	prometheus.MustRegister(EngineOpCounter)
}

// ReadCounter reads the value from the counter. It is only used for testing.
func ReadCounter(counter prometheus.Counter) (int, error) {
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return 0, err
	}
	return int(metric.Counter.GetValue()), nil
}

// ReadGauge reads the value from the gauge. It is only used for testing.
func ReadGauge(gauge prometheus.Gauge) (int, error) {
	var metric dto.Metric
	if err := gauge.Write(&metric); err != nil {
		return 0, err
	}
	return int(metric.Gauge.GetValue()), nil
}
