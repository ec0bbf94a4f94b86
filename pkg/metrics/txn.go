// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transaction operation types.
const (
	LblBegin  = "begin"
	LblCommit = "commit"
	LblAbort  = "abort"
)

var (
	TxnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelTxn,
			Name:      "txn_total",
			Help:      "Number and result of transaction operations.",
		}, []string{LblType, LblResult})

	EngineOpCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ModuleQuarry,
			Subsystem: LabelEngine,
			Name:      "op_total",
			Help:      "Number of operations issued to the storage engine.",
		}, []string{LblType})
)
