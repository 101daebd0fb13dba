// Copyright (c) 2025, the AILinux project.
//
// The AILinux project licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Currently connected authenticated sessions",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_total",
		Help: "Total connections accepted, authenticated or not",
	})

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_jobs_running",
		Help: "Analysis jobs holding an admission ticket",
	})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_jobs_total",
		Help: "Analysis jobs by terminal outcome",
	}, []string{"outcome"})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rejections_total",
		Help: "Messages rejected before processing, by reason",
	}, []string{"reason"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_analysis_duration_seconds",
		Help:    "Inference engine latency per completed job",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
	})

	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_evicted_total",
		Help: "Sessions evicted by the reaper for inactivity",
	})

	JobsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_jobs_purged_total",
		Help: "Terminal jobs purged past the retention window",
	})
)
