package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medremind"

type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	triggers        *prometheus.CounterVec
	actions         *prometheus.CounterVec
	alarmsRung      prometheus.Counter
	resets          prometheus.Counter
	persistFailures prometheus.Counter
	gatewayFailures prometheus.Counter
	requests        *prometheus.CounterVec
	responseTime    prometheus.Histogram
	medications     prometheus.Gauge
	alarmState      prometheus.Gauge
	queueLength     prometheus.Gauge

	alarmsRungN      atomic.Int64
	resetsN          atomic.Int64
	persistFailuresN atomic.Int64
	gatewayFailuresN atomic.Int64
	requestsTotal    atomic.Int64
	requestsFailed   atomic.Int64
	medicationsN     atomic.Int64
	alarmStateN      atomic.Int64
	queueLengthN     atomic.Int64

	countsLock    sync.Mutex
	triggerCounts map[string]int64
	actionCounts  map[string]int64
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics with its own registry
func New() *Metrics {
	m := &Metrics{
		startTime:     time.Now(),
		registry:      prometheus.NewRegistry(),
		triggerCounts: make(map[string]int64),
		actionCounts:  make(map[string]int64),

		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_triggers_total",
			Help:      "Triggers offered to the alarm, by result",
		}, []string{"result"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_actions_total",
			Help:      "Patient actions on alarms",
		}, []string{"action"}),
		alarmsRung: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_rung_total",
			Help:      "Times an alarm started ringing",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_resets_total",
			Help:      "Daily taken-flag resets applied",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed saves of the medication list",
		}),
		gatewayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_failures_total",
			Help:      "Failed calls to the notification gateway",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests",
		}, []string{"outcome"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_seconds",
			Help:      "HTTP API response time",
			Buckets:   prometheus.DefBuckets,
		}),
		medications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "medications",
			Help:      "Medications currently stored",
		}),
		alarmState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_state",
			Help:      "Alarm state: 0 idle, 1 ringing, 2 snoozed",
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_queue_length",
			Help:      "Triggers waiting for the alarm slot",
		}),
	}

	m.registry.MustRegister(
		m.triggers, m.actions, m.alarmsRung, m.resets,
		m.persistFailures, m.gatewayFailures,
		m.requests, m.responseTime,
		m.medications, m.alarmState, m.queueLength,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTrigger(result string) {
	m.triggers.WithLabelValues(result).Inc()
	m.countsLock.Lock()
	m.triggerCounts[result]++
	m.countsLock.Unlock()
}

func (m *Metrics) RecordAction(action string) {
	m.actions.WithLabelValues(action).Inc()
	m.countsLock.Lock()
	m.actionCounts[action]++
	m.countsLock.Unlock()
}

func (m *Metrics) RecordAlarmRung() {
	m.alarmsRung.Inc()
	m.alarmsRungN.Add(1)
}

func (m *Metrics) RecordReset() {
	m.resets.Inc()
	m.resetsN.Add(1)
}

func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Inc()
	m.persistFailuresN.Add(1)
}

func (m *Metrics) RecordGatewayFailure() {
	m.gatewayFailures.Inc()
	m.gatewayFailuresN.Add(1)
}

func (m *Metrics) RecordRequest(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
		m.requestsFailed.Add(1)
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.requestsTotal.Add(1)
	m.responseTime.Observe(d.Seconds())
}

func (m *Metrics) SetMedications(n int) {
	m.medications.Set(float64(n))
	m.medicationsN.Store(int64(n))
}

// SetAlarm records the alarm state code and queue length
func (m *Metrics) SetAlarm(state int, queued int) {
	m.alarmState.Set(float64(state))
	m.alarmStateN.Store(int64(state))
	m.queueLength.Set(float64(queued))
	m.queueLengthN.Store(int64(queued))
}

type Snapshot struct {
	Uptime          time.Duration    `json:"uptime"`
	AlarmsRung      int64            `json:"alarms_rung"`
	Triggers        map[string]int64 `json:"triggers"`
	Actions         map[string]int64 `json:"actions"`
	Resets          int64            `json:"resets"`
	PersistFailures int64            `json:"persistence_failures"`
	GatewayFailures int64            `json:"gateway_failures"`
	RequestsTotal   int64            `json:"requests_total"`
	RequestsFailed  int64            `json:"requests_failed"`
	Medications     int64            `json:"medications"`
	AlarmState      int64            `json:"alarm_state"`
	QueueLength     int64            `json:"queue_length"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:          time.Since(m.startTime),
		AlarmsRung:      m.alarmsRungN.Load(),
		Resets:          m.resetsN.Load(),
		PersistFailures: m.persistFailuresN.Load(),
		GatewayFailures: m.gatewayFailuresN.Load(),
		RequestsTotal:   m.requestsTotal.Load(),
		RequestsFailed:  m.requestsFailed.Load(),
		Medications:     m.medicationsN.Load(),
		AlarmState:      m.alarmStateN.Load(),
		QueueLength:     m.queueLengthN.Load(),
		Triggers:        make(map[string]int64),
		Actions:         make(map[string]int64),
	}

	m.countsLock.Lock()
	for k, v := range m.triggerCounts {
		s.Triggers[k] = v
	}
	for k, v := range m.actionCounts {
		s.Actions[k] = v
	}
	m.countsLock.Unlock()

	return s
}
