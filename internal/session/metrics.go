package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session activity.
type Metrics struct {
	ClientsConnected     prometheus.Counter
	SessionsStarted      prometheus.Counter
	QuestionAdvances     prometheus.Counter
	SubmissionsAccepted  prometheus.Counter
	DuplicateSubmissions prometheus.Counter
	CurrentQuestion      prometheus.Gauge
}

// NewMetrics registers the session collectors with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClientsConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "clients_connected_total",
			Help:      "Participants that joined the session.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "sessions_started_total",
			Help:      "Sessions started by the admin.",
		}),
		QuestionAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "question_advances_total",
			Help:      "Times the admin moved the session to a new question.",
		}),
		SubmissionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "submissions_accepted_total",
			Help:      "Results recorded.",
		}),
		DuplicateSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "submissions_duplicate_total",
			Help:      "Repeat submissions from a client that already has a result.",
		}),
		CurrentQuestion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quiz",
			Name:      "current_question_index",
			Help:      "Index of the question the session is on, -1 when idle.",
		}),
	}
	m.CurrentQuestion.Set(-1)
	if reg != nil {
		reg.MustRegister(
			m.ClientsConnected,
			m.SessionsStarted,
			m.QuestionAdvances,
			m.SubmissionsAccepted,
			m.DuplicateSubmissions,
			m.CurrentQuestion,
		)
	}
	return m
}
