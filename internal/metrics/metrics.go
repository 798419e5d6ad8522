package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replygate_inbound_messages_total",
		Help: "Inbound messages by channel and pipeline outcome.",
	}, []string{"channel", "outcome"})

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replygate_classifications_total",
		Help: "Intent classifications by provider and result.",
	}, []string{"provider", "result"})

	ApprovalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replygate_approvals_created_total",
		Help: "Approval requests created.",
	})

	ApprovalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replygate_approvals_resolved_total",
		Help: "Approval dispositions by status.",
	}, []string{"status"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replygate_deliveries_total",
		Help: "Outbound sends by channel and status.",
	}, []string{"channel", "status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replygate_execution_queue_depth",
		Help: "Approved actions waiting for a worker.",
	})

	QueueRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replygate_execution_retries_total",
		Help: "Execution attempts retried after an error.",
	})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replygate_execution_dropped_total",
		Help: "Approved actions rejected because the queue was full.",
	})
)

var PolicyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replygate_policy_decisions_total",
	Help: "Policy outcomes by intent and decision.",
}, []string{"intent", "decision"})
