// Package metrics registers Prometheus counters for every decision edge
// of the gating pipeline. Served on the API router under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membergate_joins_total",
		Help: "Honored join transitions by signal source.",
	}, []string{"source"})

	LeavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membergate_leaves_total",
		Help: "Honored leave transitions by signal source.",
	}, []string{"source"})

	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membergate_duplicates_suppressed_total",
		Help: "Transitions discarded by the dedup window.",
	})

	RaidsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membergate_raids_triggered_total",
		Help: "Raid mode activations by event class.",
	}, []string{"class"})

	RaidRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membergate_raid_rejections_total",
		Help: "Joins or join requests rejected while raid mode was armed.",
	}, []string{"class"})

	VerificationPrompts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membergate_verification_prompts_total",
		Help: "Pending-verification records armed.",
	})

	VerificationBans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membergate_verification_bans_total",
		Help: "Users banned after the verification deadline expired.",
	})

	VerificationCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membergate_verification_completed_total",
		Help: "Identity confirmations that cleared pending records.",
	})

	ForceJoinBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membergate_force_join_blocked_total",
		Help: "Users gated for missing required targets, by scope.",
	}, []string{"scope"})

	ForceJoinCleared = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membergate_force_join_cleared_total",
		Help: "Successful rechecks that restored rights, by scope.",
	}, []string{"scope"})

	CampaignAttributions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membergate_campaign_attributions_total",
		Help: "Joins attributed to a registered campaign link.",
	})
)
