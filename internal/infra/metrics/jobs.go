package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dailyRewardsGrantedTotal, broadcastMessagesTotal) }

var (
	dailyRewardsGrantedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daily_rewards_granted_total",
			Help: "Total number of daily token grants applied by the scheduler.",
		},
	)

	broadcastMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Broadcast deliveries, labeled by status.",
		},
		[]string{"status"}, // 'delivered', 'failed'
	)
)

func IncDailyRewardGranted() {
	dailyRewardsGrantedTotal.Inc()
}

func IncBroadcastMessage(status string) {
	broadcastMessagesTotal.WithLabelValues(norm(status)).Inc()
}
