package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		tokensDebitedTotal,
		tokensCreditedTotal,
		paymentsTotal,
		referralBonusesTotal,
	)
}

var (
	tokensDebitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_debited_total",
			Help: "Tokens charged from user balances, labeled by operation (text/image/audio).",
		},
		[]string{"operation"},
	)

	tokensCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_credited_total",
			Help: "Tokens added to user balances, labeled by source (payment/referral/daily).",
		},
		[]string{"source"},
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (initiated/settled/duplicate/failed).",
		},
		[]string{"status"},
	)

	referralBonusesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_bonuses_total",
			Help: "Total number of referral bonuses credited to inviters.",
		},
	)
)

func AddTokensDebited(operation string, amount int64) {
	tokensDebitedTotal.WithLabelValues(norm(operation)).Add(float64(amount))
}

func AddTokensCredited(source string, amount int64) {
	tokensCreditedTotal.WithLabelValues(norm(source)).Add(float64(amount))
}

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func IncReferralBonus() {
	referralBonusesTotal.Inc()
}
