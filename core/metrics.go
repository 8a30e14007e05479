package core

import (
	"math/big"

	"dutch-auction-engine/core/model"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	created      prometheus.Counter
	sales        prometheus.Counter
	volume       prometheus.Counter
	fees         prometheus.Counter
	withdrawals  prometheus.Counter
	rejected     *prometheus.CounterVec
	persistFails prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_created_total",
			Help: "Auctions appended to the ledger",
		}),
		sales: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_sales_total",
			Help: "Successful purchases",
		}),
		volume: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_sales_volume",
			Help: "Sum of final prices, smallest currency unit",
		}),
		fees: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_fees_collected",
			Help: "Commission added to the treasury, smallest currency unit",
		}),
		withdrawals: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_treasury_withdrawals_total",
			Help: "Successful owner withdrawals",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_rejected_total",
			Help: "Rejected operations by reason",
		}, []string{"operation", "code"}),
		persistFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_persist_failures_total",
			Help: "Committed operations the store failed to record",
		}),
	}
}

// Observe is an Engine subscriber.
func (m *Metrics) Observe(r *model.Receipt) {
	switch r.Operation {
	case model.OperationCreate:
		m.created.Inc()
	case model.OperationBuy:
		m.sales.Inc()
		if r.Auction != nil {
			m.volume.Add(toFloat(r.Auction.FinalPrice))
		}
		for _, p := range r.Payouts {
			if p.Kind == model.PayoutProceeds && r.Auction != nil {
				m.fees.Add(toFloat(new(uint256.Int).Sub(r.Auction.FinalPrice, p.Amount)))
			}
		}
	case model.OperationWithdraw:
		m.withdrawals.Inc()
	}
}

func (m *Metrics) ObserveRejected(op model.Operation, code model.ValidCode) {
	m.rejected.WithLabelValues(string(op), code.Name()).Inc()
}

func (m *Metrics) ObservePersistFailure() {
	m.persistFails.Inc()
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
