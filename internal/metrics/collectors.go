package metrics

import (
	"context"
	"time"

	"arena/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// CustomCollector collects fight statistics from the databases on scrape
type CustomCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn

	// Descriptors
	totalFights      *prometheus.Desc
	overdueFights    *prometheus.Desc
	totalTrades24h   *prometheus.Desc
	settledFights24h *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn) *CustomCollector {
	return &CustomCollector{
		log:        log,
		postgres:   postgres,
		clickhouse: clickhouse,

		totalFights: prometheus.NewDesc(
			"arena_fights_count",
			"Number of fights by status",
			[]string{"status"}, nil,
		),
		overdueFights: prometheus.NewDesc(
			"arena_fights_overdue_count",
			"Live fights past their settle deadline",
			nil, nil,
		),
		totalTrades24h: prometheus.NewDesc(
			"arena_fight_trades_24h",
			"Fight trades recorded in last 24h",
			nil, nil,
		),
		settledFights24h: prometheus.NewDesc(
			"arena_settled_fights_24h",
			"Fights settled in last 24h",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalFights
	ch <- c.overdueFights
	ch <- c.totalTrades24h
	ch <- c.settledFights24h
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectFightStats(ctx, ch)
	c.collectOverdueFights(ctx, ch)
	c.collectTradeStats(ctx, ch)
	c.collectSettledStats(ctx, ch)
}

func (c *CustomCollector) collectFightStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type FightStat struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var stats []FightStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) as count
		FROM fights
		GROUP BY status
	`)
	if err != nil {
		c.log.Error("Failed to collect fight stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.totalFights,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Status,
		)
	}
}

func (c *CustomCollector) collectOverdueFights(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM fights
		WHERE status = 'live'
		AND started_at IS NOT NULL
		AND started_at + make_interval(mins => duration_minutes) < NOW()
	`)
	if err != nil {
		c.log.Error("Failed to collect overdue fight count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.overdueFights,
		prometheus.GaugeValue,
		float64(count),
	)
}

func (c *CustomCollector) collectTradeStats(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM fight_trades
		WHERE executed_at > NOW() - INTERVAL '24 hours'
	`)
	if err != nil {
		c.log.Error("Failed to collect trade stats", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.totalTrades24h,
		prometheus.CounterValue,
		float64(count),
	)
}

func (c *CustomCollector) collectSettledStats(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.clickhouse == nil {
		return
	}

	var count uint64
	err := c.clickhouse.QueryRow(ctx, `
		SELECT count(DISTINCT fight_id)
		FROM fight_settlements
		WHERE settled_at > now() - INTERVAL 24 HOUR
	`).Scan(&count)
	if err != nil {
		c.log.Error("Failed to collect settled fight stats", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.settledFights24h,
		prometheus.CounterValue,
		float64(count),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
