package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"horoscope/internal/models"
)

// Draw outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
)

var (
	horoscopeRecordsDesc = prometheus.NewDesc(
		"horoscope_records",
		"Number of horoscope records by level",
		[]string{"level"},
		nil,
	)

	// FortuneDraws counts random selector calls by outcome.
	FortuneDraws = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "horoscope_fortune_draws_total",
		Help: "Total random horoscope draws by outcome",
	}, []string{"outcome"})
)

// LevelCounter reports how many horoscopes exist per level.
type LevelCounter interface {
	CountHoroscopesByLevel(ctx context.Context) (map[models.Level]int, error)
}

// LevelCollector is a custom Prometheus collector that reads record counts
// from the database on each scrape.
type LevelCollector struct {
	store LevelCounter
	log   zerolog.Logger
}

// NewLevelCollector creates a collector over store.
func NewLevelCollector(store LevelCounter, log zerolog.Logger) *LevelCollector {
	return &LevelCollector{store: store, log: log}
}

// Describe sends the metric descriptor to the channel.
func (c *LevelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- horoscopeRecordsDesc
}

// Collect emits one gauge per level, including levels with no records.
func (c *LevelCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.store.CountHoroscopesByLevel(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to collect horoscope metrics")
		return
	}
	for _, level := range models.Levels() {
		ch <- prometheus.MustNewConstMetric(
			horoscopeRecordsDesc,
			prometheus.GaugeValue,
			float64(counts[level]),
			level.Label(),
		)
	}
}

var initOnce sync.Once

// Init registers the collectors with the default registry.
// Must be called once at startup.
func Init(store LevelCounter, log zerolog.Logger) {
	initOnce.Do(func() {
		prometheus.MustRegister(NewLevelCollector(store, log))
		prometheus.MustRegister(FortuneDraws)
	})
}

// RecordDraw counts one selector call.
func RecordDraw(outcome string) {
	FortuneDraws.WithLabelValues(outcome).Inc()
}
