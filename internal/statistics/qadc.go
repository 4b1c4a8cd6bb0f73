package statistics

import (
	"strconv"

	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystemQadc = "qadc"

// Source is anything reporting scheduler statistics, usually a running
// scheduler.Scheduler.
type Source interface {
	Id() string
	Stats() scheduler.Stats
}

type QadcCollector struct {
	sources []Source

	running     *prometheus.Desc
	calibrating *prometheus.Desc
	cycles      *prometheus.Desc

	result      *prometheus.Desc
	ticks       *prometheus.Desc
	peakTicks   *prometheus.Desc
	conversions *prometheus.Desc
	faults      *prometheus.Desc
	scale       *prometheus.Desc
	maxSeen     *prometheus.Desc
}

func NewQadcCollector(sources []Source) *QadcCollector {
	instanceLabels := []string{"id"}
	channelLabels := []string{"id", "channel"}
	directionLabels := []string{"id", "channel", "direction"}
	return &QadcCollector{
		sources: sources,
		running: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "running"),
			"Whether conversions are running (1) or stopped (0)",
			instanceLabels, nil,
		),
		calibrating: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "calibrating"),
			"Whether a calibration session is active",
			instanceLabels, nil,
		),
		cycles: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "cycles_total"),
			"Number of completed round-robin cycles",
			instanceLabels, nil,
		),
		result: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "result"),
			"Published (filtered) result of the channel",
			channelLabels, nil,
		),
		ticks: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "ticks"),
			"Transition time of the last successful conversion",
			channelLabels, nil,
		),
		peakTicks: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "peak_ticks"),
			"Longest transition time over the recent conversions",
			channelLabels, nil,
		),
		conversions: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "conversions_total"),
			"Number of successful conversions",
			channelLabels, nil,
		),
		faults: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "faults_total"),
			"Number of failed conversions",
			channelLabels, nil,
		),
		scale: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "scale"),
			"Scale factor applied to transition times",
			directionLabels, nil,
		),
		maxSeen: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemQadc, "max_seen_ticks"),
			"Longest transition time observed since the last calibration",
			directionLabels, nil,
		),
	}
}

func (collector *QadcCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.running
	ch <- collector.calibrating
	ch <- collector.cycles
	ch <- collector.result
	ch <- collector.ticks
	ch <- collector.peakTicks
	ch <- collector.conversions
	ch <- collector.faults
	ch <- collector.scale
	ch <- collector.maxSeen
}

// Collect implements required collect function for all prometheus collectors
func (collector *QadcCollector) Collect(ch chan<- prometheus.Metric) {
	for _, source := range collector.sources {
		id := source.Id()
		stats := source.Stats()

		ch <- prometheus.MustNewConstMetric(collector.running, prometheus.GaugeValue, boolValue(stats.Running), id)
		ch <- prometheus.MustNewConstMetric(collector.calibrating, prometheus.GaugeValue, boolValue(stats.Calibrating), id)
		ch <- prometheus.MustNewConstMetric(collector.cycles, prometheus.CounterValue, float64(stats.Cycles), id)

		for idx, channel := range stats.Channels {
			chId := strconv.Itoa(idx)
			ch <- prometheus.MustNewConstMetric(collector.result, prometheus.GaugeValue, float64(channel.Result), id, chId)
			ch <- prometheus.MustNewConstMetric(collector.ticks, prometheus.GaugeValue, float64(channel.Ticks), id, chId)
			ch <- prometheus.MustNewConstMetric(collector.peakTicks, prometheus.GaugeValue, float64(channel.PeakTicks), id, chId)
			ch <- prometheus.MustNewConstMetric(collector.conversions, prometheus.CounterValue, float64(channel.Conversions), id, chId)
			ch <- prometheus.MustNewConstMetric(collector.faults, prometheus.CounterValue, float64(channel.Faults), id, chId)
		}

		for idx, channel := range stats.Calibration.Channels {
			chId := strconv.Itoa(idx)
			ch <- prometheus.MustNewConstMetric(collector.scale, prometheus.GaugeValue, channel.ScaleDown.Float(), id, chId, lut.Down.String())
			ch <- prometheus.MustNewConstMetric(collector.scale, prometheus.GaugeValue, channel.ScaleUp.Float(), id, chId, lut.Up.String())
			ch <- prometheus.MustNewConstMetric(collector.maxSeen, prometheus.GaugeValue, float64(channel.MaxSeenDown), id, chId, lut.Down.String())
			ch <- prometheus.MustNewConstMetric(collector.maxSeen, prometheus.GaugeValue, float64(channel.MaxSeenUp), id, chId, lut.Up.String())
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
