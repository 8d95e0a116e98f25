package transcode

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is a component whose statistics a Collector exports:
// *Controller, *Decoder, *Encoder or *TaskQueue.
type StatsSource interface {
	collect(m *metricSet, session string, ch chan<- prometheus.Metric)
}

// Collector exports the statistics of registered sessions as prometheus
// metrics. Every series carries a session label with the registered name.
type Collector struct {
	set *metricSet

	mu      sync.RWMutex
	sources map[string]StatsSource
}

type metricSet struct {
	queueTasks      *prometheus.Desc
	queuePending    *prometheus.Desc
	decoderFrames   *prometheus.Desc
	encoderFrames   *prometheus.Desc
	encoderReopens  *prometheus.Desc
	encoderBuffered *prometheus.Desc
	ctrlFrames      *prometheus.Desc
	ctrlClears      *prometheus.Desc
	ctrlReaders     *prometheus.Desc
	ctrlEnabled     *prometheus.Desc
}

// NewCollector creates a collector whose metric names start with
// namespace.
func NewCollector(namespace string) *Collector {
	name := func(sub, n string) string { return prometheus.BuildFQName(namespace, sub, n) }
	return &Collector{
		sources: make(map[string]StatsSource),
		set: &metricSet{
			queueTasks: prometheus.NewDesc(name("queue", "tasks_total"),
				"Task queue entries by outcome.", []string{"session", "stage", "state"}, nil),
			queuePending: prometheus.NewDesc(name("queue", "pending"),
				"Task queue entries waiting to run.", []string{"session", "stage"}, nil),
			decoderFrames: prometheus.NewDesc(name("decoder", "frames_total"),
				"Decoder frames by outcome.", []string{"session", "engine", "result"}, nil),
			encoderFrames: prometheus.NewDesc(name("encoder", "frames_total"),
				"Encoder units by outcome.", []string{"session", "engine", "result"}, nil),
			encoderReopens: prometheus.NewDesc(name("encoder", "reopens_total"),
				"Encoder reopens after a size change.", []string{"session", "engine"}, nil),
			encoderBuffered: prometheus.NewDesc(name("encoder", "buffered_samples"),
				"Samples waiting in the encoder audio fifo.", []string{"session", "engine"}, nil),
			ctrlFrames: prometheus.NewDesc(name("controller", "frames_total"),
				"Controller frames by path.", []string{"session", "target", "path"}, nil),
			ctrlClears: prometheus.NewDesc(name("controller", "clears_total"),
				"Sink cache clears.", []string{"session", "target"}, nil),
			ctrlReaders: prometheus.NewDesc(name("controller", "readers"),
				"Current reader count.", []string{"session", "target"}, nil),
			ctrlEnabled: prometheus.NewDesc(name("controller", "enabled"),
				"1 while the controller delivers frames.", []string{"session", "target"}, nil),
		},
	}
}

// Register exports src under name. A name can be registered once.
func (c *Collector) Register(name string, src StatsSource) error {
	if src == nil {
		return fmt.Errorf("%w: nil stats source", ErrInvalidConfig)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[name]; ok {
		return fmt.Errorf("%w: session %q already registered", ErrInvalidConfig, name)
	}
	c.sources[name] = src
	return nil
}

// Unregister stops exporting name and reports whether it was registered.
func (c *Collector) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sources[name]
	delete(c.sources, name)
	return ok
}

// Sessions returns the registered names in order.
func (c *Collector) Sessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	m := c.set
	for _, d := range []*prometheus.Desc{
		m.queueTasks, m.queuePending,
		m.decoderFrames, m.encoderFrames, m.encoderReopens, m.encoderBuffered,
		m.ctrlFrames, m.ctrlClears, m.ctrlReaders, m.ctrlEnabled,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := make(map[string]StatsSource, len(c.sources))
	for n, s := range c.sources {
		sources[n] = s
	}
	c.mu.RUnlock()

	for name, src := range sources {
		src.collect(c.set, name, ch)
	}
}

func counter(ch chan<- prometheus.Metric, d *prometheus.Desc, v uint64, labels ...string) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
}

func gauge(ch chan<- prometheus.Metric, d *prometheus.Desc, v float64, labels ...string) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
}

func (m *metricSet) queue(ch chan<- prometheus.Metric, session, stage string, s TaskQueueStats) {
	counter(ch, m.queueTasks, s.Queued, session, stage, "queued")
	counter(ch, m.queueTasks, s.Executed, session, stage, "executed")
	counter(ch, m.queueTasks, s.Dropped, session, stage, "dropped")
	counter(ch, m.queueTasks, s.Rejected, session, stage, "rejected")
	counter(ch, m.queueTasks, s.Faults, session, stage, "faults")
	gauge(ch, m.queuePending, float64(s.Pending), session, stage)
}

func (m *metricSet) decoder(ch chan<- prometheus.Metric, session string, s DecoderStats) {
	counter(ch, m.decoderFrames, s.Decoded, session, s.Engine, "decoded")
	counter(ch, m.decoderFrames, s.Stale, session, s.Engine, "stale")
	counter(ch, m.decoderFrames, s.SendErrors, session, s.Engine, "send_error")
	m.queue(ch, session, "decoder", s.Queue)
}

func (m *metricSet) encoder(ch chan<- prometheus.Metric, session string, s EncoderStats) {
	counter(ch, m.encoderFrames, s.Encoded, session, s.Engine, "encoded")
	counter(ch, m.encoderFrames, s.SendErrors, session, s.Engine, "send_error")
	counter(ch, m.encoderReopens, s.Reopens, session, s.Engine)
	gauge(ch, m.encoderBuffered, float64(s.Buffered), session, s.Engine)
	m.queue(ch, session, "encoder", s.Queue)
}

func (q *TaskQueue) collect(m *metricSet, session string, ch chan<- prometheus.Metric) {
	m.queue(ch, session, q.name, q.Stats())
}

func (d *Decoder) collect(m *metricSet, session string, ch chan<- prometheus.Metric) {
	m.decoder(ch, session, d.Stats())
}

func (e *Encoder) collect(m *metricSet, session string, ch chan<- prometheus.Metric) {
	m.encoder(ch, session, e.Stats())
}

func (c *Controller) collect(m *metricSet, session string, ch chan<- prometheus.Metric) {
	s := c.Stats()
	target := s.Target.String()
	counter(ch, m.ctrlFrames, s.Transcoding, session, target, "transcoded")
	counter(ch, m.ctrlFrames, s.Forwarded, session, target, "forwarded")
	counter(ch, m.ctrlFrames, s.Declined, session, target, "declined")
	counter(ch, m.ctrlClears, s.Clears, session, target)
	gauge(ch, m.ctrlReaders, float64(s.Readers), session, target)
	enabled := 0.0
	if s.Enabled {
		enabled = 1
	}
	gauge(ch, m.ctrlEnabled, enabled, session, target)
	if s.Decoder != nil {
		m.decoder(ch, session, *s.Decoder)
	}
	if s.Encoder != nil {
		m.encoder(ch, session, *s.Encoder)
	}
}
