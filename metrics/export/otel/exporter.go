package otel

import (
	"context"
	"errors"
	"fmt"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goCred.MetricsSnapshot
	AuditStats() goCred.AuditStats
}

type observedCounter struct {
	id         goCred.MetricID
	instrument metric.Int64ObservableCounter
}

// observedHistogram reports cumulative buckets as one gauge keyed by "le".
type observedHistogram struct {
	id      goCred.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine metrics as observable instruments read on
// every collection. Verify failures carry a "reason" attribute and audit
// outcomes an "outcome" attribute, matching the Prometheus families.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	verifyFails  metric.Int64ObservableCounter
	auditEvents  metric.Int64ObservableCounter

	bucketAttrs  []metric.ObserveOption
	reasonAttrs  []metric.ObserveOption
	outcomeAttrs map[string]metric.ObserveOption
}

func NewOTelExporter(meter metric.Meter, engine *goCred.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:       source,
		counters:     make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
		outcomeAttrs: make(map[string]metric.ObserveOption),
	}
	for _, le := range internaldefs.HistogramBounds {
		exporter.bucketAttrs = append(exporter.bucketAttrs, metric.WithAttributes(attribute.String("le", le)))
	}
	for _, def := range internaldefs.VerifyFailureDefs {
		exporter.reasonAttrs = append(exporter.reasonAttrs,
			metric.WithAttributes(attribute.String(internaldefs.VerifyFailuresLabel, def.Label)))
	}
	for _, v := range internaldefs.AuditEvents(goCred.AuditStats{}) {
		exporter.outcomeAttrs[v.Label] = metric.WithAttributes(attribute.String(internaldefs.AuditEventsLabel, v.Label))
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*2+2)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	verifyFails, err := meter.Int64ObservableCounter(internaldefs.VerifyFailuresName,
		metric.WithDescription(internaldefs.VerifyFailuresHelp))
	if err != nil {
		return nil, fmt.Errorf("create verify failure counter: %w", err)
	}
	exporter.verifyFails = verifyFails
	observables = append(observables, verifyFails)

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		h.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription("Cumulative histogram bucket count by upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
		}
		h.count, err = meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		observables = append(observables, h.buckets, h.count)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditEvents, err := meter.Int64ObservableCounter(internaldefs.AuditEventsName,
		metric.WithDescription(internaldefs.AuditEventsHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit events counter: %w", err)
	}
	exporter.auditEvents = auditEvents
	observables = append(observables, auditEvents)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for i, v := range internaldefs.VerifyFailures(snapshot) {
		observer.ObserveInt64(e.verifyFails, int64(v.Value), e.reasonAttrs[i])
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := range cumulative {
			observer.ObserveInt64(h.buckets, int64(cumulative[i]), e.bucketAttrs[i])
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	for _, v := range internaldefs.AuditEvents(e.source.AuditStats()) {
		observer.ObserveInt64(e.auditEvents, int64(v.Value), e.outcomeAttrs[v.Label])
	}
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
