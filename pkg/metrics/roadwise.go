package metrics

import "time"

// Roadwise groups the metrics the question pipeline reports. All methods
// are safe on a nil receiver so components can run without metrics.
type Roadwise struct {
	reg *Registry

	questions        *Counter
	resolveFallbacks *Counter
	roadsPerQuestion *Histogram
	summaries        *Counter
	noData           *Counter
	questionDuration *Histogram
	chatDuration     *Histogram
	embedDuration    *Histogram
	catalogRecords   *Gauge
	catalogRoads     *Gauge
	indexRoads       *Gauge
	discovered       *Counter
}

// NewRoadwise registers the pipeline metrics in r.
func NewRoadwise(r *Registry) *Roadwise {
	return &Roadwise{
		reg:              r,
		questions:        r.Counter("roadwise_questions_total", "Questions received"),
		resolveFallbacks: r.Counter("roadwise_resolve_degraded_total", "Questions answered without road matches because resolution failed"),
		roadsPerQuestion: r.Histogram("roadwise_resolved_roads", "Road names resolved per question", CountBuckets),
		summaries:        r.Counter("roadwise_summaries_total", "Road version summaries built"),
		noData:           r.Counter("roadwise_summaries_no_data_total", "Road version summaries with no valid data"),
		questionDuration: r.Histogram("roadwise_question_duration_seconds", "End-to-end question latency", nil),
		chatDuration:     r.Histogram("roadwise_chat_duration_seconds", "Chat model latency", nil),
		embedDuration:    r.Histogram("roadwise_embed_duration_seconds", "Embedding call latency", nil),
		catalogRecords:   r.Gauge("roadwise_catalog_records", "Road version records in the catalog"),
		catalogRoads:     r.Gauge("roadwise_catalog_roads", "Distinct road names in the catalog"),
		indexRoads:       r.Gauge("roadwise_index_roads", "Road names in the similarity index"),
		discovered:       r.Counter("roadwise_refresh_discovered_total", "Road version records found by catalog refresh"),
	}
}

// Registry returns the underlying registry.
func (m *Roadwise) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Question records one question. A non-empty errKind marks it failed.
func (m *Roadwise) Question(start time.Time, errKind string) {
	if m == nil {
		return
	}
	m.questions.Inc()
	m.questionDuration.Since(start)
	if errKind != "" {
		m.reg.Counter(WithLabels("roadwise_question_errors_total", "kind", errKind), "Failed questions by kind").Inc()
	}
}

// Resolved records how many road names a question resolved to.
func (m *Roadwise) Resolved(n int, degraded bool) {
	if m == nil {
		return
	}
	m.roadsPerQuestion.Observe(float64(n))
	if degraded {
		m.resolveFallbacks.Inc()
	}
}

// Summaries records built summaries.
func (m *Roadwise) Summaries(total, noData int) {
	if m == nil {
		return
	}
	m.summaries.Add(int64(total))
	m.noData.Add(int64(noData))
}

// Chat records one chat model call.
func (m *Roadwise) Chat(start time.Time, err error) {
	if m == nil {
		return
	}
	m.chatDuration.Since(start)
	if err != nil {
		m.reg.Counter(WithLabels("roadwise_upstream_errors_total", "service", "chat"), "Failed upstream calls").Inc()
	}
}

// Embed records one embedding call.
func (m *Roadwise) Embed(start time.Time, err error) {
	if m == nil {
		return
	}
	m.embedDuration.Since(start)
	if err != nil {
		m.reg.Counter(WithLabels("roadwise_upstream_errors_total", "service", "embed"), "Failed upstream calls").Inc()
	}
}

// Catalog records the catalog size.
func (m *Roadwise) Catalog(records, roads int) {
	if m == nil {
		return
	}
	m.catalogRecords.Set(int64(records))
	m.catalogRoads.Set(int64(roads))
}

// Index records the similarity index size.
func (m *Roadwise) Index(roads int) {
	if m == nil {
		return
	}
	m.indexRoads.Set(int64(roads))
}

// Discovered records records found by a refresh.
func (m *Roadwise) Discovered(n int) {
	if m == nil {
		return
	}
	m.discovered.Add(int64(n))
}
