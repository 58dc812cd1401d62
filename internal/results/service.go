package results

import (
	"context"
	"log"
	"time"

	"github.com/avesia/backend/internal/metrics"
)

// Sink receives normalized results for trigger evaluation. Enqueue must not
// block; it reports whether the result was accepted.
type Sink interface {
	Enqueue(r DetectionResult) bool
}

// Service is the ingest path for detection results. It records the result
// and hands it off; it never reports downstream failure to the caller, so
// the vision service always gets an ACK.
type Service struct {
	Buffer  *Buffer
	Cache   *Cache
	Sink    Sink
	Metrics *metrics.Metrics
}

func NewService(buffer *Buffer, cache *Cache, sink Sink, m *metrics.Metrics) *Service {
	return &Service{Buffer: buffer, Cache: cache, Sink: sink, Metrics: m}
}

// Ingest decodes and records an ingress body, then forwards structured,
// project-scoped results for trigger evaluation.
func (s *Service) Ingest(ctx context.Context, raw string) DetectionResult {
	res := ParseRequest(raw, time.Now().UTC())

	s.Buffer.Append(res)
	if s.Metrics != nil {
		s.Metrics.ResultsReceived.WithLabelValues(string(res.Format)).Inc()
		s.Metrics.BufferSize.Set(float64(s.Buffer.Len()))
	}

	if s.Cache != nil {
		// Best effort. A cold cache only degrades dashboard latency.
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.Cache.SaveLatest(cctx, res); err != nil {
			log.Printf("[WARN] results: cache write failed: %v", err)
		}
		cancel()
	}

	if s.Sink != nil && res.Format == FormatJSON && res.ProjectID != "" {
		if !s.Sink.Enqueue(res) {
			log.Printf("[WARN] results: trigger queue full, dropping result for project %s", res.ProjectID)
		}
	}

	return res
}
