package trigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/avesia/backend/internal/alerts"
	"github.com/avesia/backend/internal/clips"
	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/metrics"
	"github.com/avesia/backend/internal/nodes"
	"github.com/avesia/backend/internal/publisher"
	"github.com/avesia/backend/internal/ratelimit"
	"github.com/avesia/backend/internal/results"
)

// dbTimeout bounds every database write on the trigger path.
const dbTimeout = 2 * time.Second

// ClipStore persists clip records.
type ClipStore interface {
	Save(ctx context.Context, clip *data.VideoClip) (uuid.UUID, error)
	UpdateEventTypeByID(ctx context.Context, id uuid.UUID, eventType, emailSentTo string) error
}

// VideoStore resolves source videos for extraction.
type VideoStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Video, error)
}

// ProjectStore resolves project metadata for alert bodies.
type ProjectStore interface {
	Lookup(ctx context.Context, id uuid.UUID) (*data.Project, error)
}

// ClipExtractor cuts the trailing clip from a source video.
type ClipExtractor interface {
	ExtractTrailing(ctx context.Context, sourcePath string, seconds float64) (*clips.Result, error)
}

// Notifier delivers alert emails.
type Notifier interface {
	Send(ctx context.Context, msg alerts.Message) error
}

// EventPublisher broadcasts fired triggers. Optional.
type EventPublisher interface {
	Publish(event *publisher.TriggerEvent) error
}

// Evaluator turns detection results into clips and notifications.
type Evaluator struct {
	Registry  *nodes.Registry
	Limiter   *ratelimit.CooldownLimiter
	Dedup     *EventDedup
	Clips     ClipStore
	Videos    VideoStore
	Projects  ProjectStore
	Extractor ClipExtractor
	Notifier  Notifier
	Publisher EventPublisher
	Metrics   *metrics.Metrics
}

// Process walks the structured fields of a result and fires every truthy
// one independently. A failure on one field never blocks the others.
func (e *Evaluator) Process(ctx context.Context, res results.DetectionResult) {
	fields := res.Fields()
	if len(fields) == 0 || res.ProjectID == "" {
		return
	}

	for field, value := range fields {
		if !IsTruthy(value) {
			continue
		}

		listener, ok := e.Registry.FindListener(field)
		if !ok {
			log.Printf("[DEBUG] trigger: field %q is truthy but has no listener", field)
			e.count("no_listener")
			continue
		}

		cand := Candidate{
			ProjectID:  res.ProjectID,
			VideoID:    res.VideoID,
			Field:      field,
			Value:      value,
			OccurredAt: res.OccurredAt,
			Listener:   listener,
		}
		e.fire(ctx, cand)
	}
}

// fire runs the clip attempt then the email attempt for one candidate.
// Clip first: a failed or suppressed clip must not block the email, and
// the reverse holds too.
func (e *Evaluator) fire(ctx context.Context, cand Candidate) {
	if e.Dedup != nil && e.Dedup.IsDuplicate(BuildDedupKey(cand.ProjectID, cand.Listener.ID, cand.OccurredAt)) {
		e.count("deduped")
		return
	}

	projectID, err := uuid.Parse(cand.ProjectID)
	if err != nil {
		log.Printf("[WARN] trigger: result carries malformed project id %q", cand.ProjectID)
		e.count("bad_project")
		return
	}

	project := e.lookupProject(projectID)
	if project == nil {
		e.count("unknown_project")
		return
	}

	e.count("fired")
	log.Printf("[DEBUG] trigger: listener %q fired for project %s", cand.Listener.Name, project.Name)

	clipID := e.attemptClip(ctx, cand, projectID)
	emailSentTo := e.attemptEmail(ctx, cand, project, clipID)

	if e.Publisher != nil {
		evt := &publisher.TriggerEvent{
			ProjectID:    cand.ProjectID,
			ListenerID:   cand.Listener.ID,
			ListenerName: cand.Listener.Name,
			VideoID:      cand.VideoID,
			EmailSentTo:  emailSentTo,
			Timestamp:    cand.OccurredAt,
		}
		if clipID != uuid.Nil {
			evt.ClipID = clipID.String()
		}
		if err := e.Publisher.Publish(evt); err != nil {
			log.Printf("[WARN] trigger: event publish failed: %v", err)
		}
	}
}

func (e *Evaluator) lookupProject(projectID uuid.UUID) *data.Project {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	project, err := e.Projects.Lookup(ctx, projectID)
	if err == data.ErrRecordNotFound {
		log.Printf("[WARN] trigger: project %s not found, skipping", projectID)
		return nil
	}
	if err != nil {
		log.Printf("[ERROR] trigger: project lookup failed: %v", err)
		return nil
	}
	return project
}

// attemptClip extracts and stores the trailing clip. Returns the stored clip
// ID, or uuid.Nil when no clip was made (live feed, cooldown, or failure).
func (e *Evaluator) attemptClip(ctx context.Context, cand Candidate, projectID uuid.UUID) uuid.UUID {
	if cand.VideoID == "" {
		// Live feed results carry no source video. Email still goes out.
		log.Printf("[DEBUG] trigger: no video for listener %q, skipping clip", cand.Listener.Name)
		return uuid.Nil
	}

	videoID, err := uuid.Parse(cand.VideoID)
	if err != nil {
		log.Printf("[WARN] trigger: malformed video id %q, skipping clip", cand.VideoID)
		return uuid.Nil
	}

	release := e.Limiter.Acquire(cand.ProjectID, cand.Listener.ID, ratelimit.ActionClip)
	defer release()

	if d := e.Limiter.Allow(cand.ProjectID, cand.Listener.ID, ratelimit.ActionClip); !d.Allowed {
		log.Printf("[DEBUG] trigger: clip cooldown active for %q (%s left)", cand.Listener.Name, d.Remaining.Round(time.Millisecond))
		e.clipStatus("rate_limited")
		return uuid.Nil
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	video, err := e.Videos.GetByID(dbCtx, videoID)
	cancel()
	if err != nil {
		log.Printf("[WARN] trigger: video %s lookup failed, skipping clip: %v", videoID, err)
		e.clipStatus("error")
		return uuid.Nil
	}

	extracted, err := e.Extractor.ExtractTrailing(ctx, video.Path, clips.DefaultClipSeconds)
	if err != nil {
		log.Printf("[ERROR] trigger: clip extraction failed for %q: %v", cand.Listener.Name, err)
		e.clipStatus("error")
		return uuid.Nil
	}

	record := &data.VideoClip{
		ID:              extracted.ID,
		ProjectID:       projectID,
		ListenerID:      cand.Listener.ID,
		EventTimestamp:  cand.OccurredAt,
		VideoID:         &videoID,
		Filename:        extracted.Filename,
		DurationSeconds: extracted.Duration,
		EventType:       data.ClipEventTrigger,
	}

	dbCtx, cancel = context.WithTimeout(context.Background(), dbTimeout)
	clipID, err := e.Clips.Save(dbCtx, record)
	cancel()
	if err != nil {
		log.Printf("[ERROR] trigger: clip record save failed: %v", err)
		e.clipStatus("error")
		return uuid.Nil
	}

	// Only a confirmed clip consumes the cooldown.
	e.Limiter.Record(cand.ProjectID, cand.Listener.ID, ratelimit.ActionClip)
	e.clipStatus("ok")
	return clipID
}

// attemptEmail sends to every email-capable event on the listener. The
// cooldown is consumed once per listener after the first confirmed send;
// the stored clip (if any) is upgraded to an email alert.
func (e *Evaluator) attemptEmail(ctx context.Context, cand Candidate, project *data.Project, clipID uuid.UUID) string {
	var eligible []nodes.EventConfig
	for _, evt := range cand.Listener.Events {
		if !evt.ChannelType().IsEmailCapable() {
			continue
		}
		if evt.Recipient == "" {
			log.Printf("[WARN] trigger: %q action on listener %q has no recipient, skipping", evt.Channel, cand.Listener.Name)
			continue
		}
		eligible = append(eligible, evt)
	}
	if len(eligible) == 0 {
		return ""
	}

	release := e.Limiter.Acquire(cand.ProjectID, cand.Listener.ID, ratelimit.ActionEmail)
	defer release()

	if d := e.Limiter.Allow(cand.ProjectID, cand.Listener.ID, ratelimit.ActionEmail); !d.Allowed {
		log.Printf("[DEBUG] trigger: email cooldown active for %q (%s left)", cand.Listener.Name, d.Remaining.Round(time.Second))
		e.emailStatus("rate_limited")
		return ""
	}

	firstRecipient := ""
	for _, evt := range eligible {
		msg := alerts.Message{
			To:           evt.Recipient,
			ListenerName: cand.Listener.Name,
			ProjectName:  project.Name,
			Body:         alerts.BuildBody(project.Name, resolveMessage(evt, cand.Listener)),
		}
		if err := e.Notifier.Send(ctx, msg); err != nil {
			e.logSendFailure(cand.Listener.Name, evt.Recipient, err)
			e.emailStatus("error")
			continue
		}
		e.emailStatus("ok")
		if firstRecipient == "" {
			firstRecipient = evt.Recipient
		}
	}

	if firstRecipient == "" {
		return ""
	}

	e.Limiter.Record(cand.ProjectID, cand.Listener.ID, ratelimit.ActionEmail)

	if clipID != uuid.Nil {
		dbCtx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := e.Clips.UpdateEventTypeByID(dbCtx, clipID, data.ClipEmailAlert, firstRecipient); err != nil {
			log.Printf("[WARN] trigger: clip %s upgrade failed: %v", clipID, err)
		}
	}
	return firstRecipient
}

// resolveMessage picks the alert text: event message, then event
// description, then listener description, then a generic line.
func resolveMessage(evt nodes.EventConfig, listener *nodes.ListenerConfig) string {
	if evt.Message != "" {
		return evt.Message
	}
	if evt.Description != "" {
		return evt.Description
	}
	if listener.Description != "" {
		return listener.Description
	}
	return fmt.Sprintf("Event %q triggered", listener.Name)
}

func (e *Evaluator) logSendFailure(listenerName, recipient string, err error) {
	switch {
	case alerts.IsAuthFailure(err):
		log.Printf("[ERROR] trigger: email auth failed sending %q alert (check SMTP credentials): %v", listenerName, err)
	case alerts.IsTransportFailure(err):
		log.Printf("[ERROR] trigger: email transport failed sending %q alert to %s: %v", listenerName, recipient, err)
	default:
		log.Printf("[ERROR] trigger: email send failed for %q to %s: %v", listenerName, recipient, err)
	}
}

func (e *Evaluator) count(outcome string) {
	if e.Metrics != nil {
		e.Metrics.Triggers.WithLabelValues(outcome).Inc()
	}
}

func (e *Evaluator) clipStatus(status string) {
	if e.Metrics != nil {
		e.Metrics.Clips.WithLabelValues(status).Inc()
	}
}

func (e *Evaluator) emailStatus(status string) {
	if e.Metrics != nil {
		e.Metrics.Emails.WithLabelValues(status).Inc()
	}
}
