package trigger

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avesia/backend/internal/alerts"
	"github.com/avesia/backend/internal/clips"
	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/nodes"
	"github.com/avesia/backend/internal/ratelimit"
	"github.com/avesia/backend/internal/results"
)

func TestIsTruthy(t *testing.T) {
	assert.True(t, IsTruthy(true))
	assert.True(t, IsTruthy("true"))
	assert.True(t, IsTruthy("TRUE"))
	assert.True(t, IsTruthy(" True "))

	assert.False(t, IsTruthy(false))
	assert.False(t, IsTruthy("false"))
	assert.False(t, IsTruthy("yes"))
	assert.False(t, IsTruthy(1))
	assert.False(t, IsTruthy(1.0))
	assert.False(t, IsTruthy(nil))
	assert.False(t, IsTruthy(map[string]any{}))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type evalFixture struct {
	eval      *Evaluator
	clock     *fakeClock
	clips     *MockClipStore
	videos    *MockVideoStore
	projects  *MockProjectStore
	extractor *MockExtractor
	notifier  *MockNotifier
	publisher *MockPublisher
	projectID uuid.UUID
	videoID   uuid.UUID
}

func newFixture(t *testing.T, listeners ...*nodes.ListenerConfig) *evalFixture {
	t.Helper()
	f := &evalFixture{
		clock:     &fakeClock{t: time.Now()},
		clips:     &MockClipStore{},
		videos:    &MockVideoStore{},
		projects:  &MockProjectStore{},
		extractor: &MockExtractor{},
		notifier:  &MockNotifier{},
		publisher: &MockPublisher{},
		projectID: uuid.New(),
		videoID:   uuid.New(),
	}
	f.eval = &Evaluator{
		Registry:  nodes.NewRegistry(listeners),
		Limiter:   ratelimit.NewCooldownLimiterWithNow(f.clock.now),
		Clips:     f.clips,
		Videos:    f.videos,
		Projects:  f.projects,
		Extractor: f.extractor,
		Notifier:  f.notifier,
		Publisher: f.publisher,
	}
	return f
}

func emailListener(id, name, recipient string) *nodes.ListenerConfig {
	return &nodes.ListenerConfig{
		ID:   id,
		Name: name,
		Events: []nodes.EventConfig{
			{Action: "notify", Channel: "Email", Recipient: recipient, Message: "check the feed"},
		},
	}
}

func (f *evalFixture) result(t *testing.T, field string, value any, withVideo bool) results.DetectionResult {
	t.Helper()
	structured := map[string]any{field: value, "project_id": f.projectID.String()}
	now := time.Now()
	res := results.DetectionResult{
		ReceivedAt: now,
		OccurredAt: now.Add(-2 * time.Second),
		Format:     results.FormatJSON,
		Structured: structured,
		ProjectID:  f.projectID.String(),
	}
	if withVideo {
		res.VideoID = f.videoID.String()
		structured["video_id"] = f.videoID.String()
	}
	return res
}

func TestProcessFiresClipAndEmail(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person Detected", "ops@example.com"))

	res := f.result(t, "has_person", true, true)
	f.eval.Process(context.Background(), res)

	require.Len(t, f.clips.Saved, 1)
	clip := f.clips.Saved[0]
	assert.Equal(t, data.ClipEventTrigger, clip.EventType)
	assert.Equal(t, "has_person", clip.ListenerID)
	// The record carries the detection timestamp, not receipt time.
	assert.Equal(t, res.OccurredAt, clip.EventTimestamp)
	require.NotNil(t, clip.VideoID)
	assert.Equal(t, f.videoID, *clip.VideoID)

	require.Len(t, f.notifier.Sent, 1)
	sent := f.notifier.Sent[0]
	assert.Equal(t, "ops@example.com", sent.To)
	assert.Equal(t, "Person Detected", sent.ListenerName)
	assert.Contains(t, sent.Body, "Automated message from Front Door: check the feed")

	// Email success upgrades the stored clip by its ID.
	require.Len(t, f.clips.Upgrades, 1)
	assert.Equal(t, clip.ID, f.clips.Upgrades[0].ID)
	assert.Equal(t, data.ClipEmailAlert, f.clips.Upgrades[0].EventType)
	assert.Equal(t, "ops@example.com", f.clips.Upgrades[0].EmailSentTo)

	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, clip.ID.String(), f.publisher.Events[0].ClipID)
	assert.Equal(t, "ops@example.com", f.publisher.Events[0].EmailSentTo)
}

func TestProcessStringTruthiness(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))

	f.eval.Process(context.Background(), f.result(t, "has_person", "TRUE", false))
	assert.Len(t, f.notifier.Sent, 1)

	f2 := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))
	f2.eval.Process(context.Background(), f2.result(t, "has_person", "false", false))
	f2.eval.Process(context.Background(), f2.result(t, "has_person", 1, false))
	assert.Empty(t, f2.notifier.Sent)
	assert.Empty(t, f2.clips.Saved)
}

func TestEmailCooldownDoesNotBlockClips(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))
	ctx := context.Background()

	f.eval.Process(ctx, f.result(t, "has_person", true, true))
	require.Len(t, f.notifier.Sent, 1)
	require.Len(t, f.clips.Saved, 1)

	// Second event 10s later: email still cooling down (120s), clip window
	// (5s) already open again.
	res := f.result(t, "has_person", true, true)
	res.ReceivedAt = res.ReceivedAt.Add(10 * time.Second)
	res.OccurredAt = res.OccurredAt.Add(10 * time.Second)
	f.clock.advance(10 * time.Second)

	f.eval.Process(ctx, res)
	assert.Len(t, f.notifier.Sent, 1, "email suppressed by cooldown")
	assert.Len(t, f.clips.Saved, 2, "clip cooldown expired, clip extracted")
	// Second clip keeps its original event type: no email went out for it.
	assert.Len(t, f.clips.Upgrades, 1)
}

func TestClipFailureDoesNotBlockEmail(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))
	f.extractor.ExtractFunc = func(ctx context.Context, sourcePath string, seconds float64) (*clips.Result, error) {
		return nil, errors.New("ffmpeg exploded")
	}

	f.eval.Process(context.Background(), f.result(t, "has_person", true, true))

	assert.Empty(t, f.clips.Saved)
	require.Len(t, f.notifier.Sent, 1)
	assert.Empty(t, f.clips.Upgrades)
}

func TestEmailFailureLeavesClipStored(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))
	f.notifier.SendFunc = func(ctx context.Context, msg alerts.Message) error {
		return alerts.ErrAuthFailed
	}

	f.eval.Process(context.Background(), f.result(t, "has_person", true, true))

	require.Len(t, f.clips.Saved, 1)
	assert.Equal(t, data.ClipEventTrigger, f.clips.Saved[0].EventType)
	assert.Empty(t, f.clips.Upgrades)

	// Failed send must not consume the email cooldown.
	d := f.eval.Limiter.Allow(f.projectID.String(), "has_person", ratelimit.ActionEmail)
	assert.True(t, d.Allowed)
}

func TestLiveFeedSkipsClipButEmails(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))

	f.eval.Process(context.Background(), f.result(t, "has_person", true, false))

	assert.Empty(t, f.clips.Saved)
	assert.Zero(t, f.extractor.Calls)
	require.Len(t, f.notifier.Sent, 1)
	require.Len(t, f.publisher.Events, 1)
	assert.Empty(t, f.publisher.Events[0].ClipID)
}

func TestUnknownProjectSkipsEverything(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))
	f.projects.LookupFunc = func(ctx context.Context, id uuid.UUID) (*data.Project, error) {
		return nil, data.ErrRecordNotFound
	}

	f.eval.Process(context.Background(), f.result(t, "has_person", true, true))

	assert.Empty(t, f.clips.Saved)
	assert.Empty(t, f.notifier.Sent)
	assert.Empty(t, f.publisher.Events)
}

func TestNoListenerMatchIsSilent(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))

	f.eval.Process(context.Background(), f.result(t, "has_vehicle", true, true))

	assert.Empty(t, f.clips.Saved)
	assert.Empty(t, f.notifier.Sent)
}

func TestPerFieldIsolation(t *testing.T) {
	f := newFixture(t,
		emailListener("has_person", "Person", "broken@example.com"),
		emailListener("has_fire", "Fire", "ops@example.com"),
	)
	f.notifier.SendFunc = func(ctx context.Context, msg alerts.Message) error {
		if msg.To == "broken@example.com" {
			return alerts.ErrTransport
		}
		return nil
	}

	res := f.result(t, "has_person", true, false)
	res.Structured["has_fire"] = true

	f.eval.Process(context.Background(), res)

	// The failing listener does not stop the other one.
	require.Len(t, f.notifier.Sent, 1)
	assert.Equal(t, "ops@example.com", f.notifier.Sent[0].To)
}

func TestDedupSuppressesRefire(t *testing.T) {
	f := newFixture(t, emailListener("has_person", "Person", "ops@example.com"))
	f.eval.Dedup = NewEventDedup(128, 30*time.Second)

	res := f.result(t, "has_person", true, false)
	f.eval.Process(context.Background(), res)
	f.eval.Process(context.Background(), res)

	assert.Len(t, f.notifier.Sent, 1)
}

func TestMessageFallbackChain(t *testing.T) {
	l := &nodes.ListenerConfig{
		ID:          "l1",
		Name:        "Person",
		Description: "person near entrance",
		Events:      []nodes.EventConfig{{Channel: "email", Recipient: "a@b.c"}},
	}
	assert.Equal(t, "person near entrance", resolveMessage(l.Events[0], l))

	// The action's own description outranks the listener's.
	l.Events[0].Description = "notify the front desk"
	assert.Equal(t, "notify the front desk", resolveMessage(l.Events[0], l))

	l.Events[0].Message = "explicit"
	assert.Equal(t, "explicit", resolveMessage(l.Events[0], l))

	bare := &nodes.ListenerConfig{ID: "l2", Name: "Fire", Events: []nodes.EventConfig{{Channel: "email", Recipient: "a@b.c"}}}
	assert.Equal(t, `Event "Fire" triggered`, resolveMessage(bare.Events[0], bare))
}

func TestMissingRecipientWarnsAndSkips(t *testing.T) {
	f := newFixture(t, &nodes.ListenerConfig{
		ID:   "has_person",
		Name: "Person",
		Events: []nodes.EventConfig{
			{Action: "notify", Channel: "Email"},
			{Action: "notify", Channel: "Email", Recipient: "ops@example.com"},
		},
	})

	var logs bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&logs)
	defer log.SetOutput(prev)

	f.eval.Process(context.Background(), f.result(t, "has_person", true, false))

	// The blank action is skipped with a warning; the configured one sends.
	require.Len(t, f.notifier.Sent, 1)
	assert.Equal(t, "ops@example.com", f.notifier.Sent[0].To)
	assert.Contains(t, logs.String(), "[WARN]")
	assert.Contains(t, logs.String(), "no recipient")
}

func TestNonEmailChannelsAreIgnored(t *testing.T) {
	f := newFixture(t, &nodes.ListenerConfig{
		ID:   "has_person",
		Name: "Person",
		Events: []nodes.EventConfig{
			{Action: "notify", Channel: "Text", Recipient: "555-0100"},
			{Action: "notify", Channel: "Emergency", Recipient: "911"},
		},
	})

	f.eval.Process(context.Background(), f.result(t, "has_person", true, false))

	assert.Empty(t, f.notifier.Sent)
	// The trigger still fires and is published even with no deliverable channel.
	assert.Len(t, f.publisher.Events, 1)
}
