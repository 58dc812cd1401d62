package trigger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/avesia/backend/internal/alerts"
	"github.com/avesia/backend/internal/clips"
	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/publisher"
)

// MockClipStore
type MockClipStore struct {
	mu       sync.Mutex
	SaveFunc func(ctx context.Context, clip *data.VideoClip) (uuid.UUID, error)
	Saved    []*data.VideoClip
	Upgrades []UpgradeCall
}

type UpgradeCall struct {
	ID          uuid.UUID
	EventType   string
	EmailSentTo string
}

func (m *MockClipStore) Save(ctx context.Context, clip *data.VideoClip) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, clip)
	}
	id := uuid.New()
	clip.ID = id
	m.Saved = append(m.Saved, clip)
	return id, nil
}

func (m *MockClipStore) UpdateEventTypeByID(ctx context.Context, id uuid.UUID, eventType, emailSentTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upgrades = append(m.Upgrades, UpgradeCall{ID: id, EventType: eventType, EmailSentTo: emailSentTo})
	return nil
}

// MockVideoStore
type MockVideoStore struct {
	GetFunc func(ctx context.Context, id uuid.UUID) (*data.Video, error)
}

func (m *MockVideoStore) GetByID(ctx context.Context, id uuid.UUID) (*data.Video, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return &data.Video{ID: id, Path: "/videos/source.mp4", DurationSeconds: 60}, nil
}

// MockProjectStore
type MockProjectStore struct {
	LookupFunc func(ctx context.Context, id uuid.UUID) (*data.Project, error)
}

func (m *MockProjectStore) Lookup(ctx context.Context, id uuid.UUID) (*data.Project, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, id)
	}
	return &data.Project{ID: id, Name: "Front Door"}, nil
}

// MockExtractor
type MockExtractor struct {
	mu          sync.Mutex
	ExtractFunc func(ctx context.Context, sourcePath string, seconds float64) (*clips.Result, error)
	Calls       int
}

func (m *MockExtractor) ExtractTrailing(ctx context.Context, sourcePath string, seconds float64) (*clips.Result, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, sourcePath, seconds)
	}
	id := uuid.New()
	return &clips.Result{ID: id, Filename: id.String() + ".mp4", Duration: seconds}, nil
}

// MockNotifier
type MockNotifier struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, msg alerts.Message) error
	Sent     []alerts.Message
}

func (m *MockNotifier) Send(ctx context.Context, msg alerts.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// MockPublisher
type MockPublisher struct {
	mu     sync.Mutex
	Events []*publisher.TriggerEvent
}

func (m *MockPublisher) Publish(event *publisher.TriggerEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()
	return nil
}
