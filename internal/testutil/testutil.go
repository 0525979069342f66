// Package testutil provides common test utilities and helpers for LaunchPipe tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/messaging"
	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// ErrMockFailure is returned by MockSurface calls configured to fail.
var ErrMockFailure = errors.New("mock surface failure")

// SentRecord is one message delivered through the MockSurface.
type SentRecord struct {
	ChannelID string
	Message   messaging.Message
}

// EditRecord is one edit performed through the MockSurface.
type EditRecord struct {
	ChannelID string
	MessageID string
	Message   messaging.Message
}

// MockSurface implements messaging.Surface and records every call.
type MockSurface struct {
	mu        sync.Mutex
	Sent      []SentRecord
	Edits     []EditRecord
	Deleted   []string
	Responses []messaging.Response
	Originals []messaging.Message
	DMs       []string

	// FailChannels makes SendMessage fail for the listed channels.
	FailChannels map[string]bool
	// FailDMs makes CreateDM fail for the listed users.
	FailDMs map[string]bool
	// FailEdits makes EditOriginal and EditMessage fail.
	FailEdits bool

	nextID int
}

// NewMockSurface creates an empty MockSurface.
func NewMockSurface() *MockSurface {
	return &MockSurface{
		FailChannels: make(map[string]bool),
		FailDMs:      make(map[string]bool),
	}
}

func (m *MockSurface) SendMessage(ctx context.Context, channelID string, msg messaging.Message) (*messaging.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChannels[channelID] {
		return nil, ErrMockFailure
	}
	m.nextID++
	m.Sent = append(m.Sent, SentRecord{ChannelID: channelID, Message: msg})
	return &messaging.SentMessage{ID: fmt.Sprintf("msg-%d", m.nextID), ChannelID: channelID}, nil
}

func (m *MockSurface) EditMessage(ctx context.Context, channelID, messageID string, msg messaging.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEdits {
		return ErrMockFailure
	}
	m.Edits = append(m.Edits, EditRecord{ChannelID: channelID, MessageID: messageID, Message: msg})
	return nil
}

func (m *MockSurface) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, messageID)
	return nil
}

func (m *MockSurface) Respond(ctx context.Context, ev *interaction.Event, resp messaging.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return nil
}

// EditOriginal returns the event's message id for component interactions and
// "orig-<event id>" for commands, like the platform does.
func (m *MockSurface) EditOriginal(ctx context.Context, ev *interaction.Event, msg messaging.Message) (*messaging.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEdits {
		return nil, ErrMockFailure
	}
	m.Originals = append(m.Originals, msg)
	id := ev.MessageID
	if id == "" {
		id = "orig-" + ev.ID
	}
	return &messaging.SentMessage{ID: id, ChannelID: ev.ChannelID}, nil
}

// CreateDM returns the channel id "dm-<user id>".
func (m *MockSurface) CreateDM(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDMs[userID] {
		return "", ErrMockFailure
	}
	m.DMs = append(m.DMs, userID)
	return "dm-" + userID, nil
}

// Acknowledge records a deferred update response.
func (m *MockSurface) Acknowledge(ctx context.Context, ev *interaction.Event) error {
	return m.Respond(ctx, ev, messaging.Response{Kind: messaging.ResponseDeferredUpdate})
}

// SentTo returns the messages delivered to channelID.
func (m *MockSurface) SentTo(channelID string) []messaging.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []messaging.Message
	for _, s := range m.Sent {
		if s.ChannelID == channelID {
			out = append(out, s.Message)
		}
	}
	return out
}

// SentCount returns the number of successfully sent messages.
func (m *MockSurface) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// OriginalCount returns the number of EditOriginal calls.
func (m *MockSurface) OriginalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Originals)
}

// LastOriginal returns the most recent EditOriginal payload.
func (m *MockSurface) LastOriginal() (messaging.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Originals) == 0 {
		return messaging.Message{}, false
	}
	return m.Originals[len(m.Originals)-1], true
}

// ResponseKinds returns the kinds of every recorded interaction response.
func (m *MockSurface) ResponseKinds() []messaging.ResponseKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]messaging.ResponseKind, 0, len(m.Responses))
	for _, r := range m.Responses {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

// MockFeed is a scripted upstream launch feed.
type MockFeed struct {
	mu      sync.Mutex
	batches [][]models.LaunchRecord
	errs    []error
	Calls   int
}

// Push queues the result of the next Upcoming call.
func (f *MockFeed) Push(records []models.LaunchRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	f.errs = append(f.errs, err)
}

// Upcoming pops the next scripted result. An empty script returns no launches.
func (f *MockFeed) Upcoming(ctx context.Context) ([]models.LaunchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if len(f.batches) == 0 {
		return nil, nil
	}
	records, err := f.batches[0], f.errs[0]
	f.batches, f.errs = f.batches[1:], f.errs[1:]
	return records, err
}

// Launch builds a LaunchRecord for tests.
func Launch(id, provider string, status models.LaunchStatus, net time.Time) models.LaunchRecord {
	return models.LaunchRecord{
		SourceID: id,
		Name:     "Launch " + id,
		Status:   status,
		NET:      net,
		Provider: provider,
		Vehicle:  "Falcon 9 Block 5",
		Payload:  "Payload " + id,
		Location: "Cape Canaveral, FL, USA",
	}
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
