package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"circles-service/internal/models"
	"circles-service/internal/session"
)

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) MessagesPage(ctx context.Context, groupID, cursor string, limit int) (session.Page, error) {
	args := m.Called(ctx, groupID, cursor, limit)
	var page session.Page
	if val := args.Get(0); val != nil {
		page = val.(session.Page)
	}
	return page, args.Error(1)
}

func (m *BackendMock) SendMessage(ctx context.Context, groupID, content string, replyToID *string, attachments []models.Attachment) error {
	args := m.Called(ctx, groupID, content, replyToID, attachments)
	return args.Error(0)
}

func (m *BackendMock) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	args := m.Called(ctx, messageID, emoji)
	return args.Error(0)
}

func (m *BackendMock) AdvanceReadCursor(ctx context.Context, groupID, messageID string) error {
	args := m.Called(ctx, groupID, messageID)
	return args.Error(0)
}

func (m *BackendMock) Members(ctx context.Context, groupID string) ([]models.Member, error) {
	args := m.Called(ctx, groupID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

func (m *BackendMock) Profiles(ctx context.Context, userIDs []string) ([]models.Profile, error) {
	args := m.Called(ctx, userIDs)
	var profiles []models.Profile
	if val := args.Get(0); val != nil {
		profiles = val.([]models.Profile)
	}
	return profiles, args.Error(1)
}

func (m *BackendMock) ReactionsFor(ctx context.Context, groupID string, messageIDs []string) ([]models.Reaction, error) {
	args := m.Called(ctx, groupID, messageIDs)
	var reactions []models.Reaction
	if val := args.Get(0); val != nil {
		reactions = val.([]models.Reaction)
	}
	return reactions, args.Error(1)
}

func (m *BackendMock) ReadsFor(ctx context.Context, groupID string, messageIDs []string) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, groupID, messageIDs)
	var receipts []models.ReadReceipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.ReadReceipt)
	}
	return receipts, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, groupID string, upload session.Upload) (models.Attachment, error) {
	args := m.Called(ctx, groupID, upload)
	var attachment models.Attachment
	if val := args.Get(0); val != nil {
		attachment = val.(models.Attachment)
	}
	return attachment, args.Error(1)
}

type IdentityMock struct {
	mock.Mock
}

func (m *IdentityMock) CurrentUser(ctx context.Context) (session.UserInfo, error) {
	args := m.Called(ctx)
	var info session.UserInfo
	if val := args.Get(0); val != nil {
		info = val.(session.UserInfo)
	}
	return info, args.Error(1)
}

// FeedMock is a scriptable feed: push events with Emit, close with Close.
type FeedMock struct {
	mock.Mock
	events chan models.GroupEvent
}

func NewFeedMock() *FeedMock {
	return &FeedMock{events: make(chan models.GroupEvent, 32)}
}

func (m *FeedMock) Events() <-chan models.GroupEvent {
	return m.events
}

// Emit pushes an event into the feed as if the server sent it.
func (m *FeedMock) Emit(event models.GroupEvent) {
	m.events <- event
}

func (m *FeedMock) SendTyping(typing bool) error {
	args := m.Called(typing)
	return args.Error(0)
}

func (m *FeedMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type FeedOpenerMock struct {
	mock.Mock
}

func (m *FeedOpenerMock) Open(ctx context.Context, groupID string) (session.Feed, error) {
	args := m.Called(ctx, groupID)
	var feed session.Feed
	if val := args.Get(0); val != nil {
		feed = val.(session.Feed)
	}
	return feed, args.Error(1)
}
