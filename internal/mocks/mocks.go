package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"circles-service/internal/models"
	"circles-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) ListGroups(ctx context.Context) ([]models.Group, error) {
	args := m.Called(ctx)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroupByJoinCode(ctx context.Context, code string) (models.Group, error) {
	args := m.Called(ctx, code)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID, userID, role string) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	args := m.Called(ctx, groupID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, groupID, authorID, content string, replyToID *string, attachments []models.Attachment) (models.Message, error) {
	args := m.Called(ctx, groupID, authorID, content, replyToID, attachments)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, groupID string, before *repositories.Cursor, limit int) ([]models.Message, bool, error) {
	args := m.Called(ctx, groupID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID, authorID string) error {
	args := m.Called(ctx, messageID, authorID)
	return args.Error(0)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) Toggle(ctx context.Context, messageID, userID, emoji string) (models.Reaction, bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Bool(1), args.Error(2)
}

func (m *ReactionRepositoryMock) ListForMessages(ctx context.Context, groupID string, messageIDs []string) ([]models.Reaction, error) {
	args := m.Called(ctx, groupID, messageIDs)
	var reactions []models.Reaction
	if val := args.Get(0); val != nil {
		reactions = val.([]models.Reaction)
	}
	return reactions, args.Error(1)
}

type ReadRepositoryMock struct {
	mock.Mock
}

func (m *ReadRepositoryMock) AdvanceCursor(ctx context.Context, groupID, userID, upToMessageID string) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, groupID, userID, upToMessageID)
	var receipts []models.ReadReceipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.ReadReceipt)
	}
	return receipts, args.Error(1)
}

func (m *ReadRepositoryMock) ListForMessages(ctx context.Context, groupID string, messageIDs []string) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, groupID, messageIDs)
	var receipts []models.ReadReceipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.ReadReceipt)
	}
	return receipts, args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) GetProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error) {
	args := m.Called(ctx, userIDs)
	var profiles []models.Profile
	if val := args.Get(0); val != nil {
		profiles = val.([]models.Profile)
	}
	return profiles, args.Error(1)
}

func (m *ProfileRepositoryMock) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	args := m.Called(ctx, profile)
	var out models.Profile
	if val := args.Get(0); val != nil {
		out = val.(models.Profile)
	}
	return out, args.Error(1)
}

type FriendRepositoryMock struct {
	mock.Mock
}

func (m *FriendRepositoryMock) CreateRequest(ctx context.Context, fromUserID, toUserID string) (models.FriendRequest, error) {
	args := m.Called(ctx, fromUserID, toUserID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendRepositoryMock) RespondRequest(ctx context.Context, requestID, toUserID, status string) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID, toUserID, status)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendRepositoryMock) ListRequestsForUser(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID)
	var reqs []models.FriendRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.FriendRequest)
	}
	return reqs, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type RatingRepositoryMock struct {
	mock.Mock
}

func (m *RatingRepositoryMock) SubmitRating(ctx context.Context, raterID, ratedID string, score int) (models.Rating, error) {
	args := m.Called(ctx, raterID, ratedID, score)
	var rating models.Rating
	if val := args.Get(0); val != nil {
		rating = val.(models.Rating)
	}
	return rating, args.Error(1)
}
