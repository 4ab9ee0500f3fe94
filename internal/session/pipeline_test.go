package session_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"circles-service/internal/mocks"
	"circles-service/internal/models"
	"circles-service/internal/session"
)

func TestSendMessageAppendsPhantomAndScrolls(t *testing.T) {
	backend, _, opener, feed, s := newFixture()
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)
	backend.On("SendMessage", mock.Anything, "g1", "hi", (*string)(nil), []models.Attachment{}).Return(nil).Once()

	scrolled := false
	s.OnScrollToEnd = func() { scrolled = true }

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	require.NoError(t, s.SendMessage(context.Background(), "hi", nil, nil))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsPhantom())
	assert.Equal(t, "me", msgs[0].AuthorID)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.True(t, scrolled)
	backend.AssertExpectations(t)
}

func TestSendMessageUploadsSequentially(t *testing.T) {
	backend, uploader, opener, feed, s := newFixture()
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)

	att1 := models.Attachment{Bucket: "chat-uploads", Path: "g1/a.png", Name: "a.png"}
	att2 := models.Attachment{Bucket: "chat-uploads", Path: "g1/b.png", Name: "b.png"}
	uploader.On("Upload", mock.Anything, "g1", mock.MatchedBy(func(u session.Upload) bool { return u.Name == "a.png" })).Return(att1, nil).Once()
	uploader.On("Upload", mock.Anything, "g1", mock.MatchedBy(func(u session.Upload) bool { return u.Name == "b.png" })).Return(att2, nil).Once()
	backend.On("SendMessage", mock.Anything, "g1", "pics", (*string)(nil), []models.Attachment{att1, att2}).Return(nil).Once()

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	uploads := []session.Upload{
		{Name: "a.png", ContentType: "image/png", Content: strings.NewReader("a")},
		{Name: "b.png", ContentType: "image/png", Content: strings.NewReader("b")},
	}
	require.NoError(t, s.SendMessage(context.Background(), "pics", nil, uploads))
	uploader.AssertExpectations(t)
	backend.AssertExpectations(t)
}

func TestSendMessageUploadFailureRemovesPhantom(t *testing.T) {
	backend, uploader, opener, feed, s := newFixture()
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)
	uploader.On("Upload", mock.Anything, "g1", mock.Anything).Return(models.Attachment{}, fmt.Errorf("disk full")).Once()

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	uploads := []session.Upload{{Name: "a.png", Content: strings.NewReader("a")}}
	require.Error(t, s.SendMessage(context.Background(), "pic", nil, uploads))

	assert.Empty(t, s.Messages())
	backend.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageBackendFailureRemovesPhantom(t *testing.T) {
	backend, _, opener, feed, s := newFixture()
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)
	backend.On("SendMessage", mock.Anything, "g1", "hi", (*string)(nil), []models.Attachment{}).Return(fmt.Errorf("boom")).Once()

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	require.Error(t, s.SendMessage(context.Background(), "hi", nil, nil))
	assert.Empty(t, s.Messages())
	backend.AssertExpectations(t)
}

func TestSendMessageEmptyIsNoop(t *testing.T) {
	backend, _, opener, feed, s := newFixture()
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	require.NoError(t, s.SendMessage(context.Background(), "", nil, nil))
	assert.Empty(t, s.Messages())
	backend.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageWithoutIdentityAborts(t *testing.T) {
	backend := new(mocks.BackendMock)
	opener := new(mocks.FeedOpenerMock)
	feed := mocks.NewFeedMock()
	feed.On("Close").Return(nil).Maybe()
	s := session.New(backend, nil, nil, opener)
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	require.NoError(t, s.SendMessage(context.Background(), "hi", nil, nil))
	assert.Empty(t, s.Messages())
	backend.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageResolvesIdentityLazily(t *testing.T) {
	backend := new(mocks.BackendMock)
	opener := new(mocks.FeedOpenerMock)
	identity := new(mocks.IdentityMock)
	feed := mocks.NewFeedMock()
	feed.On("Close").Return(nil).Maybe()
	identity.On("CurrentUser", mock.Anything).Return(session.UserInfo{UserID: "me", Email: "me@example.com"}, nil).Once()

	s := session.New(backend, nil, identity, opener)
	expectOpen(backend, opener, feed, "g1", session.Page{}, nil)
	backend.On("SendMessage", mock.Anything, "g1", "hi", (*string)(nil), []models.Attachment{}).Return(nil).Once()

	require.NoError(t, s.Open(context.Background(), "g1"))
	defer s.Close()

	require.NoError(t, s.SendMessage(context.Background(), "hi", nil, nil))
	// resolved identity is cached; a second send does not consult it again
	backend.On("SendMessage", mock.Anything, "g1", "again", (*string)(nil), []models.Attachment{}).Return(nil).Once()
	require.NoError(t, s.SendMessage(context.Background(), "again", nil, nil))

	identity.AssertExpectations(t)
	backend.AssertExpectations(t)
}
