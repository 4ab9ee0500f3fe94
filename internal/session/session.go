package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"circles-service/internal/models"
)

const (
	// DefaultPageSize is how many messages one history page requests.
	DefaultPageSize = 30

	// PhantomWindow bounds how far apart a placeholder and its authoritative
	// message may be and still reconcile.
	PhantomWindow = 30 * time.Second
)

// Session reconciles one group's chat state: message history, realtime
// events, reactions, read receipts, member list and profiles. All state is
// guarded by a single mutex; accessors return copies.
type Session struct {
	backend  Backend
	uploader Uploader
	identity Identity
	feeds    FeedOpener

	mu         sync.Mutex
	groupID    string
	userID     string
	userEmail  string
	store      *MessageStore
	profiles   *ProfileCache
	reactions  *ReactionAggregate
	reads      *ReadAggregate
	members    []models.Member
	hasMore    bool
	nextCursor string
	online     int
	typing     map[string]struct{}
	feed       Feed
	cancel     context.CancelFunc

	// OnScrollToEnd, when set, fires after a locally sent message is appended
	// so the UI can jump to it.
	OnScrollToEnd func()

	// PageSize overrides DefaultPageSize when positive.
	PageSize int
}

// New creates a session bound to the given backend surfaces. identity may be
// nil when SetUser is called before sending.
func New(backend Backend, uploader Uploader, identity Identity, feeds FeedOpener) *Session {
	return &Session{
		backend:   backend,
		uploader:  uploader,
		identity:  identity,
		feeds:     feeds,
		store:     NewMessageStore(),
		profiles:  NewProfileCache(),
		reactions: NewReactionAggregate(),
		reads:     NewReadAggregate(),
		typing:    make(map[string]struct{}),
	}
}

// SetUser pins the acting user so sends need not resolve it remotely.
func (s *Session) SetUser(userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.userEmail = email
}

// Open switches the session to a group. Any previous subscription is torn
// down first; then the feed is opened, the newest history page loaded and
// reactions, reads, members and profiles seeded.
func (s *Session) Open(ctx context.Context, groupID string) error {
	s.mu.Lock()
	s.teardownLocked()
	s.groupID = groupID

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	feed, err := s.feeds.Open(ctx, groupID)
	if err != nil {
		cancel()
		return fmt.Errorf("open feed: %w", err)
	}

	page, err := s.backend.MessagesPage(ctx, groupID, "", s.pageSize())
	if err != nil {
		feed.Close()
		cancel()
		return fmt.Errorf("load messages: %w", err)
	}

	members, err := s.backend.Members(ctx, groupID)
	if err != nil {
		feed.Close()
		cancel()
		return fmt.Errorf("load members: %w", err)
	}

	s.mu.Lock()
	if s.groupID != groupID {
		// A concurrent Open superseded this one.
		s.mu.Unlock()
		feed.Close()
		cancel()
		return nil
	}
	s.feed = feed
	s.store.PrependPage(page.Messages)
	s.hasMore = page.HasMore
	s.nextCursor = page.NextCursor
	s.members = members
	ids := s.messageIDsLocked()
	s.mu.Unlock()

	if err := s.seedPerMessageState(ctx, groupID, ids); err != nil {
		log.Printf("session: seed group %s: %v", groupID, err)
	}
	s.fetchProfiles(ctx, s.pendingProfileIDs())

	go s.eventLoop(ctx, groupID, feed)
	return nil
}

// Close tears down the active subscription and clears all state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.groupID = ""
}

func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.feed != nil {
		s.feed.Close()
		s.feed = nil
	}
	s.store.Reset()
	s.profiles.Reset()
	s.reactions.Reset()
	s.reads.Reset()
	s.members = nil
	s.hasMore = false
	s.nextCursor = ""
	s.online = 0
	s.typing = make(map[string]struct{})
}

// LoadOlder fetches the next older page using the stored cursor. It is a
// no-op when no more history exists.
func (s *Session) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasMore || s.groupID == "" {
		s.mu.Unlock()
		return nil
	}
	groupID := s.groupID
	cursor := s.nextCursor
	s.mu.Unlock()

	page, err := s.backend.MessagesPage(ctx, groupID, cursor, s.pageSize())
	if err != nil {
		return fmt.Errorf("load older: %w", err)
	}

	s.mu.Lock()
	if s.groupID != groupID {
		s.mu.Unlock()
		return nil
	}
	s.store.PrependPage(page.Messages)
	s.hasMore = page.HasMore
	s.nextCursor = page.NextCursor
	s.mu.Unlock()

	ids := make([]string, 0, len(page.Messages))
	for _, msg := range page.Messages {
		ids = append(ids, msg.ID)
	}
	if err := s.seedPerMessageState(ctx, groupID, ids); err != nil {
		log.Printf("session: seed older page group %s: %v", groupID, err)
	}
	s.fetchProfiles(ctx, s.pendingProfileIDs())
	return nil
}

// ToggleReaction flips the acting user's reaction locally, then confirms with
// the backend. The local flip is rolled back when the call fails.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	userID, err := s.resolveUserID(ctx)
	if err != nil {
		return err
	}
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	added := !s.reactions.HasReacted(messageID, emoji, userID)
	if added {
		s.reactions.Add(messageID, emoji, userID)
	} else {
		s.reactions.Remove(messageID, emoji, userID)
	}
	s.mu.Unlock()

	if err := s.backend.ToggleReaction(ctx, messageID, emoji); err != nil {
		s.mu.Lock()
		if added {
			s.reactions.Remove(messageID, emoji, userID)
		} else {
			s.reactions.Add(messageID, emoji, userID)
		}
		s.mu.Unlock()
		return fmt.Errorf("toggle reaction: %w", err)
	}
	return nil
}

// MarkReadUpTo advances the acting user's read cursor through the given
// message. Receipts fan back in over the feed.
func (s *Session) MarkReadUpTo(ctx context.Context, messageID string) error {
	s.mu.Lock()
	groupID := s.groupID
	s.mu.Unlock()
	if groupID == "" {
		return nil
	}
	if err := s.backend.AdvanceReadCursor(ctx, groupID, messageID); err != nil {
		return fmt.Errorf("advance read cursor: %w", err)
	}
	return nil
}

// SendTyping relays the acting user's typing state over the feed.
func (s *Session) SendTyping(typing bool) error {
	s.mu.Lock()
	feed := s.feed
	s.mu.Unlock()
	if feed == nil {
		return nil
	}
	return feed.SendTyping(typing)
}

func (s *Session) eventLoop(ctx context.Context, groupID string, feed Feed) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-feed.Events():
			if !ok {
				return
			}
			if err := event.Validate(); err != nil {
				log.Printf("session: dropping event type %q: %v", event.Type, err)
				continue
			}
			s.handleEvent(ctx, groupID, event)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, groupID string, event models.GroupEvent) {
	s.mu.Lock()
	if s.groupID != groupID {
		s.mu.Unlock()
		return
	}

	switch event.Type {
	case models.EventMessage:
		msg := *event.Message
		if msg.GroupID != "" && msg.GroupID != groupID {
			break
		}
		s.store.RemoveMatchingPhantom(msg, PhantomWindow)
		s.store.Insert(msg)
		s.mu.Unlock()
		// off the loop goroutine so a slow profile fetch cannot stall the
		// events behind it
		go s.fetchProfiles(ctx, s.pendingProfileIDs())
		return

	case models.EventMessageDeleted:
		s.store.Remove(event.MessageID)
		s.reactions.DropMessage(event.MessageID)
		s.reads.DropMessage(event.MessageID)

	case models.EventReactionAdded:
		r := event.Reaction
		s.reactions.Add(r.MessageID, r.Emoji, r.UserID)

	case models.EventReactionRemoved:
		r := event.Reaction
		s.reactions.Remove(r.MessageID, r.Emoji, r.UserID)

	case models.EventReadAdded:
		receipt := event.Receipt
		authorID := ""
		if msg, ok := s.store.Get(receipt.MessageID); ok {
			authorID = msg.AuthorID
		}
		s.reads.AddReceipt(receipt.MessageID, receipt.UserID, authorID)

	case models.EventMemberChanged:
		s.mu.Unlock()
		go s.reloadMembers(ctx, groupID)
		return

	case models.EventProfileChanged:
		s.profiles.Observe(*event.Profile)

	case models.EventPresence:
		s.online = event.Online

	case models.EventTyping:
		if event.UserID == s.userID {
			break
		}
		if event.Typing {
			s.typing[event.UserID] = struct{}{}
		} else {
			delete(s.typing, event.UserID)
		}
	}
	s.mu.Unlock()
}

// reloadMembers replaces the member list wholesale. Membership deltas are not
// trusted from the event payload.
func (s *Session) reloadMembers(ctx context.Context, groupID string) {
	members, err := s.backend.Members(ctx, groupID)
	if err != nil {
		log.Printf("session: reload members group %s: %v", groupID, err)
		return
	}
	s.mu.Lock()
	if s.groupID == groupID {
		s.members = members
	}
	s.mu.Unlock()
	s.fetchProfiles(ctx, s.pendingProfileIDs())
}

// seedPerMessageState bulk-loads reactions and read receipts for a batch of
// message ids in two queries.
func (s *Session) seedPerMessageState(ctx context.Context, groupID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	reactions, err := s.backend.ReactionsFor(ctx, groupID, messageIDs)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	reads, err := s.backend.ReadsFor(ctx, groupID, messageIDs)
	if err != nil {
		return fmt.Errorf("load reads: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupID != groupID {
		return nil
	}
	s.reactions.Seed(reactions)
	for _, receipt := range reads {
		authorID := ""
		if msg, ok := s.store.Get(receipt.MessageID); ok {
			authorID = msg.AuthorID
		}
		s.reads.AddReceipt(receipt.MessageID, receipt.UserID, authorID)
	}
	return nil
}

// pendingProfileIDs collects user ids referenced by loaded messages and
// members that the cache has not seen yet.
func (s *Session) pendingProfileIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, msg := range s.store.Messages() {
		ids = append(ids, msg.AuthorID)
	}
	for _, member := range s.members {
		ids = append(ids, member.UserID)
	}
	return s.profiles.Missing(ids)
}

// fetchProfiles resolves uncached profiles in one batch. The version stamp is
// taken before the fetch so a slow response cannot clobber newer data.
func (s *Session) fetchProfiles(ctx context.Context, userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	s.mu.Lock()
	version := s.profiles.NextVersion()
	s.mu.Unlock()

	profiles, err := s.backend.Profiles(ctx, userIDs)
	if err != nil {
		log.Printf("session: fetch profiles: %v", err)
		return
	}

	s.mu.Lock()
	for _, profile := range profiles {
		s.profiles.ObserveAt(profile, version)
	}
	s.mu.Unlock()
}

func (s *Session) resolveUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	if userID != "" || s.identity == nil {
		return userID, nil
	}
	info, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	s.mu.Lock()
	s.userID = info.UserID
	if s.userEmail == "" {
		s.userEmail = info.Email
	}
	s.mu.Unlock()
	return info.UserID, nil
}

func (s *Session) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return DefaultPageSize
}

func (s *Session) messageIDsLocked() []string {
	msgs := s.store.Messages()
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
	}
	return ids
}

// Messages returns the loaded history in display order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Messages()
}

// HasMore reports whether older history remains unloaded.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Members returns the current member list.
func (s *Session) Members() []models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Member, len(s.members))
	copy(out, s.members)
	return out
}

// OnlineCount reports the last presence count seen on the feed.
func (s *Session) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// TypingUsers returns ids of members currently typing, excluding the acting
// user.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.typing {
		out = append(out, id)
	}
	return out
}

// SeenBy reports how many other members have read the message.
func (s *Session) SeenBy(messageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads.SeenBy(messageID)
}

// Reactions returns the emoji to reactor-set map for a message.
func (s *Session) Reactions(messageID string) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string)
	for _, emoji := range s.reactions.Emojis(messageID) {
		out[emoji] = s.reactions.Reactors(messageID, emoji)
	}
	return out
}

// HasReacted reports whether the acting user reacted with the emoji.
func (s *Session) HasReacted(messageID, emoji string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactions.HasReacted(messageID, emoji, s.userID)
}

// DisplayName resolves a user id to a human label. The acting user falls back
// to their email local part, then "You"; others fall back to the member list,
// then "Member".
func (s *Session) DisplayName(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile, ok := s.profiles.Get(userID); ok && profile.DisplayName != "" {
		return profile.DisplayName
	}
	if userID == s.userID {
		if at := strings.IndexByte(s.userEmail, '@'); at > 0 {
			return s.userEmail[:at]
		}
		return "You"
	}
	for _, member := range s.members {
		if member.UserID == userID && member.DisplayName != "" {
			return member.DisplayName
		}
	}
	return "Member"
}

// AvatarURL resolves a user id to an avatar, empty when unknown.
func (s *Session) AvatarURL(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile, ok := s.profiles.Get(userID); ok {
		return profile.AvatarURL
	}
	for _, member := range s.members {
		if member.UserID == userID {
			return member.AvatarURL
		}
	}
	return ""
}
