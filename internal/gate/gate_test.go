package gate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"membergate/entity"
)

// errNoDm mimics the platform refusing a DM to a user who never opened a
// private chat with the bot.
var errNoDm = errors.New("forbidden: bot can't initiate conversation with a user")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pendingKey struct {
	chatId int64
	userId int64
}

// fakeStore is an in-memory Store recording every write.
type fakeStore struct {
	mu sync.Mutex

	chats     map[int64]entity.Chat
	seen      map[int64]bool
	users     map[int64]*entity.User
	pending   map[pendingKey]*entity.PendingVerification
	targets   map[int64][]*entity.RequiredTarget
	campaigns []*entity.CampaignLink
	joins     []*entity.CampaignJoin
	events    []*entity.MemberEvent
	dayJoins  map[string]int
	dayLeaves map[string]int
	index     map[pendingKey]bool

	failTargets bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:     make(map[int64]entity.Chat),
		seen:      make(map[int64]bool),
		users:     make(map[int64]*entity.User),
		pending:   make(map[pendingKey]*entity.PendingVerification),
		targets:   make(map[int64][]*entity.RequiredTarget),
		dayJoins:  make(map[string]int),
		dayLeaves: make(map[string]int),
		index:     make(map[pendingKey]bool),
	}
}

func (s *fakeStore) EnsureChat(chat entity.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.TelegramId] = chat
	return nil
}

func (s *fakeStore) MarkMemberUpdatesSeen(chatId int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[chatId] = true
	return nil
}

func (s *fakeStore) MemberUpdatesSeen(chatId int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[chatId], nil
}

func (s *fakeStore) GetUser(userId int64) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userId], nil
}

func (s *fakeStore) UpsertUser(user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.TelegramId] = user
	return nil
}

func (s *fakeStore) SetUserPhone(userId int64, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userId]
	if !ok {
		user = &entity.User{TelegramId: userId}
		s.users[userId] = user
	}
	user.Phone = phone
	return nil
}

func (s *fakeStore) UpsertPending(chatId, userId int64, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pendingKey{chatId, userId}] = &entity.PendingVerification{
		ChatId:   chatId,
		UserId:   userId,
		Deadline: deadline,
	}
	return nil
}

func (s *fakeStore) GetPending(chatId, userId int64) (*entity.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[pendingKey{chatId, userId}]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (s *fakeStore) MarkVerified(userId int64, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chats []int64
	for key, p := range s.pending {
		if key.userId != userId || p.Verified || p.Deadline.Before(now) {
			continue
		}
		p.Verified = true
		chats = append(chats, key.chatId)
	}
	return chats, nil
}

func (s *fakeStore) ListTargets(chatId int64) ([]*entity.RequiredTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTargets {
		return nil, fmt.Errorf("store unavailable")
	}
	return s.targets[chatId], nil
}

func (s *fakeStore) FindCampaignExact(chatId int64, inviteLink string) (*entity.CampaignLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.campaigns {
		if link.ChatId == chatId && link.InviteLink == inviteLink {
			return link, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindCampaignByCode(chatId int64, code string) (*entity.CampaignLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.campaigns {
		if link.ChatId == chatId && ExtractInviteCode(link.InviteLink) == code {
			return link, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveCampaignJoin(join *entity.CampaignJoin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, join)
	return nil
}

func (s *fakeStore) IncJoin(chatId int64, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayJoins[fmt.Sprintf("%d/%s", chatId, day)]++
	return nil
}

func (s *fakeStore) IncLeave(chatId int64, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayLeaves[fmt.Sprintf("%d/%s", chatId, day)]++
	return nil
}

func (s *fakeStore) RecordMemberEvent(ev *entity.MemberEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) UpsertChatUserIndex(chatId, userId int64, isMember bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[pendingKey{chatId, userId}] = isMember
	return nil
}

type sentMessage struct {
	to      int64
	text    string
	actions []Action
}

type restriction struct {
	chatId  int64
	userId  int64
	allowed bool
}

// fakePlatform records every requested side effect and resolves
// membership from a canned status map keyed by target reference.
type fakePlatform struct {
	mu sync.Mutex

	statuses  map[string]entity.MemberStatus
	statusErr error
	directErr error

	restricted []restriction
	banned     []pendingKey
	direct     []sentMessage
	posted     []sentMessage
	deleted    []pendingKey
	approved   []pendingKey
	declined   []pendingKey

	nextMsgId int64
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{statuses: make(map[string]entity.MemberStatus)}
}

func (p *fakePlatform) MemberStatus(chatRef string, _ int64) (entity.MemberStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return entity.StatusOther, p.statusErr
	}
	status, ok := p.statuses[chatRef]
	if !ok {
		return entity.StatusLeft, nil
	}
	return status, nil
}

func (p *fakePlatform) RestrictMessaging(chatId, userId int64, allowed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restricted = append(p.restricted, restriction{chatId, userId, allowed})
	return nil
}

func (p *fakePlatform) BanUser(chatId, userId int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banned = append(p.banned, pendingKey{chatId, userId})
	return nil
}

func (p *fakePlatform) SendDirect(userId int64, text string, actions []Action) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.directErr != nil {
		return 0, p.directErr
	}
	p.nextMsgId++
	p.direct = append(p.direct, sentMessage{userId, text, actions})
	return p.nextMsgId, nil
}

func (p *fakePlatform) SendChat(chatId int64, text string, actions []Action) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMsgId++
	p.posted = append(p.posted, sentMessage{chatId, text, actions})
	return p.nextMsgId, nil
}

func (p *fakePlatform) DeleteMessage(chatId, messageId int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, pendingKey{chatId, messageId})
	return nil
}

func (p *fakePlatform) ApproveJoinRequest(chatId, userId int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approved = append(p.approved, pendingKey{chatId, userId})
	return nil
}

func (p *fakePlatform) DeclineJoinRequest(chatId, userId int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declined = append(p.declined, pendingKey{chatId, userId})
	return nil
}

func (p *fakePlatform) DeepLink(payload string) string {
	return "https://t.me/gatebot?start=" + payload
}

func (p *fakePlatform) restrictions() []restriction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]restriction, len(p.restricted))
	copy(out, p.restricted)
	return out
}

func (p *fakePlatform) bans() []pendingKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pendingKey, len(p.banned))
	copy(out, p.banned)
	return out
}

// manualTimers collects deferred callbacks instead of running them, so
// tests decide when a timer fires.
type manualTimers struct {
	mu     sync.Mutex
	queued []func()
}

func (m *manualTimers) after(_ time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, f)
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	queued := m.queued
	m.queued = nil
	m.mu.Unlock()
	for _, f := range queued {
		f()
	}
}
