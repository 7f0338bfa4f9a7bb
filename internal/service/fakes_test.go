package service

import (
	"context"
	"sync"
	"time"

	"deltauid-backend-go/internal/client"
	"deltauid-backend-go/internal/model"
)

type fakeStrategy struct {
	platform model.Platform
	policy   client.TimeoutPolicy

	challengeErr error
	polls        []client.PollResult
	pollErr      error
	exchangeErr  error
	tokens       client.TokenPair
	bindErr      error
	infoErr      error
	player       *model.PlayerInfo

	pollCalls int
	exchanged string
	bindCalls int
	infoCalls int
	onPoll    func(n int)
}

func newFakeStrategy(platform model.Platform) *fakeStrategy {
	return &fakeStrategy{
		platform: platform,
		policy:   client.TimeoutPolicy{MaxAttempts: client.DefaultMaxAttempts},
		tokens:   client.TokenPair{AccessToken: "at-1", OpenID: "oid-1"},
		player:   &model.PlayerInfo{CharacName: "干员", Money: 1200},
	}
}

func (f *fakeStrategy) Platform() model.Platform            { return f.platform }
func (f *fakeStrategy) TimeoutPolicy() client.TimeoutPolicy { return f.policy }
func (f *fakeStrategy) ScanPrompt() string                  { return "scan-" + string(f.platform) }

func (f *fakeStrategy) GetChallenge(ctx context.Context) (*client.Challenge, error) {
	if f.challengeErr != nil {
		return nil, f.challengeErr
	}
	return &client.Challenge{QRImage: []byte("qr"), CreatedAt: time.Now()}, nil
}

// Poll 依次返回 polls，用尽后一直返回最后一项（为空则等待中）
func (f *fakeStrategy) Poll(ctx context.Context, challenge *client.Challenge) (client.PollResult, error) {
	f.pollCalls++
	if f.onPoll != nil {
		f.onPoll(f.pollCalls)
	}
	if f.pollErr != nil {
		return client.PollResult{}, f.pollErr
	}
	if len(f.polls) == 0 {
		return client.PollResult{Status: client.PollPending}, nil
	}
	i := f.pollCalls - 1
	if i >= len(f.polls) {
		i = len(f.polls) - 1
	}
	return f.polls[i], nil
}

func (f *fakeStrategy) Exchange(ctx context.Context, payload string) (*client.TokenPair, error) {
	f.exchanged = payload
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	tokens := f.tokens
	return &tokens, nil
}

func (f *fakeStrategy) Bind(ctx context.Context, tokens client.TokenPair) error {
	f.bindCalls++
	return f.bindErr
}

func (f *fakeStrategy) FetchPlayerInfo(ctx context.Context, tokens client.TokenPair) (*model.PlayerInfo, error) {
	f.infoCalls++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.player, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	texts    []string
	captions []string
	images   [][]byte
}

func (n *recordingNotifier) SendText(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func (n *recordingNotifier) SendImage(_ context.Context, caption string, img []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.captions = append(n.captions, caption)
	n.images = append(n.images, img)
}

type memoryStore struct {
	mu      sync.Mutex
	creds   map[string]*model.Credential
	saveErr error
	saves   int
	checked map[int64]bool
	nextID  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{creds: map[string]*model.Credential{}, checked: map[int64]bool{}}
}

func (m *memoryStore) Save(_ context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	key := cred.BotID + ":" + cred.UserID
	stored := *cred
	if old, ok := m.creds[key]; ok {
		stored.ID = old.ID
	} else {
		m.nextID++
		stored.ID = m.nextID
	}
	m.creds[key] = &stored
	return nil
}

func (m *memoryStore) Load(_ context.Context, botID, userID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[botID+":"+userID]
	if !ok {
		return nil, nil
	}
	c := *cred
	return &c, nil
}

func (m *memoryStore) GetAll(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Credential, 0, len(m.creds))
	for id := int64(1); id <= m.nextID; id++ {
		for _, c := range m.creds {
			if c.ID == id {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (m *memoryStore) UpdateCheckStatus(_ context.Context, id int64, accessToken string, valid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.ID == id && c.AccessToken == accessToken {
			m.checked[id] = valid
		}
	}
	return nil
}

type countingSleeper struct {
	calls  int
	durs   []time.Duration
	before func(n int)
}

func (s *countingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.calls++
	s.durs = append(s.durs, d)
	if s.before != nil {
		s.before(s.calls)
	}
	return ctx.Err()
}
