package assembly

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/store"
)

var errQueryFailed = fmt.Errorf("query failed: %w", store.ErrStorageUnavailable)

// fakeRepo implements store.Repository in memory for pipeline tests.
type fakeRepo struct {
	mu sync.Mutex

	targets    map[int64]*domain.Target
	identities map[int64][]domain.TargetIdentity
	accounts   map[int64]*domain.PlatformAccount
	styles     map[int64]*domain.StyleProfile
	dialogs    map[int64]*domain.Dialog

	byTarget   map[int64][]int64
	byNative   map[int64][]int64
	byUsername map[string][]int64

	categories []string
	candidates []store.Candidate
	tails      map[int64][]domain.Message
	history    []domain.Message

	failCandidates bool
	failTails      bool
	failCategories bool
	failHistory    bool

	resolveCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		targets:    make(map[int64]*domain.Target),
		identities: make(map[int64][]domain.TargetIdentity),
		accounts:   make(map[int64]*domain.PlatformAccount),
		styles:     make(map[int64]*domain.StyleProfile),
		dialogs:    make(map[int64]*domain.Dialog),
		byTarget:   make(map[int64][]int64),
		byNative:   make(map[int64][]int64),
		byUsername: make(map[string][]int64),
		tails:      make(map[int64][]domain.Message),
	}
}

func storageFail() error {
	return errQueryFailed
}

func (f *fakeRepo) GetTarget(_ context.Context, id int64) (*domain.Target, error) {
	return f.targets[id], nil
}

func (f *fakeRepo) ListTargetIdentities(_ context.Context, targetID int64) ([]domain.TargetIdentity, error) {
	return f.identities[targetID], nil
}

func (f *fakeRepo) GetPlatformAccount(_ context.Context, id int64) (*domain.PlatformAccount, error) {
	return f.accounts[id], nil
}

func (f *fakeRepo) GetStyleProfile(_ context.Context, targetID int64) (*domain.StyleProfile, error) {
	return f.styles[targetID], nil
}

func (f *fakeRepo) GetDialog(_ context.Context, id int64) (*domain.Dialog, error) {
	return f.dialogs[id], nil
}

func (f *fakeRepo) DialogsForTarget(_ context.Context, _ string, targetID int64) ([]int64, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	return f.byTarget[targetID], nil
}

func (f *fakeRepo) DialogsByCounterpartID(_ context.Context, _ string, nativeID int64) ([]int64, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	return f.byNative[nativeID], nil
}

func (f *fakeRepo) DialogsByCounterpartUsername(_ context.Context, _ string, username string) ([]int64, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	key := strings.ToLower(strings.TrimPrefix(username, "@"))
	return f.byUsername[key], nil
}

func (f *fakeRepo) CategoriesForDialogs(_ context.Context, _ []int64) ([]string, error) {
	if f.failCategories {
		return nil, storageFail()
	}
	return f.categories, nil
}

func (f *fakeRepo) CandidateDialogs(_ context.Context, q store.CandidateQuery) ([]store.Candidate, error) {
	if f.failCandidates {
		return nil, storageFail()
	}
	if len(q.Categories) == 0 {
		return nil, nil
	}
	out := make([]store.Candidate, 0, len(f.candidates))
	for _, c := range f.candidates {
		if excluded(c, q) {
			continue
		}
		out = append(out, c)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func excluded(c store.Candidate, q store.CandidateQuery) bool {
	for _, name := range q.ExcludeUsernames {
		if strings.EqualFold(strings.TrimPrefix(name, "@"), strings.TrimPrefix(c.DisplayName, "@")) {
			return true
		}
	}
	return false
}

func (f *fakeRepo) MessagesForDialogs(_ context.Context, _ []int64) ([]domain.Message, error) {
	if f.failHistory {
		return nil, storageFail()
	}
	return f.history, nil
}

func (f *fakeRepo) TailMessages(_ context.Context, dialogID int64, limit int) ([]domain.Message, error) {
	if f.failTails {
		return nil, storageFail()
	}
	msgs := f.tails[dialogID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeRepo) GetSessionState(_ context.Context, _ domain.ConversationKey) (*domain.SessionState, error) {
	return nil, nil
}

func (f *fakeRepo) ListSessionStates(_ context.Context) ([]domain.SessionState, error) {
	return nil, nil
}

func (f *fakeRepo) PutSessionState(_ context.Context, _ *domain.SessionState) error { return nil }

func (f *fakeRepo) DeleteSessionState(_ context.Context, _ domain.ConversationKey) error { return nil }

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }
