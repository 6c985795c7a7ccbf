package vote

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/post"
	"poll-engine/internal/domain/user"
	"poll-engine/internal/platform/clock"
)

// memoryStore backs both the poll and vote repositories so cascade
// deletes and tally updates can be observed from one place.
type memoryStore struct {
	mu      sync.Mutex
	polls   map[uuid.UUID]*poll.Poll
	entries map[uuid.UUID]map[uuid.UUID]*Entry
	posts   map[uuid.UUID]*post.Post
	users   map[uuid.UUID]user.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		polls:   make(map[uuid.UUID]*poll.Poll),
		entries: make(map[uuid.UUID]map[uuid.UUID]*Entry),
		posts:   make(map[uuid.UUID]*post.Post),
		users:   make(map[uuid.UUID]user.User),
	}
}

func clonePoll(p *poll.Poll) *poll.Poll {
	cp := *p
	cp.Options = append([]poll.Option(nil), p.Options...)
	cp.Results = make(map[string]int64, len(p.Results))
	for k, v := range p.Results {
		cp.Results[k] = v
	}
	return &cp
}

func cloneEntry(e *Entry) *Entry {
	cp := *e
	return &cp
}

func (m *memoryStore) Create(_ context.Context, p *poll.Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.polls {
		if existing.PostID == p.PostID {
			return poll.ErrPollExists
		}
	}
	m.polls[p.ID] = clonePoll(p)
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*poll.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	return clonePoll(p), nil
}

func (m *memoryStore) GetByPost(_ context.Context, postID uuid.UUID) (*poll.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.polls {
		if p.PostID == postID {
			return clonePoll(p), nil
		}
	}
	return nil, poll.ErrPollNotFound
}

func (m *memoryStore) List(_ context.Context, f poll.ListFilter) ([]poll.Poll, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []poll.Poll
	for _, p := range m.polls {
		if f.PostID != nil && p.PostID != *f.PostID {
			continue
		}
		if f.IsActive != nil && p.IsActive != *f.IsActive {
			continue
		}
		out = append(out, *clonePoll(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	start := (f.Page - 1) * f.Limit
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (m *memoryStore) Update(_ context.Context, p *poll.Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[p.ID]; !ok {
		return poll.ErrPollNotFound
	}
	m.polls[p.ID] = clonePoll(p)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[id]; !ok {
		return poll.ErrPollNotFound
	}
	delete(m.polls, id)
	delete(m.entries, id)
	return nil
}

func (m *memoryStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.polls {
		if p.IsActive && p.Expired(now) {
			p.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) GetByPollAndVoter(_ context.Context, pollID, voterID uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[pollID][voterID]; ok {
		return cloneEntry(e), nil
	}
	return nil, ErrEntryNotFound
}

func (m *memoryStore) Insert(_ context.Context, e *Entry) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[e.PollID]
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	if _, dup := m.entries[e.PollID][e.VoterID]; dup {
		return nil, ErrDuplicateEntry
	}
	if m.entries[e.PollID] == nil {
		m.entries[e.PollID] = make(map[uuid.UUID]*Entry)
	}
	m.entries[e.PollID][e.VoterID] = cloneEntry(e)
	p.Results[e.OptionID]++
	return p.Tally(), nil
}

func (m *memoryStore) UpdateChoice(_ context.Context, e *Entry, newOptionID string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[e.PollID]
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	stored, ok := m.entries[e.PollID][e.VoterID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	if p.Results[stored.OptionID] > 0 {
		p.Results[stored.OptionID]--
	}
	p.Results[newOptionID]++
	stored.OptionID = newOptionID
	stored.ChangeCount++
	e.OptionID = newOptionID
	e.ChangeCount++
	return p.Tally(), nil
}

func (m *memoryStore) ListByPoll(_ context.Context, pollID uuid.UUID) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries[pollID] {
		out = append(out, *cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstVotedAt.Before(out[j].FirstVotedAt) })
	return out, nil
}

func (m *memoryStore) CountByPoll(_ context.Context, pollID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries[pollID])), nil
}

func (m *memoryStore) RecomputeTally(_ context.Context, pollID uuid.UUID) (map[string]int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[pollID]
	if !ok {
		return nil, false, poll.ErrPollNotFound
	}
	fresh := make(map[string]int64, len(p.Options))
	for _, e := range m.entries[pollID] {
		if _, valid := p.Option(e.OptionID); valid {
			fresh[e.OptionID]++
		}
	}
	repaired := false
	for _, o := range p.Options {
		if p.Results[o.ID] != fresh[o.ID] {
			repaired = true
		}
	}
	if repaired {
		p.Results = fresh
	}
	return p.Tally(), repaired, nil
}

func (m *memoryStore) GetPostByID(_ context.Context, id uuid.UUID) (*post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, post.ErrPostNotFound
}

type postLookup struct{ store *memoryStore }

func (l postLookup) GetByID(ctx context.Context, id uuid.UUID) (*post.Post, error) {
	return l.store.GetPostByID(ctx, id)
}

type userLookup struct{ store *memoryStore }

func (l userLookup) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if u, ok := l.store.users[id]; ok {
		return &u, nil
	}
	return nil, user.ErrUserNotFound
}

func (l userLookup) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]user.User, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	out := make(map[uuid.UUID]user.User, len(ids))
	for _, id := range ids {
		if u, ok := l.store.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type testEnv struct {
	store    *memoryStore
	clock    *clock.Fixed
	polls    *poll.Service
	votes    *Service
	pollID   uuid.UUID
	postID   uuid.UUID
	authorID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemoryStore()
	clk := &clock.Fixed{T: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}

	authorID := uuid.New()
	store.users[authorID] = user.User{ID: authorID, Username: "author", Email: "author@example.com", Role: user.RoleUser}

	postID := uuid.New()
	store.posts[postID] = &post.Post{ID: postID, Title: "Color survey", Slug: "color-survey", AuthorID: authorID}

	pollID := uuid.New()
	store.polls[pollID] = &poll.Poll{
		ID:       pollID,
		PostID:   postID,
		Question: "Favorite color?",
		Options: []poll.Option{
			{ID: "red", Text: "Red"},
			{ID: "blue", Text: "Blue"},
			{ID: "green", Text: "Green"},
		},
		Results:   make(map[string]int64),
		IsActive:  true,
		CreatedAt: clk.T,
		UpdatedAt: clk.T,
	}

	pollSvc := poll.NewService(store, postLookup{store}, clk)
	voteSvc := NewService(store, pollSvc, postLookup{store}, userLookup{store}, clk, PolicyDefaults{
		MaxChanges:          2,
		ChangeWindowMinutes: 5,
	})

	return &testEnv{
		store:    store,
		clock:    clk,
		polls:    pollSvc,
		votes:    voteSvc,
		pollID:   pollID,
		postID:   postID,
		authorID: authorID,
	}
}

func (env *testEnv) addVoter(name string) uuid.UUID {
	id := uuid.New()
	env.store.mu.Lock()
	env.store.users[id] = user.User{ID: id, Username: name, Email: name + "@example.com", Role: user.RoleUser}
	env.store.mu.Unlock()
	return id
}

// checkTallyInvariant asserts the cached tally sums to the ledger size.
func checkTallyInvariant(t *testing.T, env *testEnv) {
	t.Helper()
	p, err := env.store.GetByID(context.Background(), env.pollID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	n, _ := env.store.CountByPoll(context.Background(), env.pollID)
	if p.TotalVotes() != n {
		t.Fatalf("tally sums to %d but ledger has %d entries", p.TotalVotes(), n)
	}
}

func TestFirstVote(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")

	res, err := env.votes.Vote(context.Background(), env.pollID, "red", voter)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}

	if res.Results["red"] != 1 || res.Results["blue"] != 0 || res.Results["green"] != 0 {
		t.Fatalf("unexpected tally %v", res.Results)
	}
	if res.TotalVotes != 1 {
		t.Fatalf("expected 1 total vote, got %d", res.TotalVotes)
	}
	if res.UserVote != "red" {
		t.Fatalf("expected userVote red, got %q", res.UserVote)
	}
	if res.TimeRemainingMinutes != 5 || res.ChangesRemaining != 2 || !res.CanChangeAgain {
		t.Fatalf("unexpected change eligibility: %+v", res)
	}
	if res.Changed {
		t.Fatalf("first vote should not be reported as a change")
	}
	checkTallyInvariant(t, env)
}

func TestChangeVoteMovesTally(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")

	if _, err := env.votes.Vote(context.Background(), env.pollID, "red", voter); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	env.clock.Advance(2 * time.Minute)

	res, err := env.votes.Vote(context.Background(), env.pollID, "blue", voter)
	if err != nil {
		t.Fatalf("change vote: %v", err)
	}

	if res.Results["red"] != 0 || res.Results["blue"] != 1 {
		t.Fatalf("tally did not move with the change: %v", res.Results)
	}
	if res.TotalVotes != 1 {
		t.Fatalf("change must not grow the total, got %d", res.TotalVotes)
	}
	if res.UserVote != "blue" {
		t.Fatalf("expected userVote blue, got %q", res.UserVote)
	}
	if res.ChangesRemaining != 1 {
		t.Fatalf("expected 1 change remaining, got %d", res.ChangesRemaining)
	}
	if res.TimeRemainingMinutes != 3 {
		t.Fatalf("expected 3 minutes remaining, got %d", res.TimeRemainingMinutes)
	}
	if !res.Changed {
		t.Fatalf("expected change to be reported")
	}
	checkTallyInvariant(t, env)
}

func TestSameOptionRevoteIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")

	if _, err := env.votes.Vote(context.Background(), env.pollID, "red", voter); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	env.clock.Advance(time.Minute)

	res, err := env.votes.Vote(context.Background(), env.pollID, "red", voter)
	if err != nil {
		t.Fatalf("re-vote: %v", err)
	}

	if res.Results["red"] != 1 || res.TotalVotes != 1 {
		t.Fatalf("re-vote mutated the tally: %v", res.Results)
	}
	if res.ChangesRemaining != 2 {
		t.Fatalf("re-vote consumed a change: %d remaining", res.ChangesRemaining)
	}
	if res.Changed {
		t.Fatalf("re-vote should not be reported as a change")
	}

	e, err := env.store.GetByPollAndVoter(context.Background(), env.pollID, voter)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if e.ChangeCount != 0 {
		t.Fatalf("re-vote bumped change count to %d", e.ChangeCount)
	}
}

func TestChangeLimitReached(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	for _, opt := range []string{"red", "blue", "green"} {
		if _, err := env.votes.Vote(ctx, env.pollID, opt, voter); err != nil {
			t.Fatalf("vote %s: %v", opt, err)
		}
	}

	_, err := env.votes.Vote(ctx, env.pollID, "red", voter)
	if !errors.Is(err, ErrChangeLimitReached) {
		t.Fatalf("expected change limit error, got %v", err)
	}

	// The failed change must leave the ledger and tally untouched.
	e, _ := env.store.GetByPollAndVoter(ctx, env.pollID, voter)
	if e.OptionID != "green" || e.ChangeCount != 2 {
		t.Fatalf("denied change mutated the entry: %+v", e)
	}
	checkTallyInvariant(t, env)

	rep, err := env.votes.Results(ctx, env.pollID, &voter)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if rep.CanChangeVote || rep.ChangesRemaining != 0 {
		t.Fatalf("results still report change eligibility: %+v", rep)
	}
}

func TestChangeWindowExpired(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	if _, err := env.votes.Vote(ctx, env.pollID, "red", voter); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	env.clock.Advance(5*time.Minute + time.Second)

	_, err := env.votes.Vote(ctx, env.pollID, "blue", voter)
	if !errors.Is(err, ErrChangeWindowExpired) {
		t.Fatalf("expected window expired error, got %v", err)
	}
}

func TestPolicyParamsFrozenAtFirstVote(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	if _, err := env.votes.Vote(ctx, env.pollID, "red", voter); err != nil {
		t.Fatalf("first vote: %v", err)
	}

	// A service carrying looser defaults still enforces the budget the
	// entry was created with.
	loose := NewService(env.store, env.polls, postLookup{env.store}, userLookup{env.store}, env.clock, PolicyDefaults{
		MaxChanges:          10,
		ChangeWindowMinutes: 60,
	})
	env.clock.Advance(10 * time.Minute)

	_, err := loose.Vote(ctx, env.pollID, "blue", voter)
	if !errors.Is(err, ErrChangeWindowExpired) {
		t.Fatalf("expected the frozen 5 minute window to apply, got %v", err)
	}
}

func TestVoteRejections(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	if _, err := env.votes.Vote(ctx, uuid.New(), "red", voter); !errors.Is(err, poll.ErrPollNotFound) {
		t.Fatalf("expected poll not found, got %v", err)
	}

	if _, err := env.votes.Vote(ctx, env.pollID, "purple", voter); !errors.Is(err, ErrOptionNotInPoll) {
		t.Fatalf("expected invalid option error, got %v", err)
	}

	env.store.polls[env.pollID].IsActive = false
	if _, err := env.votes.Vote(ctx, env.pollID, "red", voter); !errors.Is(err, ErrPollNotActive) {
		t.Fatalf("expected inactive poll error, got %v", err)
	}
}

func TestExpiredPollRejectsVotes(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	exp := env.clock.T.Add(time.Second)
	env.store.polls[env.pollID].ExpiresAt = &exp
	env.clock.Advance(2 * time.Second)

	_, err := env.votes.Vote(ctx, env.pollID, "red", voter)
	if !errors.Is(err, ErrPollNotActive) {
		t.Fatalf("expected expired poll to reject votes, got %v", err)
	}

	// The lazy sweep must have flipped it off on the way through.
	p, _ := env.store.GetByID(ctx, env.pollID)
	if p.IsActive {
		t.Fatalf("expired poll is still active after the sweep")
	}
}

func TestResultsWithAndWithoutVoter(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	if _, err := env.votes.Vote(ctx, env.pollID, "blue", voter); err != nil {
		t.Fatalf("vote: %v", err)
	}

	anon, err := env.votes.Results(ctx, env.pollID, nil)
	if err != nil {
		t.Fatalf("anonymous results: %v", err)
	}
	if anon.UserVote != nil || anon.CanChangeVote {
		t.Fatalf("anonymous report leaked voter context: %+v", anon)
	}
	if anon.Results["blue"] != 1 || anon.TotalVotes != 1 {
		t.Fatalf("unexpected tally %v", anon.Results)
	}
	if _, ok := anon.Results["green"]; !ok {
		t.Fatalf("zero-vote option missing from tally")
	}

	rep, err := env.votes.Results(ctx, env.pollID, &voter)
	if err != nil {
		t.Fatalf("voter results: %v", err)
	}
	if rep.UserVote == nil || *rep.UserVote != "blue" {
		t.Fatalf("expected userVote blue, got %v", rep.UserVote)
	}
	if !rep.CanChangeVote || rep.ChangesRemaining != 2 {
		t.Fatalf("unexpected change eligibility: %+v", rep)
	}

	stranger := env.addVoter("bob")
	other, err := env.votes.Results(ctx, env.pollID, &stranger)
	if err != nil {
		t.Fatalf("non-voter results: %v", err)
	}
	if other.UserVote != nil {
		t.Fatalf("non-voter got a userVote: %v", *other.UserVote)
	}
}

func TestInactivePollResultsStayReadable(t *testing.T) {
	env := newTestEnv(t)
	voter := env.addVoter("alice")
	ctx := context.Background()

	if _, err := env.votes.Vote(ctx, env.pollID, "red", voter); err != nil {
		t.Fatalf("vote: %v", err)
	}
	env.store.polls[env.pollID].IsActive = false

	rep, err := env.votes.Results(ctx, env.pollID, &voter)
	if err != nil {
		t.Fatalf("results on inactive poll: %v", err)
	}
	if rep.Results["red"] != 1 {
		t.Fatalf("unexpected tally %v", rep.Results)
	}
	if rep.CanChangeVote {
		t.Fatalf("inactive poll must not offer a vote change")
	}
}

func TestDeleteCascadesToLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		if _, err := env.votes.Vote(ctx, env.pollID, "red", env.addVoter(name)); err != nil {
			t.Fatalf("vote by %s: %v", name, err)
		}
	}

	req := user.Requester{ID: env.authorID, Role: user.RoleUser}
	if err := env.polls.Delete(ctx, env.pollID, req); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok := env.store.entries[env.pollID]; ok {
		t.Fatalf("ledger entries survived the poll delete")
	}
	if _, err := env.votes.Results(ctx, env.pollID, nil); !errors.Is(err, poll.ErrPollNotFound) {
		t.Fatalf("expected poll not found after delete, got %v", err)
	}
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Day one, 14:00 UTC.
	v1 := env.addVoter("alice")
	if _, err := env.votes.Vote(ctx, env.pollID, "red", v1); err != nil {
		t.Fatalf("vote: %v", err)
	}

	env.clock.Advance(time.Hour) // 15:00
	v2 := env.addVoter("bob")
	if _, err := env.votes.Vote(ctx, env.pollID, "blue", v2); err != nil {
		t.Fatalf("vote: %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.votes.Vote(ctx, env.pollID, "green", v2); err != nil {
		t.Fatalf("change vote: %v", err)
	}

	env.clock.Advance(18 * time.Hour) // next day, 09:01 UTC
	v3 := env.addVoter("carol")
	if _, err := env.votes.Vote(ctx, env.pollID, "red", v3); err != nil {
		t.Fatalf("vote: %v", err)
	}

	req := user.Requester{ID: env.authorID, Role: user.RoleUser}
	a, err := env.votes.Analytics(ctx, env.pollID, req)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}

	if a.TotalVotes != 3 || a.UniqueVoters != 3 {
		t.Fatalf("expected 3 votes from 3 voters, got %d/%d", a.TotalVotes, a.UniqueVoters)
	}
	if a.AvgVotesPerVoter != 1 {
		t.Fatalf("expected average of 1, got %v", a.AvgVotesPerVoter)
	}
	if a.VoteChanges != 1 {
		t.Fatalf("expected 1 changed vote, got %d", a.VoteChanges)
	}
	if a.ByDate["2026-03-10"] != 2 || a.ByDate["2026-03-11"] != 1 {
		t.Fatalf("unexpected date buckets %v", a.ByDate)
	}
	if a.ByHour[14] != 1 || a.ByHour[15] != 1 || a.ByHour[9] != 1 {
		t.Fatalf("unexpected hour buckets %v", a.ByHour)
	}
	if a.ByOption["red"] != 2 || a.ByOption["green"] != 1 || a.ByOption["blue"] != 0 {
		t.Fatalf("unexpected option buckets %v", a.ByOption)
	}
}

func TestAnalyticsAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	collab := env.addVoter("dana")
	env.store.posts[env.postID].Collaborators = []post.Collaborator{{UserID: collab, Role: "editor"}}

	cases := []struct {
		name    string
		req     user.Requester
		allowed bool
	}{
		{"author", user.Requester{ID: env.authorID, Role: user.RoleUser}, true},
		{"collaborator", user.Requester{ID: collab, Role: user.RoleUser}, true},
		{"admin", user.Requester{ID: uuid.New(), Role: user.RoleAdmin}, true},
		{"stranger", user.Requester{ID: uuid.New(), Role: user.RoleUser}, false},
	}
	for _, tc := range cases {
		_, err := env.votes.Analytics(ctx, env.pollID, tc.req)
		if tc.allowed && err != nil {
			t.Errorf("%s: expected access, got %v", tc.name, err)
		}
		if !tc.allowed && !errors.Is(err, ErrNotAllowed) {
			t.Errorf("%s: expected denial, got %v", tc.name, err)
		}
	}
}

func TestExportRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.addVoter("alice")
	if _, err := env.votes.Vote(ctx, env.pollID, "red", v1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	env.clock.Advance(time.Minute)
	v2 := env.addVoter("bob")
	if _, err := env.votes.Vote(ctx, env.pollID, "blue", v2); err != nil {
		t.Fatalf("vote: %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.votes.Vote(ctx, env.pollID, "green", v2); err != nil {
		t.Fatalf("change vote: %v", err)
	}

	req := user.Requester{ID: env.authorID, Role: user.RoleUser}
	ex, err := env.votes.Export(ctx, env.pollID, req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if len(ex.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ex.Rows))
	}
	if ex.Rows[0].Voter != "alice" || ex.Rows[1].Voter != "bob" {
		t.Fatalf("rows out of first-vote order: %q, %q", ex.Rows[0].Voter, ex.Rows[1].Voter)
	}
	if ex.Rows[0].Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", ex.Rows[0].Email)
	}
	if ex.Rows[1].OptionID != "green" || ex.Rows[1].OptionText != "Green" {
		t.Fatalf("row carries stale option: %+v", ex.Rows[1])
	}
	if ex.Rows[1].ChangeCount != 1 {
		t.Fatalf("expected change count 1, got %d", ex.Rows[1].ChangeCount)
	}
	if !ex.GeneratedAt.Equal(env.clock.T) {
		t.Fatalf("unexpected generation time %v", ex.GeneratedAt)
	}

	stranger := user.Requester{ID: uuid.New(), Role: user.RoleUser}
	if _, err := env.votes.Export(ctx, env.pollID, stranger); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected export denial, got %v", err)
	}
}
