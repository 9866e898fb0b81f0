package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/tally/internal/assistant"
	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/i18n"
	"github.com/spetersoncode/tally/internal/ledger"
	"github.com/spetersoncode/tally/internal/ocr"
	"github.com/spetersoncode/tally/internal/parse"
	"github.com/spetersoncode/tally/internal/preference"
	"github.com/spetersoncode/tally/internal/session"
	"github.com/spetersoncode/tally/internal/suspend"
)

var (
	catalog = i18n.MustLoad()
	parser  = parse.MustNew()
)

type fakeLedger struct {
	mu       sync.Mutex
	members  []domain.Member
	init     domain.SourceInit
	created  []ledger.CreateRequest
	createFn func(ledger.CreateRequest) error
	gate     chan struct{}

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeLedger) InitSource(ctx context.Context, req ledger.InitRequest) (domain.SourceInit, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.SourceInit{}, ctx.Err()
		}
	}
	return f.init, nil
}

func (f *fakeLedger) GetMembers(ctx context.Context, _ domain.LedgerContext) ([]domain.Member, error) {
	return f.members, nil
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, req ledger.CreateRequest) (domain.CreatedTransaction, error) {
	if f.createFn != nil {
		if err := f.createFn(req); err != nil {
			return domain.CreatedTransaction{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return domain.CreatedTransaction{
		ID:       fmt.Sprintf("tx-%d", len(f.created)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Splits:   req.Splits,
	}, nil
}

func (f *fakeLedger) Created() []ledger.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.CreateRequest(nil), f.created...)
}

type fakeOCR struct {
	receipt domain.Receipt
	err     error
	delay   time.Duration
}

func (f *fakeOCR) Extract(ctx context.Context, _ string) (domain.Receipt, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.receipt, f.err
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	advised    []domain.CreatedTransaction
	adviseErr  error
	adviseText string
	hang       bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage, _ domain.Preferences, send assistant.SendFunc) error {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, msg.Text)
	f.mu.Unlock()
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return send(ctx, "assistant: "+msg.Text)
}

func (f *fakeDispatcher) Advise(ctx context.Context, _ domain.InboundMessage, _ domain.Preferences, _ domain.ParsedTransaction, created domain.CreatedTransaction, send assistant.SendFunc) error {
	f.mu.Lock()
	f.advised = append(f.advised, created)
	f.mu.Unlock()
	if f.adviseErr != nil {
		return f.adviseErr
	}
	if f.adviseText == "" {
		return nil
	}
	return send(ctx, f.adviseText)
}

func (f *fakeDispatcher) Dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

func (f *fakeDispatcher) Advised() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.advised)
}

type staticPrefs struct {
	panics bool
	calls  atomic.Int32
}

func (s *staticPrefs) GetPreferences(ctx context.Context, _ domain.LedgerContext) (domain.Preferences, error) {
	if s.calls.Add(1) == 1 && s.panics {
		panic("preferences exploded")
	}
	return domain.Preferences{Language: "en", Currency: "THB", Timezone: "Asia/Bangkok"}, nil
}

type harness struct {
	router     *Router
	ledger     *fakeLedger
	ocr        *fakeOCR
	dispatcher *fakeDispatcher
	suspended  *suspend.Store[*Snapshot]
	out        *channel.Recorder
	now        *atomic.Int64
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarnessWith(t, session.New(), &staticPrefs{}, opts...)
}

func newHarnessWith(t *testing.T, lock *session.Lock, prefs *staticPrefs, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		ledger: &fakeLedger{members: []domain.Member{
			{ID: "u1", Name: "Dan", Username: "dan"},
			{ID: "u2", Name: "Alice", Username: "alice"},
			{ID: "u3", Name: "Carol", Username: "carol"},
		}},
		ocr:        &fakeOCR{},
		dispatcher: &fakeDispatcher{},
		out:        channel.NewRecorder(),
		now:        &atomic.Int64{},
	}
	h.now.Store(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	clock := func() time.Time { return time.Unix(0, h.now.Load()) }
	h.suspended = suspend.New[*Snapshot](suspend.WithClock(clock))

	wf, err := NewTransactionWorkflow(WorkflowDeps{Ledger: h.ledger, OCR: h.ocr, Parser: parser, Catalog: catalog})
	require.NoError(t, err)

	h.router, err = NewRouter(Deps{
		Workflow:    wf,
		Dispatcher:  h.dispatcher,
		Lock:        lock,
		Suspended:   h.suspended,
		Preferences: preference.New(prefs),
		Parser:      parser,
		Catalog:     catalog,
		Sender:      h.out,
	}, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) advance(d time.Duration) { h.now.Add(int64(d)) }

func direct(text string) domain.InboundMessage {
	return domain.InboundMessage{Channel: "line", SourceID: "u1", SenderID: "u1", Text: text}
}

func group(text string) domain.InboundMessage {
	return domain.InboundMessage{Channel: "line", SourceID: "g1", SenderID: "u1", Text: text, IsGroup: true, Mentioned: true}
}

func (h *harness) replies(msg domain.InboundMessage) []string {
	return h.out.Texts(channel.TargetOf(msg))
}

func TestRecordsCompleteMessage(t *testing.T) {
	h := newHarness(t)
	msg := direct("coffee 65")

	require.NoError(t, h.router.Handle(context.Background(), msg))
	h.router.Wait()

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "coffee", created[0].Description)
	assert.Equal(t, 65.0, created[0].Amount)
	assert.Equal(t, "THB", created[0].Currency)

	replies := h.replies(msg)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "tx-1")
	assert.Equal(t, 0, h.suspended.Len())
	assert.Equal(t, 1, h.dispatcher.Advised())
}

func TestWelcomeOnNewSource(t *testing.T) {
	h := newHarness(t)
	h.ledger.init = domain.SourceInit{IsNewSource: true}
	msg := direct("coffee 65")

	require.NoError(t, h.router.Handle(context.Background(), msg))

	replies := h.replies(msg)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], catalog.T("en", i18n.ReplyWelcomeSource))
	assert.Contains(t, replies[0], "tx-1")
}

func TestSuspendsThenResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := direct("65")
	require.NoError(t, h.router.Handle(ctx, first))
	assert.Empty(t, h.ledger.Created())
	require.Equal(t, 1, h.suspended.Len())

	cont, ok := h.suspended.Get(SessionKeyOf(first))
	require.True(t, ok)
	assert.Equal(t, []string{domain.FieldDescription}, cont.Missing)
	assert.Equal(t, "transaction/direct/validate", cont.StepID)
	assert.Equal(t, []string{"What did you spend ฿65 on?"}, h.replies(first))

	require.NoError(t, h.router.Handle(ctx, direct("lunch")))
	h.router.Wait()

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "lunch", created[0].Description)
	assert.Equal(t, 65.0, created[0].Amount)
	assert.Equal(t, 0, h.suspended.Len())

	replies := h.replies(first)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[1], "tx-1")
}

func TestResumeMatchesSingleMessage(t *testing.T) {
	ctx := context.Background()

	whole := newHarness(t)
	require.NoError(t, whole.router.Handle(ctx, direct("lunch 65")))

	split := newHarness(t)
	require.NoError(t, split.router.Handle(ctx, direct("65")))
	require.NoError(t, split.router.Handle(ctx, direct("lunch")))

	require.Len(t, whole.ledger.Created(), 1)
	require.Len(t, split.ledger.Created(), 1)
	assert.Equal(t, whole.ledger.Created()[0], split.ledger.Created()[0])
}

func TestResumeAsksAgainUntilComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.router.Handle(ctx, group("paid for lunch @alice @bob")))
	cont, ok := h.suspended.Get(SessionKeyOf(group("")))
	require.True(t, ok)
	assert.Equal(t, []string{domain.FieldAmount}, cont.Missing)

	require.NoError(t, h.router.Handle(ctx, group("600")))

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "lunch", created[0].Description)
	assert.Equal(t, 600.0, created[0].Amount)
	assert.ElementsMatch(t, []string{"u2", "u1"}, memberIDs(created[0].Splits))
}

func TestGroupSplitAll(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.router.Handle(context.Background(), group("lunch 600 @all")))

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, []string{"u1", "u2", "u3"}, memberIDs(created[0].Splits))
	for _, s := range created[0].Splits {
		assert.Equal(t, 200.0, s.Amount)
	}
	assert.Contains(t, h.replies(group(""))[0], "Split between 3 people")
}

func TestGroupDropsUnknownMember(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.router.Handle(context.Background(), group("lunch 600 @alice @bob")))

	created := h.ledger.Created()
	require.Len(t, created, 1)
	ids := memberIDs(created[0].Splits)
	assert.ElementsMatch(t, []string{"u2", "u1"}, ids)
	assert.NotContains(t, ids, "bob")
}

func TestGroupAsksWhomWhenNoTargetMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.router.Handle(ctx, group("lunch 600 @bob")))
	assert.Empty(t, h.ledger.Created())
	cont, ok := h.suspended.Get(SessionKeyOf(group("")))
	require.True(t, ok)
	assert.Equal(t, []string{domain.FieldSplit}, cont.Missing)

	require.NoError(t, h.router.Handle(ctx, group("@carol")))
	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.ElementsMatch(t, []string{"u3", "u1"}, memberIDs(created[0].Splits))
	assert.Equal(t, 300.0, created[0].Splits[0].Amount)
}

func TestGroupMentionByName(t *testing.T) {
	h := newHarness(t, WithBotName("tally"))
	msg := group("@tally coffee 65")
	msg.Mentioned = false

	require.NoError(t, h.router.Handle(context.Background(), msg))

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "coffee", created[0].Description)
	assert.Empty(t, created[0].Splits)
}

func TestBlankBotNameStillStripsDefaultHandle(t *testing.T) {
	h := newHarness(t, WithBotName("  "))
	msg := group("@tally coffee 65")

	require.NoError(t, h.router.Handle(context.Background(), msg))

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "coffee", created[0].Description)
	assert.Empty(t, created[0].Splits)
	assert.Equal(t, 0, h.suspended.Len())
}

func TestGroupWithoutMentionIgnored(t *testing.T) {
	h := newHarness(t)
	msg := group("coffee 65")
	msg.Mentioned = false

	require.NoError(t, h.router.Handle(context.Background(), msg))
	assert.Empty(t, h.ledger.Created())
	assert.Empty(t, h.out.Messages())
}

func TestDuplicateResumeStartsFresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.router.Handle(ctx, direct("65")))
	require.NoError(t, h.router.Handle(ctx, direct("lunch")))
	require.NoError(t, h.router.Handle(ctx, direct("lunch")))

	assert.Len(t, h.ledger.Created(), 1)
	assert.Equal(t, []string{"lunch"}, h.dispatcher.Dispatched())
}

func TestExpiredContinuationIsNotResumed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.router.Handle(ctx, direct("65")))
	h.advance(suspend.DefaultTTL + time.Second)
	assert.Equal(t, 1, h.suspended.Reap())

	require.NoError(t, h.router.Handle(ctx, direct("lunch")))
	assert.Empty(t, h.ledger.Created())
	assert.Equal(t, []string{"lunch"}, h.dispatcher.Dispatched())
}

func TestCancelClearsContinuation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.router.Handle(ctx, direct("65")))
	require.NoError(t, h.router.Handle(ctx, direct("cancel")))

	assert.Equal(t, 0, h.suspended.Len())
	assert.Empty(t, h.ledger.Created())
	replies := h.replies(direct(""))
	assert.Equal(t, catalog.T("en", i18n.ReplyCancelled), replies[len(replies)-1])
}

func TestPhotoReplacesPendingClarification(t *testing.T) {
	h := newHarness(t)
	h.ocr.receipt = domain.Receipt{IsReceipt: true, StoreName: "Fresh Mart", Total: 245, Currency: "THB"}
	ctx := context.Background()

	require.NoError(t, h.router.Handle(ctx, direct("65")))
	photo := direct("")
	photo.ImageRef = "https://img/receipt.jpg"
	require.NoError(t, h.router.Handle(ctx, photo))

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "Fresh Mart", created[0].Description)
	assert.Equal(t, 245.0, created[0].Amount)
	assert.Equal(t, 0, h.suspended.Len())
}

func TestReceiptDeliveredWhenAdvisorFails(t *testing.T) {
	h := newHarness(t)
	h.ocr.receipt = domain.Receipt{
		IsReceipt: true,
		StoreName: "Fresh Mart",
		Items:     []domain.LineItem{{Name: "milk", Total: 45}, {Name: "bread", Total: 55}},
		Currency:  "THB",
	}
	h.dispatcher.adviseErr = errors.New("advisor down")
	photo := direct("")
	photo.ImageRef = "https://img/receipt.jpg"

	require.NoError(t, h.router.Handle(context.Background(), photo))
	h.router.Wait()

	created := h.ledger.Created()
	require.Len(t, created, 1)
	assert.Equal(t, 100.0, created[0].Amount)
	assert.Len(t, created[0].Items, 2)

	replies := h.replies(photo)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "tx-1")
	assert.Equal(t, 1, h.dispatcher.Advised())
}

func TestAdvisoryNoteFollowsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.adviseText = "That's your third coffee today."
	msg := direct("coffee 65")

	require.NoError(t, h.router.Handle(context.Background(), msg))
	h.router.Wait()

	replies := h.replies(msg)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "tx-1")
	assert.Equal(t, "That's your third coffee today.", replies[1])
}

func TestNonReceiptFallsBackToAssistants(t *testing.T) {
	h := newHarness(t)
	h.ocr.err = ocr.ErrFallback
	photo := direct("what is this?")
	photo.ImageRef = "https://img/cat.jpg"

	require.NoError(t, h.router.Handle(context.Background(), photo))

	assert.Empty(t, h.ledger.Created())
	assert.Equal(t, []string{"what is this?"}, h.dispatcher.Dispatched())
}

func TestNonTransactionTextGoesToAssistants(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.router.Handle(context.Background(), direct("who owes what")))

	assert.Empty(t, h.ledger.Created())
	assert.Equal(t, []string{"who owes what"}, h.dispatcher.Dispatched())
}

func TestHungAssistantsReleaseSession(t *testing.T) {
	lock := session.New()
	h := newHarnessWith(t, lock, &staticPrefs{}, WithDispatchTimeout(20*time.Millisecond))
	h.dispatcher.hang = true
	msg := direct("who owes what")

	done := make(chan error, 1)
	go func() { done <- h.router.Handle(context.Background(), msg) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session still held after the dispatch timeout")
	}
	assert.Equal(t, []string{catalog.T("en", i18n.ErrorTimeout)}, h.replies(msg))
	assert.Equal(t, 0, lock.Len())

	h.dispatcher.hang = false
	require.NoError(t, h.router.Handle(context.Background(), msg))
	assert.Len(t, h.dispatcher.Dispatched(), 2)
}

func TestCancelledCallerGetsNoTimeoutReply(t *testing.T) {
	h := newHarness(t, WithDispatchTimeout(time.Minute))
	h.dispatcher.hang = true
	msg := direct("who owes what")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.router.Handle(ctx, msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.replies(msg))
}

func TestWithoutWorkflowEverythingGoesToAssistants(t *testing.T) {
	h := newHarness(t)
	h.router.deps.Workflow = nil

	require.NoError(t, h.router.Handle(context.Background(), direct("coffee 65")))

	assert.Empty(t, h.ledger.Created())
	assert.Equal(t, []string{"coffee 65"}, h.dispatcher.Dispatched())
}

func TestFailuresAreLocalized(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		msg   func() domain.InboundMessage
		want  string
	}{
		{
			name: "ledger",
			setup: func(h *harness) {
				h.ledger.createFn = func(ledger.CreateRequest) error {
					return &ledger.Error{Op: "create transaction", StatusCode: 500, Err: errors.New("db down")}
				}
			},
			msg:  func() domain.InboundMessage { return direct("coffee 65") },
			want: i18n.ErrorLedger,
		},
		{
			name:  "ocr busy",
			setup: func(h *harness) { h.ocr.err = fmt.Errorf("%w: rate limited", ocr.ErrServiceBusy) },
			msg: func() domain.InboundMessage {
				m := direct("")
				m.ImageRef = "https://img/1.jpg"
				return m
			},
			want: i18n.ErrorOCRBusy,
		},
		{
			name:  "timeout",
			setup: func(h *harness) { h.ocr.delay = 200 * time.Millisecond },
			msg: func() domain.InboundMessage {
				m := direct("")
				m.ImageRef = "https://img/1.jpg"
				return m
			},
			want: i18n.ErrorTimeout,
		},
		{
			name: "unexpected",
			setup: func(h *harness) {
				h.ledger.createFn = func(ledger.CreateRequest) error { panic("bad state") }
			},
			msg:  func() domain.InboundMessage { return direct("coffee 65") },
			want: i18n.ErrorGeneric,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, WithStepTimeout(20*time.Millisecond))
			tt.setup(h)
			msg := tt.msg()

			require.NoError(t, h.router.Handle(context.Background(), msg))

			assert.Equal(t, []string{catalog.T("en", tt.want)}, h.replies(msg))
			assert.Equal(t, 0, h.suspended.Len())
		})
	}
}

func TestPanicReleasesSession(t *testing.T) {
	lock := session.New()
	h := newHarnessWith(t, lock, &staticPrefs{panics: true})
	ctx := context.Background()

	err := h.router.Handle(ctx, direct("coffee 65"))
	require.Error(t, err)
	assert.Equal(t, []string{catalog.T("", i18n.ErrorGeneric)}, h.replies(direct("")))
	assert.Equal(t, 0, lock.Len())

	require.NoError(t, h.router.Handle(ctx, direct("coffee 65")))
	assert.Len(t, h.ledger.Created(), 1)
}

func TestBusySessionRejects(t *testing.T) {
	lock := session.New(session.WithQueue(0))
	h := newHarnessWith(t, lock, &staticPrefs{})
	h.ledger.gate = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.router.Handle(ctx, direct("coffee 65")) }()
	require.Eventually(t, func() bool { return h.ledger.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.router.Handle(ctx, direct("tea 40")))
	assert.Equal(t, []string{catalog.T("en", i18n.ReplyBusy)}, h.replies(direct("")))

	close(h.ledger.gate)
	require.NoError(t, <-done)
	assert.Len(t, h.ledger.Created(), 1)
	assert.Equal(t, 0, lock.Len())
}

func TestOneMessagePerSessionAtATime(t *testing.T) {
	lock := session.New(session.WithQueue(-1))
	h := newHarnessWith(t, lock, &staticPrefs{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.router.Handle(ctx, direct(fmt.Sprintf("coffee %d", 60+i))))
		}()
	}
	wg.Wait()

	assert.Len(t, h.ledger.Created(), n)
	assert.Equal(t, int32(1), h.ledger.maxSeen.Load())
	assert.Equal(t, 0, lock.Len())
}

func TestNewRouterRequiresDeps(t *testing.T) {
	_, err := NewRouter(Deps{})
	assert.Error(t, err)

	_, err = NewTransactionWorkflow(WorkflowDeps{})
	assert.Error(t, err)
}

func TestShareEqually(t *testing.T) {
	splits := shareEqually(100, []domain.Split{{MemberID: "a"}, {MemberID: "b"}, {MemberID: "c"}})
	assert.Equal(t, 33.34, splits[0].Amount)
	assert.Equal(t, 33.33, splits[1].Amount)
	assert.Equal(t, 33.33, splits[2].Amount)
	assert.Empty(t, shareEqually(100, nil))
}

func memberIDs(splits []domain.Split) []string {
	ids := make([]string, 0, len(splits))
	for _, s := range splits {
		ids = append(ids, s.MemberID)
	}
	return ids
}
