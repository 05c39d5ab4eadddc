package useCases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/larriantoniy/tg_session_web/internal/domain"
	"github.com/larriantoniy/tg_session_web/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient - сценарный AccountClient.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	connectErr     error
	connect        func(ctx context.Context) error
	authorized     bool
	qrLink         string
	qrWait         func(ctx context.Context) error
	requestCodeErr error
	signIn         func(phone, code string) error
	signInPassword func(password string) error
	session        string
	identity       domain.Identity
	identityPanic  bool

	disconnects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		qrLink:   "tg://login?token=abc",
		session:  "tdlib:session-bytes",
		identity: domain.Identity{ID: 4242, FirstName: "Ann", Username: "ann"},
	}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.record("connect")
	if f.connect != nil {
		return f.connect(ctx)
	}
	return f.connectErr
}

func (f *fakeClient) IsAuthorized(ctx context.Context) (bool, error) {
	f.record("is_authorized")
	return f.authorized, nil
}

func (f *fakeClient) BeginQRLogin(ctx context.Context) (string, error) {
	f.record("begin_qr")
	return f.qrLink, nil
}

func (f *fakeClient) WaitQRConfirmation(ctx context.Context) error {
	f.record("wait_qr")
	if f.qrWait != nil {
		return f.qrWait(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeClient) RequestCode(ctx context.Context, phone string) error {
	f.record("request_code:" + phone)
	return f.requestCodeErr
}

func (f *fakeClient) SignIn(ctx context.Context, phone, code string) error {
	f.record("sign_in:" + phone + ":" + code)
	if f.signIn != nil {
		return f.signIn(phone, code)
	}
	return nil
}

func (f *fakeClient) SignInPassword(ctx context.Context, password string) error {
	f.record("sign_in_password:" + password)
	if f.signInPassword != nil {
		return f.signInPassword(password)
	}
	return nil
}

func (f *fakeClient) SaveSession(ctx context.Context) (string, error) {
	f.record("save_session")
	return f.session, nil
}

func (f *fakeClient) Identity(ctx context.Context) (domain.Identity, error) {
	f.record("identity")
	if f.identityPanic {
		panic("identity exploded")
	}
	return f.identity, nil
}

func (f *fakeClient) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

// recordingSink пишет все сообщения и при необходимости отвечает на input_required.
type recordingSink struct {
	mu      sync.Mutex
	envs    []domain.Envelope
	answers []string
	target  *Negotiator
	sent    chan domain.Envelope
}

func newRecordingSink(answers ...string) *recordingSink {
	return &recordingSink{answers: answers, sent: make(chan domain.Envelope, 64)}
}

func (s *recordingSink) Send(ctx context.Context, env domain.Envelope) error {
	s.mu.Lock()
	s.envs = append(s.envs, env)
	var answer *string
	if env.Type == domain.TypeInputRequired && len(s.answers) > 0 {
		a := s.answers[0]
		s.answers = s.answers[1:]
		answer = &a
	}
	target := s.target
	s.mu.Unlock()

	s.sent <- env
	if answer != nil && target != nil {
		target.Deliver(*answer)
	}
	return nil
}

func (s *recordingSink) Envelopes() []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Envelope(nil), s.envs...)
}

func (s *recordingSink) waitFor(typ domain.EnvelopeType, timeout time.Duration) (domain.Envelope, error) {
	deadline := time.After(timeout)
	for {
		select {
		case env := <-s.sent:
			if env.Type == typ {
				return env, nil
			}
		case <-deadline:
			return domain.Envelope{}, fmt.Errorf("no %s envelope within %s", typ, timeout)
		}
	}
}

func typesOf(envs []domain.Envelope) []domain.EnvelopeType {
	out := make([]domain.EnvelopeType, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

func countType(envs []domain.Envelope, typ domain.EnvelopeType) int {
	n := 0
	for _, e := range envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func countTerminal(envs []domain.Envelope) int {
	n := 0
	for _, e := range envs {
		if e.IsTerminal() {
			n++
		}
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemStore() *memStore { return &memStore{files: make(map[string]string)} }

func (m *memStore) Persist(ctx context.Context, accountID int64, issuedAt time.Time, session string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := domain.CredentialFilename(accountID, issuedAt)
	m.files[name] = session
	return name, nil
}

func (m *memStore) Open(filename string) (io.ReadSeekCloser, time.Time, error) {
	return nil, time.Time{}, domain.ErrNotFound
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type memIndex struct {
	mu   sync.Mutex
	refs []domain.CredentialRef
}

func (m *memIndex) Record(ctx context.Context, ref domain.CredentialRef) error {
	m.mu.Lock()
	m.refs = append(m.refs, ref)
	m.mu.Unlock()
	return nil
}

func (m *memIndex) Recent(ctx context.Context, limit int) ([]domain.CredentialRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CredentialRef(nil), m.refs...), nil
}

type fakeQR struct{}

func (fakeQR) Render(content string) ([]byte, error) {
	return []byte("png:" + content), nil
}

// harness собирает Negotiator с фейками.
type harness struct {
	client    *fakeClient
	sink      *recordingSink
	store     *memStore
	index     *memIndex
	factoryN  int
	negotiate *Negotiator
	now       time.Time
}

func newHarness(client *fakeClient, sink *recordingSink, qrTimeout time.Duration) *harness {
	h := &harness{
		client: client,
		sink:   sink,
		store:  newMemStore(),
		index:  &memIndex{},
		now:    time.Unix(1700000000, 0),
	}
	deps := Deps{
		Clients: func(cfg domain.LoginConfig, log *slog.Logger) (ports.AccountClient, error) {
			h.factoryN++
			return h.client, nil
		},
		Store:     h.store,
		Index:     h.index,
		QR:        fakeQR{},
		QRTimeout: qrTimeout,
		Now:       func() time.Time { return h.now },
	}
	h.negotiate = NewNegotiator(deps, sink, discardLogger())
	sink.mu.Lock()
	sink.target = h.negotiate
	sink.mu.Unlock()
	return h
}
