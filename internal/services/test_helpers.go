package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/breaker"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/store"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	CreateFunc              func(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByIDFunc             func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc          func(ctx context.Context, email string) (*models.Account, error)
	UpdateSecurityStateFunc func(ctx context.Context, id string, state models.SecurityState) error
	UpdatePasswordHashFunc  func(ctx context.Context, id, hash string, state models.SecurityState) error
	UpdatePINHashFunc       func(ctx context.Context, id, hash string, state models.SecurityState) error
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdateSecurityState(ctx context.Context, id string, state models.SecurityState) error {
	if m.UpdateSecurityStateFunc != nil {
		return m.UpdateSecurityStateFunc(ctx, id, state)
	}
	return nil
}

func (m *MockAccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string, state models.SecurityState) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, hash, state)
	}
	return nil
}

func (m *MockAccountRepository) UpdatePINHash(ctx context.Context, id, hash string, state models.SecurityState) error {
	if m.UpdatePINHashFunc != nil {
		return m.UpdatePINHashFunc(ctx, id, hash, state)
	}
	return nil
}

// MockProductRepository implements ProductRepository for testing
type MockProductRepository struct {
	UpsertFunc      func(ctx context.Context, p *models.Product) (*models.Product, error)
	GetByIDFunc     func(ctx context.Context, id string) (*models.Product, error)
	ListByOwnerFunc func(ctx context.Context, ownerID string) ([]*models.Product, error)
}

func (m *MockProductRepository) Upsert(ctx context.Context, p *models.Product) (*models.Product, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, p)
	}
	return nil, models.ErrInternalServer
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockProductRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Product, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return []*models.Product{}, nil
}

// MemoryAccountStore keeps accounts and transactions in memory. It
// implements AccountRepository, store.LedgerStore and TransactionRepository
// so the ledger can be exercised without Postgres.
type MemoryAccountStore struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	transactions []*models.Transaction

	// Mandates backs ClaimMandate inside transfer transactions
	Mandates *MemoryMandateStore

	// FailTransfers makes every transfer transaction fail with this error
	FailTransfers error
}

func NewMemoryAccountStore(accounts ...*models.Account) *MemoryAccountStore {
	s := &MemoryAccountStore{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		s.Put(a)
	}
	return s
}

// Put stores a copy of the account, replacing any existing one
func (s *MemoryAccountStore) Put(a *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}

// Snapshot returns a copy of the stored account, or nil
func (s *MemoryAccountStore) Snapshot(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// Transactions returns every recorded transaction in commit order
func (s *MemoryAccountStore) Transactions() []*models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Transaction(nil), s.transactions...)
}

func (s *MemoryAccountStore) Create(_ context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return nil, models.ErrConflict
		}
	}
	cp := *account
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAccountStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryAccountStore) UpdateSecurityState(_ context.Context, id string, state models.SecurityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	applySecurityState(a, state)
	return nil
}

func (s *MemoryAccountStore) UpdatePasswordHash(_ context.Context, id, hash string, state models.SecurityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PasswordHash = hash
	applySecurityState(a, state)
	return nil
}

func (s *MemoryAccountStore) UpdatePINHash(_ context.Context, id, hash string, state models.SecurityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PINHash = hash
	applySecurityState(a, state)
	return nil
}

func applySecurityState(a *models.Account, state models.SecurityState) {
	a.FailedLoginAttempts = state.FailedLoginAttempts
	a.FailedPINAttempts = state.FailedPINAttempts
	a.IsLocked = state.IsLocked
	a.LockoutExpiresAt = state.LockoutExpiresAt
}

// InTransferTx holds the store lock for the whole of fn and applies its
// writes only when fn succeeds.
func (s *MemoryAccountStore) InTransferTx(ctx context.Context, fn func(tx store.TransferTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTransfers != nil {
		return s.FailTransfers
	}

	tx := &memoryTransferTx{
		store:    s,
		balances: make(map[string]money.Amount),
		claims:   make(map[string]time.Time),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, balance := range tx.balances {
		s.accounts[id].Balance = balance
	}
	s.transactions = append(s.transactions, tx.created...)
	for id, next := range tx.claims {
		s.Mandates.setNextPaymentDate(id, next)
	}
	return nil
}

func (s *MemoryAccountStore) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		txn := s.transactions[i]
		if txn.SenderID == accountID || txn.ReceiverID == accountID {
			out = append(out, txn)
		}
	}
	if offset >= len(out) {
		return []*models.Transaction{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type memoryTransferTx struct {
	store    *MemoryAccountStore
	balances map[string]money.Amount
	created  []*models.Transaction
	claims   map[string]time.Time
}

func (t *memoryTransferTx) LockAccounts(_ context.Context, ids ...string) (map[string]*models.Account, error) {
	out := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.store.accounts[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (t *memoryTransferTx) SetBalance(_ context.Context, id string, balance money.Amount) error {
	if _, ok := t.store.accounts[id]; !ok {
		return models.ErrNotFound
	}
	if balance < 0 {
		return fmt.Errorf("%w: negative balance", models.ErrBadRequest)
	}
	t.balances[id] = balance
	return nil
}

func (t *memoryTransferTx) CreateTransaction(_ context.Context, txn *models.Transaction) (*models.Transaction, error) {
	cp := *txn
	cp.ID = uuid.NewString()
	t.created = append(t.created, &cp)
	return &cp, nil
}

// ClaimMandate checks the mandate against the shared mandate store and
// applies the new date only when the surrounding transaction commits.
func (t *memoryTransferTx) ClaimMandate(_ context.Context, mandateID string, prev *time.Time, next time.Time) (bool, error) {
	if t.store.Mandates == nil {
		return false, fmt.Errorf("memory account store has no mandate store")
	}
	if _, pending := t.claims[mandateID]; pending {
		return false, nil
	}
	if !t.store.Mandates.claimable(mandateID, prev) {
		return false, nil
	}
	t.claims[mandateID] = next
	return true, nil
}

// MemoryMandateStore implements MandateRepository in memory
type MemoryMandateStore struct {
	mu       sync.Mutex
	mandates map[string]*models.Mandate
	events   []*models.MandateEvent

	// ListActiveErr, when set, is returned by ListActive
	ListActiveErr error
}

func NewMemoryMandateStore(mandates ...*models.Mandate) *MemoryMandateStore {
	s := &MemoryMandateStore{mandates: make(map[string]*models.Mandate)}
	for _, m := range mandates {
		cp := *m
		s.mandates[m.ID] = &cp
	}
	return s
}

// Snapshot returns a copy of the stored mandate, or nil
func (s *MemoryMandateStore) Snapshot(id string) *models.Mandate {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mandates[id]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// EventTypes lists the mandate's event types in append order
func (s *MemoryMandateStore) EventTypes(mandateID string) []models.MandateEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MandateEventType
	for _, e := range s.events {
		if e.MandateID == mandateID {
			out = append(out, e.EventType)
		}
	}
	return out
}

func (s *MemoryMandateStore) Create(_ context.Context, m *models.Mandate) (*models.Mandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.mandates[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryMandateStore) GetByID(_ context.Context, id string) (*models.Mandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mandates[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryMandateStore) ListActive(_ context.Context) ([]*models.Mandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListActiveErr != nil {
		return nil, s.ListActiveErr
	}
	var out []*models.Mandate
	for _, m := range s.mandates {
		if m.Status == models.MandateActive {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryMandateStore) ListBySender(_ context.Context, senderID string) ([]*models.Mandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Mandate{}
	for _, m := range s.mandates {
		if m.SenderID == senderID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryMandateStore) UpdateStatus(_ context.Context, id string, status models.MandateStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mandates[id]
	if !ok {
		return models.ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *MemoryMandateStore) claimable(id string, prev *time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mandates[id]
	if !ok || m.Status != models.MandateActive {
		return false
	}
	if m.NextPaymentDate == nil || prev == nil {
		return m.NextPaymentDate == nil && prev == nil
	}
	return m.NextPaymentDate.Equal(*prev)
}

func (s *MemoryMandateStore) setNextPaymentDate(id string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mandates[id]; ok {
		m.NextPaymentDate = &next
	}
}

func (s *MemoryMandateStore) AppendEvent(_ context.Context, e *models.MandateEvent) (*models.MandateEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mandates[e.MandateID]; !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	cp.ID = uuid.NewString()
	s.events = append(s.events, &cp)
	return &cp, nil
}

func (s *MemoryMandateStore) ListEvents(_ context.Context, mandateID string) ([]*models.MandateEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.MandateEvent{}
	for _, e := range s.events {
		if e.MandateID == mandateID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// RecordingPublisher captures published events
type RecordingPublisher struct {
	mu     sync.Mutex
	Err    error
	Events []PublishedEvent
}

type PublishedEvent struct {
	Stream string
	Type   string
	Data   any
}

func (p *RecordingPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Stream: stream, Type: eventType, Data: data})
	return p.Err
}

// Types lists the published event types in order
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}

// RecordingNotifier captures mandate failure notices
type RecordingNotifier struct {
	mu      sync.Mutex
	Notices []string
}

func (n *RecordingNotifier) NotifyMandatePaymentFailed(_ context.Context, sender *models.Account, mandate *models.Mandate, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, sender.ID+":"+mandate.ID+":"+reason)
	return nil
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Notices)
}

// PlainSecrets is a reversible stand-in for bcrypt so tests stay fast
type PlainSecrets struct{}

func (PlainSecrets) Hash(secret string) (string, error) {
	return "plain:" + secret, nil
}

func (PlainSecrets) Verify(hash, secret string) (bool, error) {
	if !strings.HasPrefix(hash, "plain:") {
		return false, fmt.Errorf("malformed hash")
	}
	return hash == "plain:"+secret, nil
}

// StaticTokenIssuer issues predictable tokens
type StaticTokenIssuer struct {
	Err error
}

func (s StaticTokenIssuer) GenerateAccessToken(accountID, _ string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return "token-" + accountID, nil
}

// NewTestAccount builds an account whose password and PIN hashes match
// PlainSecrets.
func NewTestAccount(id, email string, balance money.Amount) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:           id,
		Name:         "Test " + id,
		Email:        email,
		PasswordHash: "plain:Correct-horse-1",
		PINHash:      "plain:12345",
		Balance:      balance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestDispatcher builds a dispatcher with short breaker timeouts
func NewTestDispatcher() *admission.Dispatcher {
	opts := make(map[admission.Class]breaker.Options)
	for _, class := range admission.Classes() {
		o := breaker.DefaultOptions(string(class))
		o.Timeout = time.Second
		opts[class] = o
	}
	return admission.NewDispatcher(opts, 0, NewTestLogger())
}

func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
