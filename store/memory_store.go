package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bathanov/lingogate/types"
)

// MemoryStore keeps the whole ledger behind one mutex. It honors the same
// transactional contract as PostgresStore (multi-step updates are atomic,
// settle is first-writer-wins) and backs tests and DSN-less dev runs.
type MemoryStore struct {
	mu           sync.Mutex
	entitlements map[int64]types.Entitlement
	codes        map[string]types.Code
	codeUses     []types.CodeUse
	orders       map[string]types.Order
	owners       map[int64]types.Owner
	chats        []types.ChatMessage
	nextUseID    int64
	nextChatID   int64
}

var _ types.LedgerStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entitlements: make(map[int64]types.Entitlement),
		codes:        make(map[string]types.Code),
		orders:       make(map[string]types.Order),
		owners:       make(map[int64]types.Owner),
	}
}

func (s *MemoryStore) GetEntitlement(ctx context.Context, userID int64) (*types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entitlements[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) UpsertEntitlement(ctx context.Context, ent types.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entitlements[ent.UserID]; ok {
		ent.CreatedAt = cur.CreatedAt
	} else if ent.CreatedAt.IsZero() {
		ent.CreatedAt = time.Now().UTC()
	}
	ent.UpdatedAt = time.Now().UTC()
	s.entitlements[ent.UserID] = ent
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, userID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entitlements[userID]
	if !ok {
		return nil
	}
	e.IsActive = active
	e.UpdatedAt = time.Now().UTC()
	s.entitlements[userID] = e
	return nil
}

func (s *MemoryStore) DeleteEntitlement(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entitlements, userID)
	return nil
}

func (s *MemoryStore) ListEntitlements(ctx context.Context) ([]types.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Entitlement, 0, len(s.entitlements))
	for _, e := range s.entitlements {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) GrantDays(ctx context.Context, userID int64, username string, days int, now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantDaysLocked(userID, username, days, now), nil
}

func (s *MemoryStore) grantDaysLocked(userID int64, username string, days int, now time.Time) time.Time {
	var current *types.Entitlement
	if e, ok := s.entitlements[userID]; ok {
		current = &e
		if username == "" {
			username = e.Username
		}
	}
	newExpiry := types.NextExpiry(current, days, now)

	e := types.Entitlement{
		UserID:    userID,
		Username:  username,
		ExpiresAt: newExpiry,
		IsActive:  true,
		UpdatedAt: time.Now().UTC(),
	}
	if current != nil {
		e.CreatedAt = current.CreatedAt
	} else {
		e.CreatedAt = now
	}
	s.entitlements[userID] = e
	return newExpiry
}

func (s *MemoryStore) GetCode(ctx context.Context, code string) (*types.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, ErrNoSuchCode
	}
	return &c, nil
}

func (s *MemoryStore) CreateCode(ctx context.Context, c types.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[c.Code]; ok {
		return ErrCodeExists
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.codes[c.Code] = c
	return nil
}

func (s *MemoryStore) DeleteCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

func (s *MemoryStore) ListCodes(ctx context.Context) ([]types.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Code, 0, len(s.codes))
	for _, c := range s.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RedeemCode(ctx context.Context, scopeID, userID int64, code string, now time.Time, rule types.ScopeRule) (*types.RedeemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, ErrNoSuchCode
	}

	priorUses := 0
	for _, u := range s.codeUses {
		if u.ScopeID == scopeID && u.Code == code {
			priorUses++
		}
	}

	activeNow := false
	if e, ok := s.entitlements[userID]; ok {
		activeNow = e.ActiveAt(now)
	}

	if !rule.Allow(priorUses, activeNow) {
		return nil, ErrLimitReached
	}

	newExpiry := s.grantDaysLocked(userID, "", c.Days, now)
	s.nextUseID++
	s.codeUses = append(s.codeUses, types.CodeUse{
		ID:      s.nextUseID,
		ScopeID: scopeID,
		Code:    code,
		UsedAt:  now,
	})
	return &types.RedeemResult{Days: c.Days, NewExpiry: newExpiry}, nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.OrderID]; ok {
		return ErrOrderExists
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	s.orders[o.OrderID] = o
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	return &o, nil
}

func (s *MemoryStore) ListPendingOrders(ctx context.Context) ([]types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Order
	for _, o := range s.orders {
		if !o.Settled {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SettleOrder(ctx context.Context, orderID string, now time.Time) (*types.SettleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Settled {
		return &types.SettleResult{AlreadySettled: true, UserID: o.UserID, Days: o.Days}, nil
	}

	o.Settled = true
	settledAt := now
	o.SettledAt = &settledAt
	s.orders[orderID] = o

	newExpiry := s.grantDaysLocked(o.UserID, "", o.Days, now)
	return &types.SettleResult{UserID: o.UserID, Days: o.Days, NewExpiry: newExpiry}, nil
}

func (s *MemoryStore) AddOwner(ctx context.Context, userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[userID] = types.Owner{UserID: userID, Username: username, AddedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) IsOwner(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[userID]
	return ok, nil
}

func (s *MemoryStore) AppendChat(ctx context.Context, userID int64, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextChatID++
	s.chats = append(s.chats, types.ChatMessage{
		ID:        s.nextChatID,
		UserID:    userID,
		Message:   message,
		CreatedAt: now,
	})
	return nil
}

func (s *MemoryStore) RecentChats(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.chats) - limit
	if start < 0 {
		start = 0
	}
	out := make([]types.ChatMessage, len(s.chats)-start)
	copy(out, s.chats[start:])
	return out, nil
}
