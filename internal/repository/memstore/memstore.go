// Package memstore is an in-memory repository.Store for tests.
//
// Every call takes a single mutex, and ExecTx holds it for the whole
// callback, so transactions are fully serialized. A callback error
// discards every write made inside it.
package memstore

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DukeRupert/tradeflow/internal/repository"
)

type eventKey struct {
	provider string
	eventID  string
}

type state struct {
	users    map[uuid.UUID]repository.User
	analyses []repository.Analysis
	events   map[eventKey]repository.WebhookEvent
}

func (s *state) clone() *state {
	c := &state{
		users:    make(map[uuid.UUID]repository.User, len(s.users)),
		analyses: make([]repository.Analysis, len(s.analyses)),
		events:   make(map[eventKey]repository.WebhookEvent, len(s.events)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	copy(c.analyses, s.analyses)
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

// Store implements repository.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *state

	// CreateAnalysisErr, when set, is returned by CreateAnalysis.
	CreateAnalysisErr error
}

func New() *Store {
	return &Store{
		data: &state{
			users:  make(map[uuid.UUID]repository.User),
			events: make(map[eventKey]repository.WebhookEvent),
		},
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&tx{state: work, store: s}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) run(fn func(t *tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{state: s.data, store: s})
}

// WebhookEvents returns the recorded events, for assertions.
func (s *Store) WebhookEvents() []repository.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.WebhookEvent, 0, len(s.data.events))
	for _, e := range s.data.events {
		out = append(out, e)
	}
	return out
}

func (s *Store) CountAnalysesByUser(ctx context.Context, userID uuid.UUID) (n int64, err error) {
	err = s.run(func(t *tx) error { n, err = t.CountAnalysesByUser(ctx, userID); return err })
	return n, err
}

func (s *Store) CreateAnalysis(ctx context.Context, arg repository.CreateAnalysisParams) (a repository.Analysis, err error) {
	err = s.run(func(t *tx) error { a, err = t.CreateAnalysis(ctx, arg); return err })
	return a, err
}

func (s *Store) CreateUser(ctx context.Context, arg repository.CreateUserParams) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.CreateUser(ctx, arg); return err })
	return u, err
}

func (s *Store) DeleteAnalysisForUser(ctx context.Context, arg repository.DeleteAnalysisForUserParams) (a repository.Analysis, err error) {
	err = s.run(func(t *tx) error { a, err = t.DeleteAnalysisForUser(ctx, arg); return err })
	return a, err
}

func (s *Store) GetAnalysisForUser(ctx context.Context, arg repository.GetAnalysisForUserParams) (a repository.Analysis, err error) {
	err = s.run(func(t *tx) error { a, err = t.GetAnalysisForUser(ctx, arg); return err })
	return a, err
}

func (s *Store) GetUserByCustomerIDForUpdate(ctx context.Context, customerID string) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.GetUserByCustomerIDForUpdate(ctx, customerID); return err })
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.GetUserByEmail(ctx, email); return err })
	return u, err
}

func (s *Store) GetUserByEmailForUpdate(ctx context.Context, email string) (u repository.User, err error) {
	return s.GetUserByEmail(ctx, email)
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.GetUserByID(ctx, id); return err })
	return u, err
}

func (s *Store) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (u repository.User, err error) {
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserBySubscriptionIDForUpdate(ctx context.Context, subscriptionID string) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.GetUserBySubscriptionIDForUpdate(ctx, subscriptionID); return err })
	return u, err
}

func (s *Store) IncrementAnalysesUsed(ctx context.Context, id uuid.UUID) (n int32, err error) {
	err = s.run(func(t *tx) error { n, err = t.IncrementAnalysesUsed(ctx, id); return err })
	return n, err
}

func (s *Store) InsertWebhookEvent(ctx context.Context, arg repository.InsertWebhookEventParams) (n int64, err error) {
	err = s.run(func(t *tx) error { n, err = t.InsertWebhookEvent(ctx, arg); return err })
	return n, err
}

func (s *Store) ListRecentAnalysesByUser(ctx context.Context, arg repository.ListRecentAnalysesByUserParams) (out []repository.Analysis, err error) {
	err = s.run(func(t *tx) error { out, err = t.ListRecentAnalysesByUser(ctx, arg); return err })
	return out, err
}

func (s *Store) SetWebhookEventOutcome(ctx context.Context, arg repository.SetWebhookEventOutcomeParams) error {
	return s.run(func(t *tx) error { return t.SetWebhookEventOutcome(ctx, arg) })
}

func (s *Store) UpdateUserEntitlement(ctx context.Context, arg repository.UpdateUserEntitlementParams) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.UpdateUserEntitlement(ctx, arg); return err })
	return u, err
}

func (s *Store) UpdateUserName(ctx context.Context, arg repository.UpdateUserNameParams) (u repository.User, err error) {
	err = s.run(func(t *tx) error { u, err = t.UpdateUserName(ctx, arg); return err })
	return u, err
}

// tx operates on a state without locking; the caller holds the mutex.
type tx struct {
	state *state
	store *Store
}

var _ repository.Querier = (*tx)(nil)

func (t *tx) CountAnalysesByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range t.state.analyses {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateAnalysis(_ context.Context, arg repository.CreateAnalysisParams) (repository.Analysis, error) {
	if t.store.CreateAnalysisErr != nil {
		return repository.Analysis{}, t.store.CreateAnalysisErr
	}
	if _, ok := t.state.users[arg.UserID]; !ok {
		return repository.Analysis{}, &pgconn.PgError{Code: "23503", Message: "analyses_user_id_fkey"}
	}
	a := repository.Analysis{
		ID:           arg.ID,
		UserID:       arg.UserID,
		UserEmail:    arg.UserEmail,
		Trend:        arg.Trend,
		Confidence:   arg.Confidence,
		AnalysisText: arg.AnalysisText,
		ImageKey:     arg.ImageKey,
		CreatedAt:    time.Now().UTC(),
	}
	t.state.analyses = append(t.state.analyses, a)
	return a, nil
}

func (t *tx) CreateUser(_ context.Context, arg repository.CreateUserParams) (repository.User, error) {
	for _, u := range t.state.users {
		if strings.EqualFold(u.Email, arg.Email) {
			return repository.User{}, &pgconn.PgError{Code: repository.UniqueViolationCode, Message: "users_email_key"}
		}
	}
	now := time.Now().UTC()
	u := repository.User{
		ID:                 arg.ID,
		Email:              arg.Email,
		PasswordHash:       arg.PasswordHash,
		Name:               arg.Name,
		Plan:               arg.Plan,
		AnalysesLimit:      arg.AnalysesLimit,
		SubscriptionStatus: arg.SubscriptionStatus,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t.state.users[u.ID] = u
	return u, nil
}

func (t *tx) DeleteAnalysisForUser(_ context.Context, arg repository.DeleteAnalysisForUserParams) (repository.Analysis, error) {
	for i, a := range t.state.analyses {
		if a.ID == arg.ID && a.UserID == arg.UserID {
			t.state.analyses = append(t.state.analyses[:i:i], t.state.analyses[i+1:]...)
			return a, nil
		}
	}
	return repository.Analysis{}, sql.ErrNoRows
}

func (t *tx) GetAnalysisForUser(_ context.Context, arg repository.GetAnalysisForUserParams) (repository.Analysis, error) {
	for _, a := range t.state.analyses {
		if a.ID == arg.ID && a.UserID == arg.UserID {
			return a, nil
		}
	}
	return repository.Analysis{}, sql.ErrNoRows
}

func (t *tx) GetUserByCustomerIDForUpdate(_ context.Context, customerID string) (repository.User, error) {
	var found *repository.User
	for _, u := range t.state.users {
		if u.CustomerID.Valid && u.CustomerID.String == customerID {
			if found == nil || u.UpdatedAt.After(found.UpdatedAt) {
				u := u
				found = &u
			}
		}
	}
	if found == nil {
		return repository.User{}, sql.ErrNoRows
	}
	return *found, nil
}

func (t *tx) GetUserByEmail(_ context.Context, email string) (repository.User, error) {
	for _, u := range t.state.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (t *tx) GetUserByEmailForUpdate(ctx context.Context, email string) (repository.User, error) {
	return t.GetUserByEmail(ctx, email)
}

func (t *tx) GetUserByID(_ context.Context, id uuid.UUID) (repository.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (t *tx) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (repository.User, error) {
	return t.GetUserByID(ctx, id)
}

func (t *tx) GetUserBySubscriptionIDForUpdate(_ context.Context, subscriptionID string) (repository.User, error) {
	for _, u := range t.state.users {
		if u.SubscriptionID.Valid && u.SubscriptionID.String == subscriptionID {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (t *tx) IncrementAnalysesUsed(_ context.Context, id uuid.UUID) (int32, error) {
	u, ok := t.state.users[id]
	if !ok || u.AnalysesUsed >= u.AnalysesLimit {
		return 0, sql.ErrNoRows
	}
	u.AnalysesUsed++
	u.UpdatedAt = time.Now().UTC()
	t.state.users[id] = u
	return u.AnalysesUsed, nil
}

func (t *tx) InsertWebhookEvent(_ context.Context, arg repository.InsertWebhookEventParams) (int64, error) {
	key := eventKey{provider: arg.Provider, eventID: arg.EventID}
	if _, ok := t.state.events[key]; ok {
		return 0, nil
	}
	t.state.events[key] = repository.WebhookEvent{
		Provider:    arg.Provider,
		EventID:     arg.EventID,
		Kind:        arg.Kind,
		Payload:     arg.Payload,
		ProcessedAt: time.Now().UTC(),
	}
	return 1, nil
}

func (t *tx) ListRecentAnalysesByUser(_ context.Context, arg repository.ListRecentAnalysesByUserParams) ([]repository.Analysis, error) {
	var out []repository.Analysis
	for i := len(t.state.analyses) - 1; i >= 0 && int32(len(out)) < arg.Limit; i-- {
		if a := t.state.analyses[i]; a.UserID == arg.UserID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) SetWebhookEventOutcome(_ context.Context, arg repository.SetWebhookEventOutcomeParams) error {
	key := eventKey{provider: arg.Provider, eventID: arg.EventID}
	e, ok := t.state.events[key]
	if !ok {
		return nil
	}
	e.Outcome = arg.Outcome
	t.state.events[key] = e
	return nil
}

func (t *tx) UpdateUserEntitlement(_ context.Context, arg repository.UpdateUserEntitlementParams) (repository.User, error) {
	u, ok := t.state.users[arg.ID]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	if arg.SubscriptionID.Valid {
		for id, other := range t.state.users {
			if id != arg.ID && other.SubscriptionID.Valid && other.SubscriptionID.String == arg.SubscriptionID.String {
				return repository.User{}, &pgconn.PgError{Code: repository.UniqueViolationCode, Message: "idx_users_subscription_id"}
			}
		}
	}
	u.Plan = arg.Plan
	u.AnalysesLimit = arg.AnalysesLimit
	u.AnalysesUsed = arg.AnalysesUsed
	u.SubscriptionStatus = arg.SubscriptionStatus
	u.SubscriptionID = arg.SubscriptionID
	u.CustomerID = arg.CustomerID
	u.PlanStartedAt = arg.PlanStartedAt
	u.PlanEndsAt = arg.PlanEndsAt
	u.UpdatedAt = time.Now().UTC()
	t.state.users[u.ID] = u
	return u, nil
}

func (t *tx) UpdateUserName(_ context.Context, arg repository.UpdateUserNameParams) (repository.User, error) {
	u, ok := t.state.users[arg.ID]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	u.Name = arg.Name
	u.UpdatedAt = time.Now().UTC()
	t.state.users[u.ID] = u
	return u, nil
}
