package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"auth-gateway/internal/identity/domain"
)

type memAccount struct {
	id           int64
	email        string
	passwordHash string
	fullName     string
	avatarURL    string
	createdAt    time.Time
}

type memLinkKey struct{ provider, subject string }

type memLink struct {
	id        int64 // owning users row (joined) or its own external id (partitioned)
	provider  string
	subject   string
	email     string
	fullName  string
	avatarURL string
	blob      json.RawMessage
	createdAt time.Time
	updatedAt time.Time
}

// MemoryRepository implements Repository in process memory for either model.
// It backs tests and runs without DATABASE_URL; the mutex stands in for the
// storage constraints.
type MemoryRepository struct {
	mu       sync.Mutex
	model    domain.Model
	now      func() time.Time
	nextAcct int64
	nextExt  int64
	accounts map[int64]*memAccount // users (joined) or local_identities (partitioned)
	links    map[memLinkKey]*memLink
}

// NewMemoryRepository returns an empty repository with model's semantics.
func NewMemoryRepository(model domain.Model) *MemoryRepository {
	return &MemoryRepository{
		model:    model,
		now:      func() time.Time { return time.Now().UTC() },
		accounts: make(map[int64]*memAccount),
		links:    make(map[memLinkKey]*memLink),
	}
}

func (r *MemoryRepository) Model() domain.Model { return r.model }

func (r *MemoryRepository) accountKind() domain.Kind {
	if r.model == domain.ModelJoined {
		return domain.KindUser
	}
	return domain.KindLocal
}

func (r *MemoryRepository) localOf(a *memAccount) *domain.LocalIdentity {
	return &domain.LocalIdentity{
		Ref:          domain.Reference{Kind: r.accountKind(), ID: a.id},
		Email:        a.email,
		PasswordHash: a.passwordHash,
		FullName:     a.fullName,
		AvatarURL:    a.avatarURL,
		CreatedAt:    a.createdAt,
	}
}

func (r *MemoryRepository) externalOf(l *memLink) *domain.ExternalIdentity {
	e := &domain.ExternalIdentity{
		Provider:   l.provider,
		SubjectID:  l.subject,
		RawProfile: append(json.RawMessage(nil), l.blob...),
		CreatedAt:  l.createdAt,
		UpdatedAt:  l.updatedAt,
	}
	if r.model == domain.ModelJoined {
		a := r.accounts[l.id]
		e.Ref = domain.Reference{Kind: domain.KindUser, ID: a.id}
		e.Email, e.FullName, e.AvatarURL = a.email, a.fullName, a.avatarURL
		return e
	}
	e.Ref = domain.Reference{Kind: domain.KindExternal, ID: l.id}
	e.Email, e.FullName, e.AvatarURL = l.email, l.fullName, l.avatarURL
	return e
}

func (r *MemoryRepository) findLocal(email string) *memAccount {
	for _, a := range r.accounts {
		if a.passwordHash != "" && strings.EqualFold(a.email, email) {
			return a
		}
	}
	return nil
}

func (r *MemoryRepository) FindLocalByEmail(_ context.Context, email string) (*domain.LocalIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.findLocal(email); a != nil {
		return r.localOf(a), nil
	}
	return nil, nil
}

func (r *MemoryRepository) CreateLocal(_ context.Context, email, passwordHash string) (*domain.LocalIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocal(email) != nil {
		return nil, ErrConflict
	}
	r.nextAcct++
	a := &memAccount{id: r.nextAcct, email: email, passwordHash: passwordHash, createdAt: r.now()}
	r.accounts[a.id] = a
	return r.localOf(a), nil
}

func (r *MemoryRepository) FindExternalByProvider(_ context.Context, provider, subjectID string) (*domain.ExternalIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[memLinkKey{provider, subjectID}]; ok {
		return r.externalOf(l), nil
	}
	return nil, nil
}

func (r *MemoryRepository) UpsertExternal(_ context.Context, p *domain.ExternalProfile) (*domain.ExternalIdentity, bool, error) {
	email, fullName, avatarURL, blob, err := profileFields(p)
	if err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	key := memLinkKey{p.Provider, p.SubjectID}
	if l, ok := r.links[key]; ok {
		l.blob = blob
		l.updatedAt = now
		r.refresh(l, fullName, avatarURL)
		return r.externalOf(l), false, nil
	}
	l := &memLink{provider: p.Provider, subject: p.SubjectID, blob: blob, createdAt: now, updatedAt: now}
	if r.model == domain.ModelJoined {
		r.nextAcct++
		r.accounts[r.nextAcct] = &memAccount{id: r.nextAcct, email: email, fullName: fullName, avatarURL: avatarURL, createdAt: now}
		l.id = r.nextAcct
	} else {
		r.nextExt++
		l.id = r.nextExt
		l.email, l.fullName, l.avatarURL = email, fullName, avatarURL
	}
	r.links[key] = l
	return r.externalOf(l), true, nil
}

// refresh overwrites non-empty display fields on the record that owns them.
func (r *MemoryRepository) refresh(l *memLink, fullName, avatarURL string) {
	if r.model == domain.ModelJoined {
		a := r.accounts[l.id]
		if fullName != "" {
			a.fullName = fullName
		}
		if avatarURL != "" {
			a.avatarURL = avatarURL
		}
		return
	}
	if fullName != "" {
		l.fullName = fullName
	}
	if avatarURL != "" {
		l.avatarURL = avatarURL
	}
}

func (r *MemoryRepository) FindLocalByEmailForMerge(_ context.Context, email string) (*domain.LocalIdentity, error) {
	if r.model != domain.ModelJoined {
		return nil, ErrUnsupported
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.findLocal(email); a != nil {
		return r.localOf(a), nil
	}
	var oldest *memAccount
	for _, a := range r.accounts {
		if strings.EqualFold(a.email, email) && (oldest == nil || a.id < oldest.id) {
			oldest = a
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return r.localOf(oldest), nil
}

func (r *MemoryRepository) LinkExternal(_ context.Context, ref domain.Reference, p *domain.ExternalProfile) (*domain.ExternalIdentity, error) {
	if r.model != domain.ModelJoined || ref.Kind != domain.KindUser {
		return nil, ErrUnsupported
	}
	_, fullName, avatarURL, blob, err := profileFields(p)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	key := memLinkKey{p.Provider, p.SubjectID}
	l, ok := r.links[key]
	if ok {
		l.blob = blob
		l.updatedAt = now
	} else {
		if _, exists := r.accounts[ref.ID]; !exists {
			return nil, ErrConflict
		}
		for _, other := range r.links {
			if other.id == ref.ID && other.provider == p.Provider {
				return nil, ErrConflict
			}
		}
		l = &memLink{id: ref.ID, provider: p.Provider, subject: p.SubjectID, blob: blob, createdAt: now, updatedAt: now}
		r.links[key] = l
	}
	r.refresh(l, fullName, avatarURL)
	return r.externalOf(l), nil
}

func (r *MemoryRepository) FindExternalByReference(_ context.Context, ref domain.Reference, provider string) (*domain.ExternalIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := domain.KindExternal
	if r.model == domain.ModelJoined {
		want = domain.KindUser
	}
	if ref.Kind != want {
		return nil, nil
	}
	for _, l := range r.links {
		if l.id == ref.ID && l.provider == provider {
			return r.externalOf(l), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FetchCanonical(_ context.Context, ref domain.Reference) (*domain.ProfileView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case ref.Kind == r.accountKind():
		if a, ok := r.accounts[ref.ID]; ok {
			return domain.LocalView(r.localOf(a)), nil
		}
	case ref.Kind == domain.KindExternal && r.model == domain.ModelPartitioned:
		for _, l := range r.links {
			if l.id == ref.ID {
				return domain.ExternalView(r.externalOf(l)), nil
			}
		}
	}
	return nil, nil
}
