package credential

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Pool is the in-process view of the credential set, keyed by secret.
// Every mutation is a read-modify-write of one record under the pool mutex,
// followed by a full save through the Store. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	store   *Store
	order   []string
	records map[string]Credential

	onRemove []func(secret string)
}

// OpenPool loads the credential set from store.
func OpenPool(ctx context.Context, store *Store) (*Pool, error) {
	creds, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		store:   store,
		records: make(map[string]Credential, len(creds)),
	}
	for _, c := range creds {
		p.order = append(p.order, c.Secret)
		p.records[c.Secret] = c
	}
	return p, nil
}

// List returns a snapshot of all credentials in insertion order.
func (p *Pool) List() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Credential, 0, len(p.order))
	for _, secret := range p.order {
		out = append(out, p.records[secret])
	}
	return out
}

// Active returns the credentials with status active, in insertion order.
func (p *Pool) Active() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Credential
	for _, secret := range p.order {
		if c := p.records[secret]; c.IsActive() {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of registered credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Get returns the credential registered under secret.
func (p *Pool) Get(secret string) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.records[secret]
	return c, ok
}

// Add registers a new active credential. Exact duplicates are rejected.
func (p *Pool) Add(ctx context.Context, secret string) (Credential, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Credential{}, ErrEmptySecret
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.records[secret]; exists {
		return Credential{}, fmt.Errorf("%w: %s", ErrDuplicateCredential, Mask(secret))
	}

	c := Credential{
		Secret:  secret,
		Status:  StatusActive,
		AddedAt: p.store.Now(),
	}
	p.order = append(p.order, secret)
	p.records[secret] = c

	if err := p.persistLocked(ctx); err != nil {
		p.order = p.order[:len(p.order)-1]
		delete(p.records, secret)
		return Credential{}, err
	}

	log.Debug().Str("key", Mask(secret)).Msg("Registered credential")
	return c, nil
}

// Seed registers every secret that is not yet known and returns how many were added.
func (p *Pool) Seed(ctx context.Context, secrets []string) (int, error) {
	added := 0
	for _, s := range secrets {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if _, err := p.Add(ctx, s); err != nil {
			if errors.Is(err, ErrDuplicateCredential) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}

// Remove deletes the credential registered under secret.
func (p *Pool) Remove(ctx context.Context, secret string) error {
	if err := p.remove(ctx, secret); err != nil {
		return err
	}

	p.mu.Lock()
	hooks := slices.Clone(p.onRemove)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(secret)
	}
	return nil
}

// OnRemove registers fn to run after a credential is removed and the removal
// is saved. fn runs outside the pool lock.
func (p *Pool) OnRemove(fn func(secret string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRemove = append(p.onRemove, fn)
}

func (p *Pool) remove(ctx context.Context, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.records[secret]
	if !ok {
		return ErrCredentialNotFound
	}

	prevOrder := p.order
	p.order = slices.DeleteFunc(slices.Clone(p.order), func(s string) bool { return s == secret })
	delete(p.records, secret)

	if err := p.persistLocked(ctx); err != nil {
		p.order = prevOrder
		p.records[secret] = prev
		return err
	}

	log.Debug().Str("key", Mask(secret)).Msg("Removed credential")
	return nil
}

// Update applies fn to the latest copy of one record and persists the result.
func (p *Pool) Update(ctx context.Context, secret string, fn func(*Credential)) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.records[secret]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}

	next := prev
	fn(&next)
	next.Secret = prev.Secret
	p.records[secret] = next

	if err := p.persistLocked(ctx); err != nil {
		p.records[secret] = prev
		return Credential{}, err
	}
	return next, nil
}

// Reset returns a credential to active and clears its error.
func (p *Pool) Reset(ctx context.Context, secret string) (Credential, error) {
	return p.Update(ctx, secret, func(c *Credential) {
		c.Status = StatusActive
		c.ErrorMessage = ""
	})
}

// MarkUsed records a successful use.
func (p *Pool) MarkUsed(ctx context.Context, secret string) (Credential, error) {
	return p.Update(ctx, secret, func(c *Credential) {
		c.UsageCount++
	})
}

// MarkFailed moves a credential out of rotation with the given reason.
// Passing StatusActive is a programming error and is stored as StatusError.
func (p *Pool) MarkFailed(ctx context.Context, secret string, status Status, message string) (Credential, error) {
	if status == StatusActive {
		status = StatusError
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultErrorMessage
	}

	return p.Update(ctx, secret, func(c *Credential) {
		c.Status = status
		c.ErrorMessage = message
	})
}

func (p *Pool) persistLocked(ctx context.Context) error {
	creds := make([]Credential, 0, len(p.order))
	for _, secret := range p.order {
		creds = append(creds, p.records[secret])
	}
	return p.store.Save(ctx, creds)
}

