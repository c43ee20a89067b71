package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/papertrade/internal/model"
)

// ErrNotSignedIn is returned by calls that need a signed-in user.
var ErrNotSignedIn = errors.New("not signed in")

// Transport is the REST surface the provider needs. *api.Client implements it.
type Transport interface {
	Login(ctx context.Context, email, password string) (string, error)
	Signup(ctx context.Context, reg model.Registration) (string, error)
	MeWithToken(ctx context.Context, token string) (*model.User, error)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (string, error)
	SetToken(ctx context.Context, token string) error
	LoadToken(ctx context.Context) (string, error)
}

// Realtime is the connection the provider opens and closes.
// connection.Manager implements it.
type Realtime interface {
	Connect(token string)
	Disconnect()
}

// Provider holds the current credential. Token and user change together.
type Provider struct {
	api    Transport
	rt     Realtime
	logger *slog.Logger

	mu       sync.RWMutex
	token    string
	user     *model.User
	loading  bool
	onChange func(*model.User)
}

// NewProvider creates a provider. It reports IsLoading until Restore returns.
func NewProvider(api Transport, rt Realtime, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		api:     api,
		rt:      rt,
		logger:  logger.With("component", "session"),
		loading: true,
	}
}

// OnChange sets a hook invoked after sign-in, sign-out and profile refresh.
// It receives nil on sign-out.
func (p *Provider) OnChange(fn func(*model.User)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Restore loads the persisted token and verifies it. A token the service
// rejects is cleared without reporting an error.
func (p *Provider) Restore(ctx context.Context) error {
	defer p.setLoading(false)

	token, err := p.api.LoadToken(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if token == "" {
		return nil
	}

	user, err := p.api.MeWithToken(ctx, token)
	if err != nil {
		p.logger.Warn("stored token rejected, clearing", "error", err)
		if err := p.api.SetToken(ctx, ""); err != nil {
			p.logger.Warn("clear stored token", "error", err)
		}
		return nil
	}

	p.commit(token, user)
	p.logger.Info("session restored", "user_id", user.ID)
	return nil
}

// Login signs in with email and password.
func (p *Provider) Login(ctx context.Context, email, password string) error {
	token, err := p.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return p.signIn(ctx, token)
}

// Register creates an account and signs in with it.
func (p *Provider) Register(ctx context.Context, reg model.Registration) error {
	token, err := p.api.Signup(ctx, reg)
	if err != nil {
		return err
	}
	return p.signIn(ctx, token)
}

// signIn verifies token, then commits and persists it.
func (p *Provider) signIn(ctx context.Context, token string) error {
	user, err := p.api.MeWithToken(ctx, token)
	if err != nil {
		return err
	}

	if err := p.api.SetToken(ctx, token); err != nil {
		p.logger.Warn("token not persisted", "error", err)
	}
	p.commit(token, user)

	p.logger.Info("signed in", "user_id", user.ID)
	return nil
}

// commit installs token and user and connects realtime.
func (p *Provider) commit(token string, user *model.User) {
	p.mu.Lock()
	p.token = token
	p.user = user
	hook := p.onChange
	p.mu.Unlock()

	p.rt.Connect(token)
	if hook != nil {
		hook(cloneUser(user))
	}
}

// Logout clears the credential, the persisted token and the realtime connection.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.user = nil
	hook := p.onChange
	p.mu.Unlock()

	err := p.api.SetToken(ctx, "")
	p.rt.Disconnect()
	if hook != nil {
		hook(nil)
	}

	p.logger.Info("signed out")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// UpdateProfile saves profile changes and reloads the user.
func (p *Provider) UpdateProfile(ctx context.Context, update model.ProfileUpdate) error {
	if p.Token() == "" {
		return ErrNotSignedIn
	}
	if _, err := p.api.UpdateProfile(ctx, update); err != nil {
		return err
	}
	return p.Refresh(ctx)
}

// Refresh reloads the user behind the current token.
func (p *Provider) Refresh(ctx context.Context) error {
	token := p.Token()
	if token == "" {
		return ErrNotSignedIn
	}

	user, err := p.api.MeWithToken(ctx, token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.token != token {
		// Signed out or switched users meanwhile.
		p.mu.Unlock()
		return nil
	}
	p.user = user
	hook := p.onChange
	p.mu.Unlock()

	if hook != nil {
		hook(cloneUser(user))
	}
	return nil
}

// User returns a copy of the signed-in user, or nil.
func (p *Provider) User() *model.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneUser(p.user)
}

// CurrentUser returns the signed-in user and whether there is one.
func (p *Provider) CurrentUser() (*model.User, bool) {
	u := p.User()
	return u, u != nil
}

// Token returns the current bearer token, or "".
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// IsLoading reports whether Restore has not finished yet.
func (p *Provider) IsLoading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) setLoading(v bool) {
	p.mu.Lock()
	p.loading = v
	p.mu.Unlock()
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
