package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/pkg/mailer"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/pkg/resilience"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenExpiry = time.Hour * 24

// Account is a seeded dev user.
type Account struct {
	Id           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	Blocked      bool
}

// Provider is the embedded identity provider used for development and tests.
// It keeps accounts in memory, issues HS256 tokens, and emits the same auth
// events a remote provider would.
type Provider struct {
	jwtSecret    []byte
	emailService mailer.IEmailService

	mu       sync.Mutex
	accounts map[string]*Account // keyed by lowercased email
	current  *contract.ProviderSession

	listenerMu sync.Mutex
	listeners  map[int]contract.AuthListener
	nextId     int
}

func NewProvider(jwtSecret string, emailService mailer.IEmailService) *Provider {
	if jwtSecret == "" {
		jwtSecret = "default_secret"
	}
	return &Provider{
		jwtSecret:    []byte(jwtSecret),
		emailService: emailService,
		accounts:     make(map[string]*Account),
		listeners:    make(map[int]contract.AuthListener),
	}
}

// AddAccount seeds a user. The password is stored bcrypt-hashed.
func (p *Provider) AddAccount(email, password, role string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acc := &Account{
		Id:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}

	p.mu.Lock()
	p.accounts[strings.ToLower(email)] = acc
	p.mu.Unlock()
	return acc, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*contract.ProviderSession, error) {
	p.mu.Lock()
	acc, found := p.accounts[strings.ToLower(email)]
	p.mu.Unlock()

	// Same message for unknown user and wrong password; don't leak existence.
	if !found {
		return nil, resilience.Rejected("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, resilience.Rejected("invalid credentials")
	}
	if acc.Blocked {
		return nil, resilience.Rejected("account is blocked")
	}

	expiry := time.Now().Add(accessTokenExpiry)
	claims := jwt.MapClaims{
		"sub":   acc.Id.String(),
		"email": acc.Email,
		"role":  acc.Role,
		"exp":   expiry.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return nil, err
	}

	session := &contract.ProviderSession{
		Identity:    entity.Identity{Id: acc.Id, Email: acc.Email},
		Role:        acc.Role,
		AccessToken: signed,
		Expiry:      expiry,
	}

	p.mu.Lock()
	p.current = session
	p.mu.Unlock()

	p.emit(contract.AuthEvent{Type: contract.AuthSignedIn, Session: session})
	return session, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.emit(contract.AuthEvent{Type: contract.AuthSignedOut})
	return nil
}

func (p *Provider) GetSession(ctx context.Context) (*contract.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, nil
	}
	if time.Now().After(p.current.Expiry) {
		p.current = nil
		return nil, nil
	}
	return p.current, nil
}

func (p *Provider) GetUser(ctx context.Context) (*entity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, nil
	}
	identity := p.current.Identity
	return &identity, nil
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email string) error {
	p.mu.Lock()
	_, found := p.accounts[strings.ToLower(email)]
	p.mu.Unlock()

	// Don't leak exists
	if !found {
		return nil
	}

	if p.emailService == nil {
		return nil
	}
	token := uuid.New().String()
	go func() {
		if err := p.emailService.SendResetToken(email, token); err != nil {
			fmt.Printf("Error sending reset password email: %v\n", err)
		}
	}()
	return nil
}

// RefreshToken re-issues the current token and emits TOKEN_REFRESHED, the way
// a remote provider would refresh out-of-band.
func (p *Provider) RefreshToken() error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		return fmt.Errorf("no active session")
	}

	expiry := time.Now().Add(accessTokenExpiry)
	claims := jwt.MapClaims{
		"sub":   current.Identity.Id.String(),
		"email": current.Identity.Email,
		"role":  current.Role,
		"exp":   expiry.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.jwtSecret)
	if err != nil {
		return err
	}

	refreshed := &contract.ProviderSession{
		Identity:    current.Identity,
		Role:        current.Role,
		AccessToken: signed,
		Expiry:      expiry,
	}

	p.mu.Lock()
	p.current = refreshed
	p.mu.Unlock()

	p.emit(contract.AuthEvent{Type: contract.AuthTokenRefreshed, Session: refreshed})
	return nil
}

func (p *Provider) OnAuthEvent(listener contract.AuthListener) func() {
	p.listenerMu.Lock()
	id := p.nextId
	p.nextId++
	p.listeners[id] = listener
	p.listenerMu.Unlock()

	return func() {
		p.listenerMu.Lock()
		delete(p.listeners, id)
		p.listenerMu.Unlock()
	}
}

func (p *Provider) emit(ev contract.AuthEvent) {
	p.listenerMu.Lock()
	listeners := make([]contract.AuthListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.listenerMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
