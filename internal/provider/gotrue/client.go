package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"counseling-portal-be/internal/entity"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/pkg/resilience"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Client talks to a GoTrue-compatible identity endpoint (password grant,
// logout, user fetch, recovery). It keeps the current access token so
// GetSession can answer without credentials.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client

	mu      sync.Mutex
	current *contract.ProviderSession

	listenerMu sync.Mutex
	listeners  map[int]contract.AuthListener
	nextId     int
}

func NewClient(baseURL, anonKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		anonKey:   anonKey,
		http:      &http.Client{},
		listeners: make(map[int]contract.AuthListener),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
	User        struct {
		Id          string                 `json:"id"`
		Email       string                 `json:"email"`
		AppMetadata map[string]interface{} `json:"app_metadata"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*contract.ProviderSession, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	endpoint := fmt.Sprintf("%s/auth/v1/token?grant_type=password", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// 4xx means the provider looked at the credentials and said no. That is
	// terminal, never retried.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, resilience.Rejected(errorMessage(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider error: %s", string(raw))
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, err
	}

	session, err := c.sessionFromToken(tr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	c.emit(contract.AuthEvent{Type: contract.AuthSignedIn, Session: session})
	return session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()

	defer c.emit(contract.AuthEvent{Type: contract.AuthSignedOut})

	if current == nil {
		return nil
	}

	endpoint := fmt.Sprintf("%s/auth/v1/logout", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, current.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context) (*contract.ProviderSession, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expiry.IsZero() && time.Now().After(current.Expiry) {
		return nil, nil
	}

	// Re-validate against the provider; a revoked token must not resurrect a
	// session locally.
	identity, err := c.fetchUser(ctx, current.AccessToken)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}
	return current, nil
}

func (c *Client) GetUser(ctx context.Context) (*entity.Identity, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	return c.fetchUser(ctx, current.AccessToken)
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	body, _ := json.Marshal(map[string]string{"email": email})

	endpoint := fmt.Sprintf("%s/auth/v1/recover", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	c.setHeaders(req, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return resilience.Rejected(errorMessage(raw))
	}
	return nil
}

func (c *Client) OnAuthEvent(listener contract.AuthListener) func() {
	c.listenerMu.Lock()
	id := c.nextId
	c.nextId++
	c.listeners[id] = listener
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

func (c *Client) emit(ev contract.AuthEvent) {
	c.listenerMu.Lock()
	listeners := make([]contract.AuthListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenerMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (c *Client) fetchUser(ctx context.Context, token string) (*entity.Identity, error) {
	endpoint := fmt.Sprintf("%s/auth/v1/user", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Token no longer valid: no session, but not a transport failure.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user fetch error: %s", string(raw))
	}

	var user struct {
		Id    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(user.Id)
	if err != nil {
		return nil, fmt.Errorf("malformed user id %q: %w", user.Id, err)
	}
	return &entity.Identity{Id: uid, Email: user.Email}, nil
}

func (c *Client) sessionFromToken(tr tokenResponse) (*contract.ProviderSession, error) {
	uid, err := uuid.Parse(tr.User.Id)
	if err != nil {
		return nil, fmt.Errorf("malformed user id %q: %w", tr.User.Id, err)
	}

	expiry := time.Time{}
	if tr.ExpiresAt > 0 {
		expiry = time.Unix(tr.ExpiresAt, 0)
	} else if tr.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else {
		// Fall back to the exp claim in the JWT itself.
		parser := jwt.NewParser()
		token, _, perr := parser.ParseUnverified(tr.AccessToken, jwt.MapClaims{})
		if perr == nil {
			if exp, eerr := token.Claims.GetExpirationTime(); eerr == nil && exp != nil {
				expiry = exp.Time
			}
		}
	}

	role := ""
	if r, ok := tr.User.AppMetadata["role"].(string); ok {
		role = r
	}

	return &contract.ProviderSession{
		Identity:    entity.Identity{Id: uid, Email: tr.User.Email},
		Role:        role,
		AccessToken: tr.AccessToken,
		Expiry:      expiry,
	}, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}
}

func errorMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		if er.ErrorDescription != "" {
			return er.ErrorDescription
		}
		if er.Msg != "" {
			return er.Msg
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return string(raw)
}
