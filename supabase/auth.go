package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// SessionEvent identifies a change to the authenticated session.
type SessionEvent string

const (
	EventSignedIn       SessionEvent = "signed_in"
	EventSignedOut      SessionEvent = "signed_out"
	EventTokenRefreshed SessionEvent = "token_refreshed"
)

// SessionChange is delivered to subscribers when the session changes.
// Session is nil for EventSignedOut.
type SessionChange struct {
	Event   SessionEvent
	Session *Session
}

// Session is an authenticated session returned by the auth endpoints.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User is the backend's view of an authenticated identity.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Auth handles the identity lifecycle and tracks the current session.
// Subscribers receive every sign-in, sign-out and token refresh, so stores
// that mirror the identity can stay in sync.
type Auth struct {
	client *Client

	mu      sync.RWMutex
	session *Session
	subs    map[int]chan SessionChange
	nextSub int
}

func newAuth(c *Client) *Auth {
	return &Auth{client: c, subs: make(map[int]chan SessionChange)}
}

// Session returns the current session, or nil when signed out.
func (a *Auth) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Subscribe registers for session changes. The returned release func must be
// called when the subscriber is torn down; after release the channel is
// closed and no further events arrive.
func (a *Auth) Subscribe() (<-chan SessionChange, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	ch := make(chan SessionChange, 8)
	a.subs[id] = ch

	release := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if sub, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(sub)
		}
	}
	return ch, release
}

// broadcast must not be called with the mutex held.
func (a *Auth) broadcast(change SessionChange) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ch := range a.subs {
		select {
		case ch <- change:
		default:
			// Subscriber is not draining; dropping beats blocking auth calls.
		}
	}
}

func (a *Auth) setSession(sess *Session, event SessionEvent) {
	a.mu.Lock()
	a.session = sess
	a.mu.Unlock()
	a.broadcast(SessionChange{Event: event, Session: sess})
}

// SignUp registers a new identity. Metadata is stored as user metadata and
// seeds the profile row on the backend.
func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}
	sess, err := a.tokenRequest(ctx, a.client.baseURL+"/auth/v1/signup", payload)
	if err != nil {
		return nil, err
	}
	a.setSession(sess, EventSignedIn)
	return sess, nil
}

// SignIn authenticates with email and password.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]any{"email": email, "password": password}
	sess, err := a.tokenRequest(ctx, a.client.baseURL+"/auth/v1/token?grant_type=password", payload)
	if err != nil {
		return nil, err
	}
	a.setSession(sess, EventSignedIn)
	return sess, nil
}

// Refresh exchanges the refresh token for a new access token.
func (a *Auth) Refresh(ctx context.Context) (*Session, error) {
	current := a.Session()
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("supabase: no session to refresh")
	}
	payload := map[string]any{"refresh_token": current.RefreshToken}
	sess, err := a.tokenRequest(ctx, a.client.baseURL+"/auth/v1/token?grant_type=refresh_token", payload)
	if err != nil {
		return nil, err
	}
	a.setSession(sess, EventTokenRefreshed)
	return sess, nil
}

// SignOut revokes the session on the backend. The local session is only
// cleared when the revoke call succeeds, so a failed sign-out leaves the
// client signed in.
func (a *Auth) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if err := a.client.do(req, nil); err != nil {
		return err
	}
	a.setSession(nil, EventSignedOut)
	return nil
}

func (a *Auth) tokenRequest(ctx context.Context, reqURL string, payload map[string]any) (*Session, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var sess Session
	if err := a.authDo(req, &sess); err != nil {
		return nil, err
	}
	if sess.User == nil {
		return nil, fmt.Errorf("supabase: auth response missing user")
	}
	return &sess, nil
}

// authDo is like Client.do but always authenticates with the API key; token
// endpoints must not carry a stale user bearer token.
func (a *Auth) authDo(req *http.Request, dest any) error {
	req.Header.Set("apikey", a.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+a.client.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := a.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body := make([]byte, 0)
		if resp.Body != nil {
			buf := new(bytes.Buffer)
			_, _ = buf.ReadFrom(resp.Body)
			body = buf.Bytes()
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// KeepFresh refreshes the session shortly before it expires until ctx is
// cancelled. It is a no-op while signed out.
func (a *Auth) KeepFresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.Session() == nil {
				continue
			}
			refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			_, _ = a.Refresh(refreshCtx)
			cancel()
		}
	}
}
