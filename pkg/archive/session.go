package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenHeader carries the access token on every authenticated request.
const TokenHeader = "Preservica-Access-Token"

const (
	loginPath   = "/api/accesstoken/login"
	refreshPath = "/api/accesstoken/refresh"

	// refresh this long before the server-side expiry
	expirySkew = 30 * time.Second
)

// Credentials identify the archive user.
type Credentials struct {
	Username string
	Password string
	Tenant   string
}

type tokenResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh-token"`
	ValidFor     int    `json:"validFor"` // minutes
	User         string `json:"user"`
}

// Session holds the access token shared by every worker.
// Re-authentication is serialized: concurrent callers that saw the same stale
// token wait on a single refresh.
type Session struct {
	baseURL string
	creds   Credentials
	http    *http.Client

	group singleflight.Group

	mu           sync.RWMutex
	token        string
	refreshToken string
	expires      time.Time
}

func NewSession(baseURL string, creds Credentials, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
	}
}

// Token returns a valid access token, logging in or refreshing as needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, expires := s.token, s.expires
	s.mu.RUnlock()

	switch {
	case token == "":
		return s.Refresh(ctx, "")
	case !expires.IsZero() && time.Now().After(expires.Add(-expirySkew)):
		return s.Refresh(ctx, token)
	default:
		return token, nil
	}
}

// Refresh replaces stale with a new token. If another caller already replaced
// it, the current token is returned without a round trip.
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.group.Do("token:"+stale, func() (any, error) {
		s.mu.RLock()
		current, refreshToken := s.token, s.refreshToken
		s.mu.RUnlock()
		if current != "" && current != stale {
			return current, nil
		}

		if refreshToken != "" {
			tr, err := s.refresh(ctx, current, refreshToken)
			if err == nil {
				s.store(tr)
				slog.Info("Refreshed archive session", "user", s.creds.Username)
				return tr.Token, nil
			}
			slog.Warn("Session refresh failed, logging in again", "error", err)
		}

		tr, err := s.login(ctx)
		if err != nil {
			return "", err
		}
		s.store(tr)
		slog.Info("Logged in to archive", "user", s.creds.Username, "valid_for_min", tr.ValidFor)
		return tr.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) login(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("username", s.creds.Username)
	form.Set("password", s.creds.Password)
	if s.creds.Tenant != "" {
		form.Set("tenant", s.creds.Tenant)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return s.exchange("login", req)
}

func (s *Session) refresh(ctx context.Context, token, refreshToken string) (*tokenResponse, error) {
	q := url.Values{}
	q.Set("refreshToken", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+refreshPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set(TokenHeader, token)
	req.Header.Set("Accept", "application/json")
	return s.exchange("refresh token", req)
}

func (s *Session) exchange(op string, req *http.Request) (*tokenResponse, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(op, resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if !tr.Success || tr.Token == "" {
		return nil, &APIError{Op: op, StatusCode: http.StatusUnauthorized, Message: "no token in response"}
	}
	return &tr, nil
}

func (s *Session) store(tr *tokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tr.Token
	s.refreshToken = tr.RefreshToken
	if tr.ValidFor > 0 {
		s.expires = time.Now().Add(time.Duration(tr.ValidFor) * time.Minute)
	} else {
		s.expires = time.Time{}
	}
}
