// Package auth handles GitHub OAuth login and JWT session tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/repopulse/repopulse/pkg/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// UserStore defines the user data access the auth service needs.
type UserStore interface {
	FindUserByGithubID(ctx context.Context, githubID int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
}

// Config holds OAuth and token settings for the Service.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	JWTSecret    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// Service exchanges GitHub OAuth codes for users and issues JWT pairs.
type Service struct {
	users      UserStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewService creates a new auth Service.
func NewService(users UserStore, cfg Config) *Service {
	return &Service{
		users:      users,
		jwtSecret:  []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"repo", "read:user", "user:email"},
			RedirectURL:  cfg.RedirectURL,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL returns the GitHub OAuth authorization URL.
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// TokenPair holds an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CallbackResult is the outcome of a completed OAuth callback. GithubToken
// is the raw GitHub access token, needed later to build analysis payloads.
type CallbackResult struct {
	User        *models.User
	Tokens      *TokenPair
	GithubToken string
}

// Callback exchanges the authorization code, upserts the user, and returns
// a JWT pair plus the GitHub access token.
func (s *Service) Callback(ctx context.Context, code string) (*CallbackResult, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github token exchange: %w", err)
	}

	info, err := s.fetchGitHubUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch github user: %w", err)
	}

	now := time.Now().UTC()
	user, err := s.users.UpsertUser(ctx, &models.User{
		ID:        uuid.New(),
		GithubID:  info.ID,
		Login:     info.Login,
		Email:     nilIfEmpty(info.Email),
		AvatarURL: nilIfEmpty(info.AvatarURL),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert github user: %w", err)
	}

	pair, err := s.generateTokenPair(user.ID, user.GithubID)
	if err != nil {
		return nil, err
	}

	return &CallbackResult{User: user, Tokens: pair, GithubToken: token.AccessToken}, nil
}

// Identity is the authenticated principal carried by a validated token.
// UserID is authoritative when set; GithubID supports the fallback
// resolution path for tokens minted without an internal user id.
type Identity struct {
	UserID   uuid.UUID
	GithubID int64
}

// ValidateToken validates a JWT access token and returns the identity.
func (s *Service) ValidateToken(tokenString string) (*Identity, error) {
	claims, err := s.parseClaims(tokenString, "access")
	if err != nil {
		return nil, err
	}
	return identityFromClaims(claims)
}

// RefreshAccessToken validates a refresh token and returns a new token pair.
func (s *Service) RefreshAccessToken(refreshToken string) (*TokenPair, error) {
	claims, err := s.parseClaims(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}
	id, err := identityFromClaims(claims)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(id.UserID, id.GithubID)
}

func (s *Service) parseClaims(tokenString, wantType string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	id := &Identity{}
	if sub, _ := claims["sub"].(string); sub != "" {
		userID, err := uuid.Parse(sub)
		if err != nil {
			return nil, ErrInvalidToken
		}
		id.UserID = userID
	}
	if gh, ok := claims["github_id"].(float64); ok {
		id.GithubID = int64(gh)
	}
	if id.UserID == uuid.Nil && id.GithubID == 0 {
		return nil, ErrInvalidToken
	}
	return id, nil
}

func (s *Service) generateTokenPair(userID uuid.UUID, githubID int64) (*TokenPair, error) {
	now := time.Now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       userID.String(),
		"github_id": githubID,
		"type":      "access",
		"iat":       now.Unix(),
		"exp":       now.Add(s.accessTTL).Unix(),
	})
	accessStr, err := access.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       userID.String(),
		"github_id": githubID,
		"type":      "refresh",
		"iat":       now.Unix(),
		"exp":       now.Add(s.refreshTTL).Unix(),
	})
	refreshStr, err := refresh.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessStr, RefreshToken: refreshStr}, nil
}

type githubUserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

func (s *Service) fetchGitHubUser(ctx context.Context, accessToken string) (*githubUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user endpoint returned %d", resp.StatusCode)
	}

	var info githubUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
