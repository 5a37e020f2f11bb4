package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/peakform/schedule/pkg/config"
	"github.com/peakform/schedule/pkg/models"
)

// dedicatedCalendarName is deterministic so provisioning stays idempotent even
// if the stored id is lost.
const dedicatedCalendarName = "PeakForm Sessions"

const stateTTL = 10 * time.Minute

var ErrBadState = errors.New("invalid oauth state")

type TokenStore interface {
	GetUser(ctx context.Context, id int) (models.User, error)
	UpdateTokens(ctx context.Context, userID int, access, refresh string, expiry time.Time) error
	SetCalendarIDs(ctx context.Context, userID int, primary, dedicated string) error
}

// Connector owns the OAuth credential lifecycle: the authorization-code flow,
// transparent token refresh with persistence, and provisioning of the
// app-managed dedicated calendar on first connection.
type Connector struct {
	log        *logrus.Entry
	store      TokenStore
	oauth      *oauth2.Config
	signingKey []byte
	timeout    time.Duration
}

func NewConnector(log *logrus.Logger, store TokenStore, cfg config.GoogleConfig, signingKey []byte) *Connector {
	return &Connector{
		log:   log.WithField("component", "connector"),
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		signingKey: signingKey,
		timeout:    cfg.Timeout,
	}
}

// AuthURL builds the provider consent URL. The state is a signed token carrying
// the initiating user and return path, since the provider redirects back
// without a session.
func (c *Connector) AuthURL(userID int, returnPath string) (string, error) {
	claims := models.OAuthState{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(stateTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:     userID,
		ReturnPath: returnPath,
		Nonce:      uuid.New().String(),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("err signing state: %w", err)
	}
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback exchanges the authorization code, persists the credential and
// provisions the dedicated calendar. Returns the path to redirect the user to.
func (c *Connector) HandleCallback(ctx context.Context, code, state string) (string, error) {
	claims, err := c.parseState(state)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: code exchange: %v", models.ErrProviderUnavailable, err)
	}
	if err = c.store.UpdateTokens(ctx, claims.UserID, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
		return "", fmt.Errorf("err persisting tokens: %w", err)
	}
	if _, err = c.EnsureDedicated(ctx, claims.UserID); err != nil {
		// the credential is saved; provisioning retries on next use
		c.log.Warnf("err provisioning dedicated calendar for user %d: %v", claims.UserID, err)
	}
	return claims.ReturnPath, nil
}

func (c *Connector) parseState(state string) (*models.OAuthState, error) {
	token, err := jwt.ParseWithClaims(state, &models.OAuthState{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method: %v", token.Header["alg"])
		}
		return c.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadState, err)
	}
	claims, ok := token.Claims.(*models.OAuthState)
	if !ok {
		return nil, ErrBadState
	}
	return claims, nil
}

// serviceFor returns an authorized calendar client for the user. Token refresh
// happens transparently; a rotated credential is persisted before the request
// that triggered it returns.
func (c *Connector) serviceFor(ctx context.Context, userID int) (*gcal.Service, models.User, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, models.User{}, err
	}
	if !user.CalendarConnected() {
		return nil, models.User{}, models.ErrNotConnected
	}
	tok := &oauth2.Token{
		AccessToken:  deref(user.AccessToken),
		RefreshToken: deref(user.RefreshToken),
	}
	if user.TokenExpiry != nil {
		tok.Expiry = *user.TokenExpiry
	}
	src := &persistingTokenSource{
		ctx:    ctx,
		src:    c.oauth.TokenSource(ctx, tok),
		store:  c.store,
		userID: userID,
		last:   tok.AccessToken,
	}
	srv, err := gcal.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, models.User{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	return srv, user, nil
}

// EnsureDedicated provisions the app-managed secondary calendar once per user.
// A second connection finds the stored id and creates nothing.
func (c *Connector) EnsureDedicated(ctx context.Context, userID int) (string, error) {
	srv, user, err := c.serviceFor(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.DedicatedCalendarID != nil && *user.DedicatedCalendarID != "" {
		return *user.DedicatedCalendarID, nil
	}
	created, err := srv.Calendars.Insert(&gcal.Calendar{
		Summary:  dedicatedCalendarName,
		TimeZone: user.Timezone,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: calendar insert: %v", models.ErrProviderUnavailable, err)
	}
	if err = c.store.SetCalendarIDs(ctx, userID, "primary", created.Id); err != nil {
		return "", fmt.Errorf("err persisting dedicated calendar id: %w", err)
	}
	c.log.Infof("provisioned dedicated calendar %s for user %d", created.Id, userID)
	return created.Id, nil
}

type persistingTokenSource struct {
	ctx    context.Context
	src    oauth2.TokenSource
	store  TokenStore
	userID int
	last   string
}

// Token persists a rotated credential before handing it out. Losing a rotated
// refresh token permanently breaks the user's sync.
func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh: %v", models.ErrProviderUnavailable, err)
	}
	if tok.AccessToken != p.last {
		if err = p.store.UpdateTokens(p.ctx, p.userID, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
			return nil, fmt.Errorf("err persisting rotated token: %w", err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
