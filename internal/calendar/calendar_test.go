package calendar

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/peakform/schedule/pkg/config"
	"github.com/peakform/schedule/pkg/logger"
	"github.com/peakform/schedule/pkg/models"
)

type fakeTokenStore struct {
	users   map[int]models.User
	updates []string
}

func (f *fakeTokenStore) GetUser(_ context.Context, id int) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user not found")
	}
	return u, nil
}

func (f *fakeTokenStore) UpdateTokens(_ context.Context, userID int, access, refresh string, _ time.Time) error {
	f.updates = append(f.updates, fmt.Sprintf("%d:%s:%s", userID, access, refresh))
	return nil
}

func (f *fakeTokenStore) SetCalendarIDs(_ context.Context, _ int, _, _ string) error {
	return nil
}

func newTestConnector(store *fakeTokenStore) *Connector {
	return NewConnector(logger.New("debug"), store, config.GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://peakform.example.com/oauth/google/callback",
		Timeout:      time.Second,
	}, []byte("signing-key"))
}

func TestAuthURLStateRoundTrip(t *testing.T) {
	c := newTestConnector(&fakeTokenStore{})

	raw, err := c.AuthURL(7, "/settings/calendar")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "offline", parsed.Query().Get("access_type"))

	claims, err := c.parseState(parsed.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "/settings/calendar", claims.ReturnPath)
	assert.NotEmpty(t, claims.Nonce)
}

func TestParseStateRejectsForgedState(t *testing.T) {
	signer := newTestConnector(&fakeTokenStore{})
	forged, err := signer.AuthURL(7, "/")
	require.NoError(t, err)
	parsed, err := url.Parse(forged)
	require.NoError(t, err)

	verifier := NewConnector(logger.New("debug"), &fakeTokenStore{}, config.GoogleConfig{
		Timeout: time.Second,
	}, []byte("other-key"))
	_, err = verifier.parseState(parsed.Query().Get("state"))
	assert.ErrorIs(t, err, ErrBadState)
}

func TestParseStateRejectsGarbage(t *testing.T) {
	c := newTestConnector(&fakeTokenStore{})
	_, err := c.parseState("not-a-token")
	assert.ErrorIs(t, err, ErrBadState)
}

type staticSource struct {
	tok *oauth2.Token
	err error
}

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, s.err }

func TestPersistingTokenSourceStoresRotatedToken(t *testing.T) {
	store := &fakeTokenStore{}
	src := &persistingTokenSource{
		ctx: context.Background(),
		src: staticSource{tok: &oauth2.Token{
			AccessToken:  "rotated",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
		}},
		store:  store,
		userID: 7,
		last:   "stale",
	}

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "rotated", tok.AccessToken)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "7:rotated:refresh", store.updates[0])

	// unchanged token is not persisted again
	_, err = src.Token()
	require.NoError(t, err)
	assert.Len(t, store.updates, 1)
}

func TestPersistingTokenSourceRefreshFailure(t *testing.T) {
	store := &fakeTokenStore{}
	src := &persistingTokenSource{
		ctx:    context.Background(),
		src:    staticSource{err: fmt.Errorf("invalid_grant")},
		store:  store,
		userID: 7,
	}

	_, err := src.Token()
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Empty(t, store.updates)
}

func TestSerializeUsesWallClockAndZone(t *testing.T) {
	cal := New(logger.New("debug"), nil, time.Second)
	user := models.User{Timezone: "Europe/Paris"}
	// 17:00 UTC is 18:00 in Paris in March (CET, +01:00)
	ev := models.Event{
		Title: "Training session with Ivan Ivanov",
		Start: time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC),
	}

	out := cal.serialize(ev, user)
	assert.Equal(t, "2024-03-04T18:00:00", out.Start.DateTime)
	assert.Equal(t, "Europe/Paris", out.Start.TimeZone)
	assert.Equal(t, "2024-03-04T19:00:00", out.End.DateTime)
	assert.Equal(t, "Europe/Paris", out.End.TimeZone)
}

func TestSerializeDefaultsToUTC(t *testing.T) {
	cal := New(logger.New("debug"), nil, time.Second)
	ev := models.Event{
		Start: time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC),
	}

	out := cal.serialize(ev, models.User{Timezone: "Not/AZone"})
	assert.Equal(t, "2024-03-04T17:00:00", out.Start.DateTime)
}

func TestParseBusy(t *testing.T) {
	interval, err := parseBusy(&gcal.TimePeriod{
		Start: "2024-03-04T10:00:00Z",
		End:   "2024-03-04T11:00:00Z",
	})
	require.NoError(t, err)
	assert.True(t, interval.Start.Equal(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)))
	assert.True(t, interval.End.Equal(time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)))

	_, err = parseBusy(&gcal.TimePeriod{Start: "yesterday", End: "2024-03-04T11:00:00Z"})
	assert.Error(t, err)
}

func TestIsGone(t *testing.T) {
	assert.True(t, isGone(&googleapi.Error{Code: 404}))
	assert.True(t, isGone(&googleapi.Error{Code: 410}))
	assert.False(t, isGone(&googleapi.Error{Code: 500}))
	assert.False(t, isGone(fmt.Errorf("plain error")))
}
