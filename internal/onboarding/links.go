package onboarding

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Callback paths registered with the provider on every onboarding link. They
// must not change while links are outstanding.
const (
	ReturnPath  = "/pitchfork-api-tips/onboarding/return"
	RefreshPath = "/pitchfork-api-tips/onboarding/refresh"
)

var ErrInvalidState = errors.New("invalid callback state")

// Links builds the callback URLs handed to the provider and the frontend
// pages the callbacks redirect to. With a secret, the return URL also carries
// a signed state bound to the user id.
type Links struct {
	publicBase string
	appBase    string
	secret     []byte
	stateTTL   time.Duration
	now        func() time.Time
}

func NewLinks(publicBaseURL, appBaseURL, secret string) *Links {
	if appBaseURL == "" {
		appBaseURL = publicBaseURL
	}
	return &Links{
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		appBase:    strings.TrimRight(appBaseURL, "/"),
		secret:     []byte(secret),
		stateTTL:   24 * time.Hour,
		now:        time.Now,
	}
}

// Callbacks returns the refresh and return URLs for userID.
func (l *Links) Callbacks(userID string) (refreshURL, returnURL string, err error) {
	q := url.Values{"userId": {userID}}
	refreshURL = l.publicBase + RefreshPath + "?" + q.Encode()
	if len(l.secret) > 0 {
		state, err := l.signState(userID)
		if err != nil {
			return "", "", err
		}
		q.Set("state", state)
	}
	returnURL = l.publicBase + ReturnPath + "?" + q.Encode()
	return refreshURL, returnURL, nil
}

// RefreshURL is the refresh callback for userID, used when a return callback
// finds onboarding incomplete.
func (l *Links) RefreshURL(userID string) string {
	return l.publicBase + RefreshPath + "?" + url.Values{"userId": {userID}}.Encode()
}

// DashboardURL is where a waiter lands after finishing onboarding.
func (l *Links) DashboardURL() string {
	return l.appBase + "/dashboard?onboarding=completed"
}

// EntryURL is the frontend onboarding page, with a message code for the UI.
func (l *Links) EntryURL(userID, message string) string {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	if message != "" {
		q.Set("message", message)
	}
	return l.appBase + "/onboarding?" + q.Encode()
}

// VerifyState checks a return callback's state. Without a secret every state passes.
func (l *Links) VerifyState(userID, state string) error {
	if len(l.secret) == 0 {
		return nil
	}
	if state == "" {
		return fmt.Errorf("%w: missing", ErrInvalidState)
	}
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(userID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}

func (l *Links) signState(userID string) (string, error) {
	now := l.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(l.stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
}
