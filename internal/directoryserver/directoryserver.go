// Package directoryserver is the HTTP front door onto internal/keystore's
// Postgres-backed Keystore: the place members publish the init key
// others use to Add them, and fetch one another's
// published keys from. It never sees a private key cross the wire —
// RegisterKeypair is a capability keystore.Postgres exposes for a
// co-located Session, not something this HTTP layer calls.
package directoryserver

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/FHMS-ITS/mls-explained/internal/auth"
	"github.com/FHMS-ITS/mls-explained/internal/keystore"
	"github.com/FHMS-ITS/mls-explained/internal/ratelimit"
)

// Service wraps a keystore.Postgres with the one thing the raw Keystore
// interface doesn't capture: a member publishing a new init key
// replaces whatever they had published before, and the publishing member
// is sent an SMS saying it just rotated. It also gates publish and
// fetch through an Authenticator and Limiter, both of which may be nil
// (an unconfigured server runs open and unthrottled).
type Service struct {
	store  *keystore.Postgres
	notify *notifier
	auth   *auth.Authenticator
	limit  *ratelimit.Limiter
}

func NewService(db *sql.DB, authenticator *auth.Authenticator, limiter *ratelimit.Limiter) *Service {
	return &Service{
		store:  keystore.NewPostgres(db),
		notify: newNotifier(),
		auth:   authenticator,
		limit:  limiter,
	}
}

// Authenticate checks that authorizationHeader is a valid bearer token
// for userName. A Service with no Authenticator configured accepts
// every caller.
func (s *Service) Authenticate(userName, authorizationHeader string) error {
	if s.auth == nil {
		return nil
	}
	return s.auth.VerifyHeader(userName, authorizationHeader)
}

// IssueToken mints a bearer token for userName. Exposed so a freshly
// registered member can obtain one; a Service with no Authenticator
// configured has nothing to issue.
func (s *Service) IssueToken(userName string) (string, error) {
	if s.auth == nil {
		return "", fmt.Errorf("directoryserver: authentication is not configured")
	}
	return s.auth.IssueToken(userName), nil
}

// EnsureSchema creates the backing tables if they do not already exist.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.store.EnsureSchema(ctx)
}

// PublishInitKey registers userName's init key, notifying them by SMS
// if this replaces a previously published key (a silent rotation is how
// a man-in-the-middle directory compromise would look, so the member
// should hear about it even though this service cannot itself detect
// malice).
func (s *Service) PublishInitKey(ctx context.Context, userName string, initKey []byte) error {
	previous, err := s.store.FetchInitKey(userName)
	hadPrevious := err == nil && len(previous) > 0

	if err := s.store.RegisterInitKey(ctx, userName, initKey); err != nil {
		return fmt.Errorf("directoryserver: publish init key: %w", err)
	}

	if hadPrevious {
		s.notify.keyRotated(userName)
	}
	return nil
}

// FetchInitKey returns userName's currently published init key, after
// checking requesterUser/ip against the fetch rate limits (a Service
// with no Limiter configured skips the check).
func (s *Service) FetchInitKey(ctx context.Context, userName, requesterUser, ip string) ([]byte, error) {
	if err := s.limit.CheckInitKeyFetch(ctx, requesterUser, userName, ip); err != nil {
		return nil, fmt.Errorf("directoryserver: fetch init key: %w", err)
	}

	initKey, err := s.store.FetchInitKey(userName)
	if err != nil {
		return nil, fmt.Errorf("directoryserver: fetch init key: %w", err)
	}
	return initKey, nil
}

// notifier sends a key-rotation SMS via Twilio. It is a soft
// dependency: an unconfigured environment just skips the notification
// rather than failing the publish that triggered it.
type notifier struct {
	client    *twilio.RestClient
	fromPhone string
}

func newNotifier() *notifier {
	sid := os.Getenv("TWILIO_ACCOUNT_SID")
	token := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_FROM_NUMBER")
	if sid == "" || token == "" || from == "" {
		return &notifier{}
	}
	return &notifier{
		client:    twilio.NewRestClientWithParams(twilio.ClientParams{Username: sid, Password: token}),
		fromPhone: from,
	}
}

func (n *notifier) keyRotated(userName string) {
	if n.client == nil {
		return
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.fromPhone)
	params.SetTo(userName) // caller is expected to publish under a phone-number identity
	params.SetBody("Your published key was just replaced. If this wasn't you, check your other devices.")
	n.client.Api.CreateMessage(params)
}
