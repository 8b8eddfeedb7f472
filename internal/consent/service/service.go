package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"namegate/internal/consent/models"
	profilemodels "namegate/internal/profile/models"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
	"namegate/pkg/platform/sentinel"
	"namegate/pkg/requestcontext"
)

// Store is the persistence port for consents.
type Store interface {
	Create(ctx context.Context, c *models.Consent, now time.Time) error
	Update(ctx context.Context, c *models.Consent) error
	FindByID(ctx context.Context, consentID id.ConsentID) (*models.Consent, error)
	FindLiveByPair(ctx context.Context, granterID, requesterID id.UserID, now time.Time) (*models.Consent, error)
	FindGrantedByPair(ctx context.Context, granterID, requesterID id.UserID, now time.Time) ([]*models.Consent, error)
	ListByGranter(ctx context.Context, granterID id.UserID) ([]*models.Consent, error)
	ListByRequester(ctx context.Context, requesterID id.UserID) ([]*models.Consent, error)
}

// ContextSource resolves a context so requests can be validated against its
// owner.
type ContextSource interface {
	FindContextByID(ctx context.Context, contextID id.ContextID) (*profilemodels.Context, error)
}

// TransitionRecorder counts consent state transitions, labelled by kind.
type TransitionRecorder interface {
	IncConsentTransition(transition string)
}

// Service runs the consent lifecycle. Request opens the pair's consent; Grant
// and Revoke move it, keyed by the (granter, requester) pair rather than a
// consent id, mirroring how granters think about it: "let this person see my
// work name", "stop letting them". Only the granter moves a consent forward.
type Service struct {
	store       Store
	contexts    ContextSource
	logger      *slog.Logger
	transitions TransitionRecorder
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTransitionRecorder(rec TransitionRecorder) Option {
	return func(s *Service) { s.transitions = rec }
}

func New(store Store, contexts ContextSource, opts ...Option) *Service {
	s := &Service{store: store, contexts: contexts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RequestConsentInput struct {
	RequesterID id.UserID
	GranterID   id.UserID
	ContextID   id.ContextID
	ExpiresAt   *time.Time
}

// Request opens a consent for the (granter, requester) pair. When a live
// consent already exists for the pair the existing one is returned instead of
// an error, so concurrent or retried requests never duplicate rows.
func (s *Service) Request(ctx context.Context, in RequestConsentInput) (*models.Consent, error) {
	now := requestcontext.Now(ctx)

	dc, err := s.contexts.FindContextByID(ctx, in.ContextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}
	if dc.OwnerID != in.GranterID {
		return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
	}

	consent, err := models.NewConsent(id.ConsentID(uuid.New()), in.GranterID, in.RequesterID, in.ContextID, in.ExpiresAt, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.store.Create(ctx, consent, now); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			existing, findErr := s.store.FindLiveByPair(ctx, in.GranterID, in.RequesterID, now)
			if findErr == nil {
				s.recordTransition("duplicate_request")
				return existing, nil
			}
			return nil, dErrors.New(dErrors.CodeConflict, "consent already exists for this pair")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create consent")
	}

	s.recordTransition("requested")
	s.log(ctx, "consent requested", consent)
	return consent, nil
}

// Grant moves the pair's PENDING consent to GRANTED. It reports false, with
// no error, when there is nothing pending to grant: a repeat grant, a revoked
// pair, or a pair that was never asked.
func (s *Service) Grant(ctx context.Context, granterID, requesterID id.UserID) (bool, error) {
	now := requestcontext.Now(ctx)

	consent, err := s.store.FindLiveByPair(ctx, granterID, requesterID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}

	if !consent.ApplyGrant(now) {
		return false, nil
	}

	if err := s.store.Update(ctx, consent); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant consent")
	}

	s.recordTransition("granted")
	s.log(ctx, "consent granted", consent)
	return true, nil
}

// Revoke withdraws the pair's GRANTED consent. False means there was no grant
// to withdraw; revocation is safe to repeat.
func (s *Service) Revoke(ctx context.Context, granterID, requesterID id.UserID) (bool, error) {
	now := requestcontext.Now(ctx)

	consent, err := s.store.FindLiveByPair(ctx, granterID, requesterID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}

	if !consent.ApplyRevoke(now) {
		return false, nil
	}

	if err := s.store.Update(ctx, consent); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
	}

	s.recordTransition("revoked")
	s.log(ctx, "consent revoked", consent)
	return true, nil
}

// ListGranted returns consents where the user is the granter, newest first.
func (s *Service) ListGranted(ctx context.Context, granterID id.UserID) ([]*models.Consent, error) {
	consents, err := s.store.ListByGranter(ctx, granterID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

// ListRequested returns consents where the user is the requester, newest first.
func (s *Service) ListRequested(ctx context.Context, requesterID id.UserID) ([]*models.Consent, error) {
	consents, err := s.store.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

func (s *Service) recordTransition(transition string) {
	if s.transitions != nil {
		s.transitions.IncConsentTransition(transition)
	}
}

func (s *Service) log(ctx context.Context, msg string, c *models.Consent) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg,
		"consent_id", c.ID.String(),
		"granter_id", c.GranterID.String(),
		"requester_id", c.RequesterID.String(),
		"context_id", c.ContextID.String(),
		"status", string(c.Status),
	)
}
