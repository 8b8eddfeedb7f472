package service

import (
	"context"
	"errors"
	"log/slog"

	clientmodels "namegate/internal/clients/models"
	profilemodels "namegate/internal/profile/models"
	"namegate/internal/registry/models"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
	"namegate/pkg/platform/sentinel"
	"namegate/pkg/requestcontext"
)

// Store is the persistence port for app-context bindings.
type Store interface {
	Upsert(ctx context.Context, a *models.AppContextAssignment) error
	FindByUserAndClient(ctx context.Context, userID id.UserID, clientID id.ClientID) (*models.AppContextAssignment, error)
	DeleteByUserAndClient(ctx context.Context, userID id.UserID, clientID id.ClientID) error
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.AppContextAssignment, error)
}

// ContextSource resolves contexts for the ownership check.
type ContextSource interface {
	FindContextByID(ctx context.Context, contextID id.ContextID) (*profilemodels.Context, error)
}

// ClientSource resolves client applications so bindings only target
// registered, active clients.
type ClientSource interface {
	FindByClientID(ctx context.Context, clientID id.ClientID) (*clientmodels.ClientApplication, error)
}

// Service manages which context a user has assigned to each client
// application. Last write wins: assigning a new context to the same client
// replaces the previous binding.
type Service struct {
	store    Store
	contexts ContextSource
	clients  ClientSource
	logger   *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, contexts ContextSource, clients ClientSource, opts ...Option) *Service {
	s := &Service{store: store, contexts: contexts, clients: clients}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assign binds one of the user's contexts to a client application.
func (s *Service) Assign(ctx context.Context, userID id.UserID, clientID id.ClientID, contextID id.ContextID) (*models.AppContextAssignment, error) {
	dc, err := s.contexts.FindContextByID(ctx, contextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}
	if dc.OwnerID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
	}

	client, err := s.clients.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	if !client.Active {
		return nil, dErrors.New(dErrors.CodeConflict, "client is deactivated")
	}

	binding := &models.AppContextAssignment{
		UserID:     userID,
		ClientID:   clientID,
		ContextID:  contextID,
		AssignedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Upsert(ctx, binding); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign context")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "app context assigned",
			"user_id", userID.String(),
			"client_id", string(clientID),
			"context_id", contextID.String(),
		)
	}
	return binding, nil
}

// Unassign removes the user's binding for a client.
func (s *Service) Unassign(ctx context.Context, userID id.UserID, clientID id.ClientID) error {
	if err := s.store.DeleteByUserAndClient(ctx, userID, clientID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no context assigned to this client")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unassign context")
	}
	return nil
}

// Binding returns the user's binding for a client, or a not-found error.
func (s *Service) Binding(ctx context.Context, userID id.UserID, clientID id.ClientID) (*models.AppContextAssignment, error) {
	binding, err := s.store.FindByUserAndClient(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no context assigned to this client")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load binding")
	}
	return binding, nil
}

// List returns all of the user's bindings, ordered by client id.
func (s *Service) List(ctx context.Context, userID id.UserID) ([]*models.AppContextAssignment, error) {
	bindings, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bindings")
	}
	return bindings, nil
}
