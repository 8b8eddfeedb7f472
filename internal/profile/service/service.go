package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"namegate/internal/profile/models"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
	"namegate/pkg/platform/sentinel"
	"namegate/pkg/requestcontext"
)

// Store is the persistence port for the profile catalog.
type Store interface {
	CreateName(ctx context.Context, name *models.Name) error
	UpdateName(ctx context.Context, name *models.Name) error
	DeleteName(ctx context.Context, ownerID id.UserID, nameID id.NameID) error
	FindNameByID(ctx context.Context, nameID id.NameID) (*models.Name, error)
	ListNamesByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Name, error)
	SetPreferredName(ctx context.Context, ownerID id.UserID, nameID id.NameID, now time.Time) error

	CreateContext(ctx context.Context, dc *models.Context) error
	DeleteContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID) error
	FindContextByID(ctx context.Context, contextID id.ContextID) (*models.Context, error)
	ListContextsByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Context, error)

	UpsertAssignment(ctx context.Context, assignment *models.ContextNameAssignment) error
	FindAssignmentByContext(ctx context.Context, contextID id.ContextID) (*models.ContextNameAssignment, error)
	DeleteAssignment(ctx context.Context, contextID id.ContextID) error
	CountAssignmentsByName(ctx context.Context, nameID id.NameID) (int, error)
}

// ConsentChecker reports live consents that still reference a context. The
// context-deletion safeguard blocks on them instead of cascading.
type ConsentChecker interface {
	CountLiveByContext(ctx context.Context, contextID id.ContextID, now time.Time) (int, error)
}

// Service owns the name/context catalog operations. Every operation is scoped
// to the owner; acting on another user's records reports not-found rather than
// confirming their existence.
type Service struct {
	store    Store
	consents ConsentChecker
	logger   *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, consents ConsentChecker, opts ...Option) *Service {
	s := &Service{store: store, consents: consents}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -----------------------------------------------------------------------------
// Names
// -----------------------------------------------------------------------------

type CreateNameRequest struct {
	Text   string          `json:"text"`
	Kind   models.NameKind `json:"kind"`
	Source string          `json:"source"`
}

func (s *Service) CreateName(ctx context.Context, ownerID id.UserID, req CreateNameRequest) (*models.Name, error) {
	name, err := models.NewName(id.NameID(uuid.New()), ownerID, req.Text, req.Kind, req.Source, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.CreateName(ctx, name); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create name")
	}
	return name, nil
}

type UpdateNameRequest struct {
	Text     *string          `json:"text"`
	Kind     *models.NameKind `json:"kind"`
	Source   *string          `json:"source"`
	Verified *bool            `json:"verified"`
}

func (s *Service) UpdateName(ctx context.Context, ownerID id.UserID, nameID id.NameID, req UpdateNameRequest) (*models.Name, error) {
	name, err := s.findOwnedName(ctx, ownerID, nameID)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		if text == "" || len(text) > 256 {
			return nil, dErrors.New(dErrors.CodeValidation, "name text must be between 1 and 256 characters")
		}
		name.Text = text
	}
	if req.Kind != nil {
		if !req.Kind.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid name kind")
		}
		name.Kind = *req.Kind
	}
	if req.Source != nil {
		name.Source = *req.Source
	}
	if req.Verified != nil {
		name.Verified = *req.Verified
	}
	name.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.UpdateName(ctx, name); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update name")
	}
	return name, nil
}

// DeleteName removes a name. Names still disclosed by a context must be
// unassigned first; deleting them silently would change what viewers see.
func (s *Service) DeleteName(ctx context.Context, ownerID id.UserID, nameID id.NameID) error {
	if _, err := s.findOwnedName(ctx, ownerID, nameID); err != nil {
		return err
	}

	assigned, err := s.store.CountAssignmentsByName(ctx, nameID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check name assignments")
	}
	if assigned > 0 {
		return dErrors.New(dErrors.CodeConflict, "name is assigned to a context; unassign it first")
	}

	if err := s.store.DeleteName(ctx, ownerID, nameID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "name not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete name")
	}
	return nil
}

// SetPreferredName makes nameID the owner's single preferred name. The
// previous flag is cleared atomically in the store.
func (s *Service) SetPreferredName(ctx context.Context, ownerID id.UserID, nameID id.NameID) error {
	if err := s.store.SetPreferredName(ctx, ownerID, nameID, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "name not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set preferred name")
	}
	return nil
}

func (s *Service) ListNames(ctx context.Context, ownerID id.UserID) ([]*models.Name, error) {
	names, err := s.store.ListNamesByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list names")
	}
	return names, nil
}

func (s *Service) findOwnedName(ctx context.Context, ownerID id.UserID, nameID id.NameID) (*models.Name, error) {
	name, err := s.store.FindNameByID(ctx, nameID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "name not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load name")
	}
	if name.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "name not found")
	}
	return name, nil
}

// -----------------------------------------------------------------------------
// Contexts
// -----------------------------------------------------------------------------

type CreateContextRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Service) CreateContext(ctx context.Context, ownerID id.UserID, req CreateContextRequest) (*models.Context, error) {
	dc, err := models.NewContext(id.ContextID(uuid.New()), ownerID, req.Name, req.Description, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.CreateContext(ctx, dc); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "context name must be unique per owner")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create context")
	}
	return dc, nil
}

// DeleteContext removes a context after the safeguard check: a context with a
// name assignment or live consents pointing at it cannot be deleted.
func (s *Service) DeleteContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID) error {
	dc, err := s.findOwnedContext(ctx, ownerID, contextID)
	if err != nil {
		return err
	}

	if _, err := s.store.FindAssignmentByContext(ctx, contextID); err == nil {
		return dErrors.New(dErrors.CodeConflict, "context has a name assignment; remove it first")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check context assignment")
	}

	if s.consents != nil {
		live, err := s.consents.CountLiveByContext(ctx, contextID, requestcontext.Now(ctx))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check context consents")
		}
		if live > 0 {
			return dErrors.New(dErrors.CodeConflict, "context is referenced by live consents; revoke them first")
		}
	}

	if err := s.store.DeleteContext(ctx, ownerID, contextID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "context not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete context")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "context deleted",
			"owner_id", ownerID.String(),
			"context_id", contextID.String(),
			"context_name", dc.Name,
		)
	}
	return nil
}

func (s *Service) ListContexts(ctx context.Context, ownerID id.UserID) ([]*models.Context, error) {
	contexts, err := s.store.ListContextsByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contexts")
	}
	return contexts, nil
}

func (s *Service) findOwnedContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID) (*models.Context, error) {
	dc, err := s.store.FindContextByID(ctx, contextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}
	if dc.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
	}
	return dc, nil
}

// -----------------------------------------------------------------------------
// Context-name assignments
// -----------------------------------------------------------------------------

// AssignNameToContext binds a context to the single name it discloses.
// Re-assigning replaces the previous binding (one name per context).
func (s *Service) AssignNameToContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID, nameID id.NameID) error {
	if _, err := s.findOwnedContext(ctx, ownerID, contextID); err != nil {
		return err
	}
	if _, err := s.findOwnedName(ctx, ownerID, nameID); err != nil {
		return err
	}

	assignment := &models.ContextNameAssignment{
		ContextID:  contextID,
		NameID:     nameID,
		OwnerID:    ownerID,
		AssignedAt: requestcontext.Now(ctx),
	}
	if err := s.store.UpsertAssignment(ctx, assignment); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign name to context")
	}
	return nil
}

// UnassignName removes the context's name binding.
func (s *Service) UnassignName(ctx context.Context, ownerID id.UserID, contextID id.ContextID) error {
	if _, err := s.findOwnedContext(ctx, ownerID, contextID); err != nil {
		return err
	}
	if err := s.store.DeleteAssignment(ctx, contextID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "context has no name assignment")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unassign name")
	}
	return nil
}
