package resolution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"namegate/internal/audit"
	consentmodels "namegate/internal/consent/models"
	profilemodels "namegate/internal/profile/models"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
	"namegate/pkg/platform/sentinel"
	"namegate/pkg/requestcontext"
)

// Tier identifies which rule produced a disclosure.
const (
	TierConsent  = "consent"
	TierContext  = "context"
	TierFallback = "fallback"
)

// FallbackName is disclosed when nothing else applies and the target has no
// preferred name. Disclosure never fails loudly: a user who has not finished
// setup is still a resolvable user.
const FallbackName = "Anonymous User"

// ConsentSource supplies the consents that currently authorize disclosure for
// a (target, requester) pair, newest grant first.
type ConsentSource interface {
	FindGrantedByPair(ctx context.Context, granterID, requesterID id.UserID, now time.Time) ([]*consentmodels.Consent, error)
}

// ProfileSource supplies names, contexts, and context-name assignments.
type ProfileSource interface {
	FindContextByID(ctx context.Context, contextID id.ContextID) (*profilemodels.Context, error)
	FindContextByOwnerAndName(ctx context.Context, ownerID id.UserID, name string) (*profilemodels.Context, error)
	FindAssignmentByContext(ctx context.Context, contextID id.ContextID) (*profilemodels.ContextNameAssignment, error)
	FindNameByID(ctx context.Context, nameID id.NameID) (*profilemodels.Name, error)
	FindPreferredName(ctx context.Context, ownerID id.UserID) (*profilemodels.Name, error)
}

// TierRecorder counts resolutions by tier.
type TierRecorder interface {
	IncResolution(tier string)
}

// AuditPublisher receives one disclosure record per resolution.
type AuditPublisher interface {
	Record(ctx context.Context, d audit.Disclosure)
}

// Request asks which name of the target to disclose. RequesterID is set when
// a known user is asking; ContextHint carries a context id or context name
// (exact, case-sensitive) when the caller was pointed at a specific context —
// for session resolution it is the context id bound to the calling client.
type Request struct {
	TargetUserID id.UserID
	RequesterID  *id.UserID
	ClientID     *id.ClientID
	ContextHint  string
}

// Result is the disclosure decision.
type Result struct {
	Text      string
	Tier      string
	NameID    *id.NameID
	ContextID *id.ContextID
}

// Engine decides which name to disclose. Rules apply in strict priority:
//
//  1. consent: an active granted consent names the context whose assigned
//     name the requester may see; it outranks any explicit hint
//  2. context: the hinted context, when it belongs to the target
//  3. fallback: the target's preferred name, or FallbackName without one
//
// A tier that matches but dangles (its context has no assigned name, or the
// hinted context does not exist for the target) falls through to the
// fallback, never to an error.
type Engine struct {
	consents ConsentSource
	profiles ProfileSource
	logger   *slog.Logger
	tiers    TierRecorder
	auditor  AuditPublisher
}

type Option func(e *Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithTierRecorder(rec TierRecorder) Option {
	return func(e *Engine) { e.tiers = rec }
}

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(e *Engine) { e.auditor = pub }
}

func New(consents ConsentSource, profiles ProfileSource, opts ...Option) *Engine {
	e := &Engine{consents: consents, profiles: profiles}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve runs the rules and returns the name to disclose. It always returns
// a result for a valid target; "no name" is not an outcome.
func (e *Engine) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.TargetUserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "resolution requires a target user")
	}
	now := requestcontext.Now(ctx)

	evidence, err := e.gather(ctx, req, now)
	if err != nil {
		return nil, err
	}

	result, err := e.decide(ctx, req, evidence)
	if err != nil {
		return nil, err
	}

	if e.tiers != nil {
		e.tiers.IncResolution(result.Tier)
	}
	if e.auditor != nil {
		e.auditor.Record(ctx, audit.Disclosure{
			TargetUserID:  req.TargetUserID,
			RequesterID:   req.RequesterID,
			ClientID:      req.ClientID,
			ContextID:     result.ContextID,
			DisclosedName: result.Text,
			Tier:          result.Tier,
			AccessedAt:    now,
		})
	}
	return result, nil
}

type evidence struct {
	consents  []*consentmodels.Consent
	hintedCtx *profilemodels.Context
}

// gather fetches the rule inputs concurrently; the consent and hint lookups
// are independent of each other.
func (e *Engine) gather(ctx context.Context, req Request, now time.Time) (*evidence, error) {
	var ev evidence
	g, gctx := errgroup.WithContext(ctx)

	if req.RequesterID != nil {
		g.Go(func() error {
			consents, err := e.consents.FindGrantedByPair(gctx, req.TargetUserID, *req.RequesterID, now)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
			}
			ev.consents = consents
			return nil
		})
	}
	if req.ContextHint != "" {
		g.Go(func() error {
			hinted, err := e.lookupHint(gctx, req.TargetUserID, req.ContextHint)
			if err != nil {
				return err
			}
			ev.hintedCtx = hinted
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// lookupHint resolves a context hint, which may be a context id or an exact
// context name. A hint that does not match one of the target's contexts
// resolves to nil, never an error: mistyped hints degrade to the fallback.
func (e *Engine) lookupHint(ctx context.Context, targetUserID id.UserID, hint string) (*profilemodels.Context, error) {
	var (
		dc  *profilemodels.Context
		err error
	)
	if parsed, parseErr := uuid.Parse(hint); parseErr == nil {
		dc, err = e.profiles.FindContextByID(ctx, id.ContextID(parsed))
	} else {
		dc, err = e.profiles.FindContextByOwnerAndName(ctx, targetUserID, hint)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load hinted context")
	}
	if dc.OwnerID != targetUserID {
		return nil, nil
	}
	return dc, nil
}

func (e *Engine) decide(ctx context.Context, req Request, ev *evidence) (*Result, error) {
	if len(ev.consents) > 0 {
		if len(ev.consents) > 1 && e.logger != nil {
			// multiple live grants for one pair should be impossible under
			// the unique-live-consent index; pick the newest and flag the
			// anomaly
			e.logger.WarnContext(ctx, "multiple granted consents for pair",
				"target_user_id", req.TargetUserID.String(),
				"requester_id", req.RequesterID.String(),
				"count", len(ev.consents),
			)
		}
		chosen := ev.consents[0]
		result, err := e.nameForContext(ctx, chosen.ContextID, TierConsent)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// dangling consent context: straight to the fallback, not the hint
		return e.fallback(ctx, req.TargetUserID)
	}

	if ev.hintedCtx != nil {
		result, err := e.nameForContext(ctx, ev.hintedCtx.ID, TierContext)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		return e.fallback(ctx, req.TargetUserID)
	}

	return e.fallback(ctx, req.TargetUserID)
}

// nameForContext resolves the name a context discloses. A nil result with nil
// error means the context has no assignment (or the assigned name vanished).
func (e *Engine) nameForContext(ctx context.Context, contextID id.ContextID, tier string) (*Result, error) {
	assignment, err := e.profiles.FindAssignmentByContext(ctx, contextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context assignment")
	}

	name, err := e.profiles.FindNameByID(ctx, assignment.NameID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load name")
	}

	return &Result{
		Text:      name.Text,
		Tier:      tier,
		NameID:    &name.ID,
		ContextID: &contextID,
	}, nil
}

func (e *Engine) fallback(ctx context.Context, targetUserID id.UserID) (*Result, error) {
	name, err := e.profiles.FindPreferredName(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &Result{Text: FallbackName, Tier: TierFallback}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load preferred name")
	}
	return &Result{Text: name.Text, Tier: TierFallback, NameID: &name.ID}, nil
}
