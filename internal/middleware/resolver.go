package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/openraise/governance-engine/internal/validator"
)

// CompanyResolver turns request-level company references into company ids.
type CompanyResolver interface {
	ResolveSlug(ctx context.Context, slug string) (string, error)
	CompanyForActor(ctx context.Context, actorID string) (string, error)
}

// SQLCompanyResolver resolves slugs and actor ownership from the platform
// database. Slug lookups are cached; slugs change rarely.
type SQLCompanyResolver struct {
	db    *sqlx.DB
	cache *gocache.Cache
}

func NewSQLCompanyResolver(db *sqlx.DB, ttl time.Duration) *SQLCompanyResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SQLCompanyResolver{
		db:    db,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (r *SQLCompanyResolver) ResolveSlug(ctx context.Context, slug string) (string, error) {
	if id, found := r.cache.Get("slug:" + slug); found {
		return id.(string), nil
	}

	var id string
	err := r.db.GetContext(ctx, &id, `SELECT id FROM companies WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no company with slug %q", slug)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve company slug: %w", err)
	}

	r.cache.SetDefault("slug:"+slug, id)
	return id, nil
}

func (r *SQLCompanyResolver) CompanyForActor(ctx context.Context, actorID string) (string, error) {
	if id, found := r.cache.Get("actor:" + actorID); found {
		return id.(string), nil
	}

	var id string
	err := r.db.GetContext(ctx, &id, `SELECT company_id FROM company_members WHERE user_id = $1 LIMIT 1`, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("actor %q belongs to no company", actorID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve actor company: %w", err)
	}

	r.cache.SetDefault("actor:"+actorID, id)
	return id, nil
}

// ResourceResolver loads the lock-relevant state of an action's target
// so the immutability rules can evaluate it.
type ResourceResolver interface {
	ResolveResource(ctx context.Context, kind, id string) (*validator.ResourceState, error)
}

// SQLResourceResolver reads target state from the platform tables. An
// unknown kind or a missing row resolves to no state, which the
// immutability rules treat as unlocked.
type SQLResourceResolver struct {
	db *sqlx.DB
}

func NewSQLResourceResolver(db *sqlx.DB) *SQLResourceResolver {
	return &SQLResourceResolver{db: db}
}

func (r *SQLResourceResolver) ResolveResource(ctx context.Context, kind, id string) (*validator.ResourceState, error) {
	switch kind {
	case "disclosure":
		var status string
		err := r.db.GetContext(ctx, &status, `SELECT status FROM disclosures WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve disclosure %s: %w", id, err)
		}
		return &validator.ResourceState{Kind: kind, Status: status}, nil

	case "acknowledgement":
		var exists bool
		err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM acknowledgements WHERE id = $1)`, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve acknowledgement %s: %w", id, err)
		}
		if !exists {
			return nil, nil
		}
		return &validator.ResourceState{Kind: kind}, nil

	case "investment_snapshot":
		var immutable bool
		err := r.db.GetContext(ctx, &immutable,
			`SELECT is_immutable FROM investment_snapshots WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve investment snapshot %s: %w", id, err)
		}
		return &validator.ResourceState{Kind: kind, Immutable: immutable}, nil

	case "context_snapshot":
		var locked bool
		err := r.db.GetContext(ctx, &locked,
			`SELECT is_locked FROM context_snapshots WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve context snapshot %s: %w", id, err)
		}
		return &validator.ResourceState{Kind: kind, Locked: locked}, nil
	}
	return nil, nil
}
