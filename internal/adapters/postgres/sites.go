package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
)

// SiteRepository persists site rows and their page documents. Page content
// is stored as a jsonb document per site+route.
type SiteRepository struct {
	pool *pgxpool.Pool
}

var _ ports.SiteRepository = (*SiteRepository)(nil)

func NewSiteRepository(pool *pgxpool.Pool) *SiteRepository {
	return &SiteRepository{pool: pool}
}

func (r *SiteRepository) CreateDraftSite(ctx context.Context, site domain.Site) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sites (id, user_id, title, status, provider_id, model, palette, sector, last_prompt, created_at, updated_at)
		VALUES ($1, $2, $3, 'draft', $4, $5, $6, $7, $8, now(), now())`,
		site.ID, site.UserID, site.Title, site.ProviderID, site.Model, site.Palette, site.Sector, site.LastPrompt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert site: %w", err)
	}
	return nil
}

func (r *SiteRepository) UpdateDraftSite(ctx context.Context, site domain.Site) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sites
		SET title = $2, provider_id = $3, model = $4, last_prompt = $5, status = 'draft', updated_at = now()
		WHERE id = $1`,
		site.ID, site.Title, site.ProviderID, site.Model, site.LastPrompt,
	)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSiteNotFound
	}
	return nil
}

func (r *SiteRepository) GetSiteOwner(ctx context.Context, siteID string) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM sites WHERE id = $1`, siteID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrSiteNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load site owner: %w", err)
	}
	return userID, nil
}

func (r *SiteRepository) GetPage(ctx context.Context, siteID, route string) (*domain.SiteDocument, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT content FROM site_pages WHERE site_id = $1 AND route = $2`,
		siteID, route,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}

	var doc domain.SiteDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode page document: %w", err)
	}
	return &doc, nil
}

func (r *SiteRepository) UpsertPage(ctx context.Context, siteID, route string, doc *domain.SiteDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode page document: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO site_pages (site_id, route, content, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (site_id, route)
		DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		siteID, route, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	return nil
}

func (r *SiteRepository) MarkSiteReady(ctx context.Context, siteID, palette, sector string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sites
		SET status = 'ready',
		    palette = COALESCE(NULLIF($2, ''), palette),
		    sector = COALESCE(NULLIF($3, ''), sector),
		    updated_at = now()
		WHERE id = $1`,
		siteID, palette, sector,
	)
	if err != nil {
		return fmt.Errorf("failed to mark site ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSiteNotFound
	}
	return nil
}
