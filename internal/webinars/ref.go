package webinars

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/apperr"
)

// Finder looks webinars up by id or slug.
type Finder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
	GetBySlug(ctx context.Context, slug string) (*models.Webinar, error)
}

// Resolve finds the webinar a request refers to. The id wins when both are given.
func Resolve(ctx context.Context, f Finder, id, slug string) (*models.Webinar, error) {
	id, slug = strings.TrimSpace(id), strings.TrimSpace(slug)
	var (
		w   *models.Webinar
		err error
	)
	switch {
	case id != "":
		wid, perr := uuid.Parse(id)
		if perr != nil {
			return nil, apperr.Validation("invalid webinar_id")
		}
		w, err = f.GetByID(ctx, wid)
	case slug != "":
		w, err = f.GetBySlug(ctx, slug)
	default:
		return nil, apperr.Validation("webinar_id or webinar_slug is required")
	}
	if errors.Is(err, ErrWebinarNotFound) {
		return nil, apperr.NotFound("webinar not found", err)
	}
	if err != nil {
		return nil, apperr.Internal("load webinar", err)
	}
	return w, nil
}

// AssetResolver turns stored asset references into browser-loadable URLs.
type AssetResolver interface {
	AssetURL(ctx context.Context, ref string) (string, error)
}

// Branding is the visual identity sent to the watch pages.
type Branding struct {
	Name         string `json:"name"`
	PrimaryColor string `json:"primary_color,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	BannerURL    string `json:"banner_url,omitempty"`
}

// BrandingOf resolves a webinar's logo and banner. An unresolvable asset is
// logged and left out rather than failing the page.
func BrandingOf(ctx context.Context, assets AssetResolver, w *models.Webinar, logger *zap.Logger) Branding {
	b := Branding{Name: w.Name, PrimaryColor: w.PrimaryColor}
	if assets == nil {
		b.LogoURL, b.BannerURL = w.LogoURL, w.BannerURL
		return b
	}
	var err error
	if b.LogoURL, err = assets.AssetURL(ctx, w.LogoURL); err != nil {
		logger.Warn("resolve logo url", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		b.LogoURL = ""
	}
	if b.BannerURL, err = assets.AssetURL(ctx, w.BannerURL); err != nil {
		logger.Warn("resolve banner url", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		b.BannerURL = ""
	}
	return b
}
