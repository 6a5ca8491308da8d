// Package catalog cross-checks extracted medicine mentions against the
// medicine catalog and re-scores their confidence.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
	"github.com/medixcare/pharmacy-api/pkg/logger"
)

// Confidence adjustments applied by cross-validation. Mentions are never
// removed, only re-scored.
const (
	matchBonus    = 0.2
	missPenalty   = 0.1
	confidenceMax = 1.0
	confidenceMin = 0.1
)

const searchCacheTTL = 10 * time.Minute

type Service struct {
	repo   repository.CatalogRepository
	cache  *gocache.Cache
	logger *logger.Logger
}

func NewService(repo repository.CatalogRepository, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  gocache.New(searchCacheTTL, 2*searchCacheTTL),
		logger: logger,
	}
}

// Search does a cached fuzzy catalog lookup.
func (s *Service) Search(ctx context.Context, nameFragment string) ([]*model.CatalogMedicine, error) {
	key := strings.ToLower(strings.TrimSpace(nameFragment))
	if cached, found := s.cache.Get(key); found {
		return cached.([]*model.CatalogMedicine), nil
	}

	results, err := s.repo.Search(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	s.cache.Set(key, results, gocache.DefaultExpiration)
	return results, nil
}

// CrossValidate adjusts each mention's confidence from a catalog lookup:
// a match raises it and attaches the generic name, a miss lowers it. The
// mention list itself is never shortened.
func (s *Service) CrossValidate(ctx context.Context, mentions []*model.MedicineMention) error {
	for _, mention := range mentions {
		matches, err := s.Search(ctx, mention.Name)
		if err != nil {
			// A catalog outage should not sink the pipeline; the mention
			// keeps its parser confidence. The verification flag still has
			// to reflect that confidence.
			s.logger.Error(err, "Catalog lookup failed", "medicine", mention.Name)
			mention.RequiresVerification = mention.Confidence < model.VerificationThreshold
			continue
		}

		match := bestMatch(mention.Name, matches)
		if match != nil {
			mention.Confidence = clamp(mention.Confidence + matchBonus)
			mention.GenericName = match.GenericName
			id := match.ID
			mention.CatalogID = &id
		} else {
			mention.Confidence = clamp(mention.Confidence - missPenalty)
		}
		mention.RequiresVerification = mention.Confidence < model.VerificationThreshold
	}
	return nil
}

// bestMatch prefers an exact name hit, then any substring hit on name or
// brand.
func bestMatch(name string, candidates []*model.CatalogMedicine) *model.CatalogMedicine {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, c := range candidates {
		if strings.ToLower(c.Name) == lower {
			return c
		}
	}
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), lower) ||
			strings.Contains(strings.ToLower(c.Brand), lower) {
			return c
		}
	}
	return nil
}

func clamp(v float64) float64 {
	if v > confidenceMax {
		return confidenceMax
	}
	if v < confidenceMin {
		return confidenceMin
	}
	return v
}
