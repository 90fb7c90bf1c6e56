package service

import (
	"context"
	"errors"
	"fmt"

	"douane-rag/internal/hscode"
	"douane-rag/internal/models"
	"douane-rag/internal/repository"

	"go.uber.org/zap"
)

// Narrow storage contracts keep the resolver testable without a
// database. The concrete repositories satisfy them.
type tariffStore interface {
	GetByCode(ctx context.Context, country, code string) (*models.TariffRow, error)
	ListByPrefix(ctx context.Context, country, prefix string) ([]models.TariffRow, error)
}

type noteStore interface {
	ListByCodes(ctx context.Context, country string, codes []string) ([]models.TariffNote, error)
}

type controlStore interface {
	ListByCodeOrPrefix(ctx context.Context, country, code, prefix string) ([]models.ControlRow, error)
}

// ResolverService synthesizes the effective tariff for a queried code
// from the stored hierarchy: exact rows first, then descendant rows,
// with legal notes and controls inherited from ancestors.
type ResolverService struct {
	tariffs  tariffStore
	notes    noteStore
	controls controlStore
	logger   *zap.Logger
}

func NewResolverService(tariffs tariffStore, notes noteStore, controls controlStore, logger *zap.Logger) *ResolverService {
	return &ResolverService{
		tariffs:  tariffs,
		notes:    notes,
		controls: controls,
		logger:   logger,
	}
}

// Resolve builds the effective tariff for one code. Storage failures on
// the side channels (notes, controls) degrade to a partial result; only
// the code itself being implausible yields an immediate not_found.
func (s *ResolverService) Resolve(ctx context.Context, country, code string) *models.EffectiveTariff {
	normalized := hscode.Normalize(code)
	result := &models.EffectiveTariff{
		Code:       normalized,
		RateSource: models.RateSourceNotFound,
	}
	if !hscode.IsPlausible(normalized) {
		return result
	}

	direct := s.lookupDirect(ctx, country, normalized)
	if direct != nil && direct.DDIRate != nil {
		result.Found = true
		result.Description = direct.Description
		result.DutyRate = direct.DDIRate
		result.VATRate = direct.VATRate
		result.Prohibited = direct.Prohibited
		result.Restricted = direct.Restricted
		result.RateSource = models.RateSourceDirect
	} else {
		if direct != nil {
			// Grouping row without its own rate; keep its description.
			result.Description = direct.Description
			result.Prohibited = direct.Prohibited
			result.Restricted = direct.Restricted
		}
		s.resolveFromDescendants(ctx, country, normalized, result)
	}

	s.attachNotes(ctx, country, normalized, result)
	s.attachControls(ctx, country, normalized, result)
	return result
}

// lookupDirect tries the exact code, then its 6-digit subheading when
// the national line itself has no row.
func (s *ResolverService) lookupDirect(ctx context.Context, country, code string) *models.TariffRow {
	for _, candidate := range directCandidates(code) {
		row, err := s.tariffs.GetByCode(ctx, country, candidate)
		if err == nil {
			return row
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("tariff lookup failed",
				zap.String("code", candidate),
				zap.Error(err),
			)
			return nil
		}
	}
	return nil
}

func directCandidates(code string) []string {
	if len(code) > 6 {
		return []string{code, code[:6]}
	}
	return []string{code}
}

// resolveFromDescendants scans rows under the code. Agreement on a
// single duty rate inherits it; disagreement reports a range.
func (s *ResolverService) resolveFromDescendants(ctx context.Context, country, code string, result *models.EffectiveTariff) {
	children, err := s.tariffs.ListByPrefix(ctx, country, code)
	if err != nil {
		s.logger.Warn("descendant scan failed",
			zap.String("code", code),
			zap.Error(err),
		)
		return
	}
	result.ChildrenConsulted = len(children)

	var (
		rated            int
		minRate, maxRate float64
		vatRate          *float64
		vatUniform       = true
	)
	for i := range children {
		child := &children[i]
		if child.Prohibited {
			result.HasChildrenProhibited = true
		}
		if child.Restricted {
			result.HasChildrenRestricted = true
		}
		if child.DDIRate == nil {
			continue
		}
		if rated == 0 {
			minRate, maxRate = *child.DDIRate, *child.DDIRate
		} else {
			if *child.DDIRate < minRate {
				minRate = *child.DDIRate
			}
			if *child.DDIRate > maxRate {
				maxRate = *child.DDIRate
			}
		}
		rated++

		if child.VATRate != nil {
			if vatRate == nil {
				v := *child.VATRate
				vatRate = &v
			} else if *vatRate != *child.VATRate {
				vatUniform = false
			}
		}
	}

	if rated == 0 {
		return
	}

	result.Found = true
	result.DutyRateMin = minRate
	result.DutyRateMax = maxRate
	if minRate == maxRate {
		result.DutyRate = &minRate
		result.RateSource = models.RateSourceInherited
	} else {
		result.RateSource = models.RateSourceRange
	}
	if vatUniform && vatRate != nil {
		result.VATRate = vatRate
	}
}

// attachNotes collects legal notes for the code and every ancestor
// level, root-first, each prefixed with the level it came from.
func (s *ResolverService) attachNotes(ctx context.Context, country, code string, result *models.EffectiveTariff) {
	levels := append(hscode.Ancestors(code), code)
	notes, err := s.notes.ListByCodes(ctx, country, levels)
	if err != nil {
		s.logger.Warn("note lookup failed",
			zap.String("code", code),
			zap.Error(err),
		)
		return
	}
	for _, n := range notes {
		result.LegalNotes = append(result.LegalNotes,
			fmt.Sprintf("[%s] %s", hscode.Format(n.CodeHS), n.Note))
	}
}

// attachControls gathers control requirements registered at the code or
// its 4-digit heading, tagging heading-level ones as inherited.
func (s *ResolverService) attachControls(ctx context.Context, country, code string, result *models.EffectiveTariff) {
	prefix := ""
	if len(code) > 4 {
		prefix = code[:4]
	}

	rows, err := s.controls.ListByCodeOrPrefix(ctx, country, code, prefix)
	if err != nil {
		s.logger.Warn("control lookup failed",
			zap.String("code", code),
			zap.Error(err),
		)
		return
	}
	for _, row := range rows {
		result.Controls = append(result.Controls, models.Control{
			Type:      row.ControlType,
			Authority: row.Authority,
			Inherited: row.CodeHS != code,
		})
	}
}
