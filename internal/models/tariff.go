package models

import (
	"time"

	"github.com/google/uuid"
)

// RateSource tells how an effective duty rate was established.
type RateSource string

const (
	// RateSourceDirect: an exact tariff row existed for the queried code.
	RateSourceDirect RateSource = "direct"
	// RateSourceInherited: all descendant rows agree on a single rate.
	RateSourceInherited RateSource = "inherited"
	// RateSourceRange: descendants disagree; only min/max are known.
	RateSourceRange RateSource = "range"
	// RateSourceNotFound: neither the code nor its descendants have rows.
	RateSourceNotFound RateSource = "not_found"
)

// TariffRow is a raw tariff line as stored, one per national code.
type TariffRow struct {
	ID          uuid.UUID `json:"id"`
	CodeHS      string    `json:"code_hs"` // normalized digits
	Description string    `json:"description"`
	DDIRate     *float64  `json:"ddi_rate,omitempty"`
	VATRate     *float64  `json:"vat_rate,omitempty"`
	Prohibited  bool      `json:"prohibited"`
	Restricted  bool      `json:"restricted"`
	Country     string    `json:"country"`
	Active      bool      `json:"active"`
	Embedding   []float32 `json:"-"`
	// Similarity is populated by vector search, zero otherwise.
	Similarity float64 `json:"similarity,omitempty"`
}

// HSCode is a nomenclature entry used for semantic code lookup.
type HSCode struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Country     string    `json:"country"`
	Similarity  float64   `json:"similarity,omitempty"`
}

// TariffNote is a legal note attached to a code at any hierarchy level.
type TariffNote struct {
	ID      uuid.UUID `json:"id"`
	CodeHS  string    `json:"code_hs"`
	Note    string    `json:"note"`
	Country string    `json:"country"`
}

// ControlRow is a control/authorization requirement scoped to a code
// or chapter prefix.
type ControlRow struct {
	ID          uuid.UUID `json:"id"`
	CodeHS      string    `json:"code_hs"`
	ControlType string    `json:"control_type"`
	Authority   string    `json:"authority"`
	Country     string    `json:"country"`
}

// Control is a control requirement as resolved against a queried code.
type Control struct {
	Type      string `json:"type"`
	Authority string `json:"authority"`
	// Inherited is true when the control's own code differs from the
	// queried code (chapter-level control applied to a line).
	Inherited bool `json:"inherited"`
}

// EffectiveTariff is the best-known applicable tariff for one queried
// code, synthesized by the inheritance resolver. Constructed fresh per
// query, never persisted.
type EffectiveTariff struct {
	Code        string     `json:"code"` // normalized queried code
	Found       bool       `json:"found"`
	Description string     `json:"description,omitempty"`
	DutyRate    *float64   `json:"duty_rate,omitempty"`
	DutyRateMin float64    `json:"duty_rate_min,omitempty"`
	DutyRateMax float64    `json:"duty_rate_max,omitempty"`
	VATRate     *float64   `json:"vat_rate,omitempty"`
	RateSource  RateSource `json:"rate_source"`
	// ChildrenConsulted counts descendant rows examined during inheritance.
	ChildrenConsulted int  `json:"children_consulted"`
	Prohibited        bool `json:"prohibited"`
	Restricted        bool `json:"restricted"`
	// HasChildrenProhibited / Restricted are ORs across descendant rows;
	// they signal partial applicability, not a verdict on the queried code.
	HasChildrenProhibited bool `json:"has_children_prohibited"`
	HasChildrenRestricted bool `json:"has_children_restricted"`
	// LegalNotes are ordered ancestor-first (chapter note before heading note).
	LegalNotes []string  `json:"legal_notes,omitempty"`
	Controls   []Control `json:"controls,omitempty"`
}

// DutyBreakdown is the itemized import cost for a CIF value, all
// amounts rounded to 2 decimals.
type DutyBreakdown struct {
	CIFValue    float64 `json:"cif_value"`
	DutyRate    float64 `json:"duty_rate"`
	VATRate     float64 `json:"vat_rate"`
	DutyAmount  float64 `json:"duty_amount"`
	TaxableBase float64 `json:"taxable_base"`
	VATAmount   float64 `json:"vat_amount"`
	TotalDuties float64 `json:"total_duties"`
	TotalCost   float64 `json:"total_cost"`
}

// PDFDocument is a stored regulatory/tariff publication with an
// LLM-produced summary used for retrieval.
type PDFDocument struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Chapter   string    `json:"chapter,omitempty"` // 2-digit chapter when chapter-scoped
	Summary   string    `json:"summary"`
	FullText  string    `json:"-"`
	URL       *string   `json:"url,omitempty"`
	PageCount int       `json:"page_count"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
	Similarity float64  `json:"similarity,omitempty"`
}
