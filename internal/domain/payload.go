package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EntityType identifies one of the closed set of payload variants.
type EntityType string

const (
	EntityTypePortfolio       EntityType = "PORTFOLIO"
	EntityTypeSecurity        EntityType = "SECURITY"
	EntityTypeFieldDefinition EntityType = "FIELD_DEFINITION"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypePortfolio, EntityTypeSecurity, EntityTypeFieldDefinition:
		return true
	}
	return false
}

// Payload is the domain data carried by a workflow entity. The workflow engine
// never inspects payload contents; it only validates them on create/update and
// flattens them for the audit diff.
type Payload interface {
	Type() EntityType
	// Reference is the human-facing identifier (portfolio code, ticker, field
	// name) shown in queue listings.
	Reference() string
	// Validate checks required fields. A failure maps to ErrValidation.
	Validate() error
	// Fields flattens the payload into field name -> rendered value for the
	// history differ. Keys must be stable across versions.
	Fields() map[string]string
	Clone() Payload
}

// Portfolio is an investment portfolio definition.
type Portfolio struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	BaseCurrency string          `json:"base_currency"`
	Manager      string          `json:"manager,omitempty"`
	TargetValue  decimal.Decimal `json:"target_value"`
	Benchmark    string          `json:"benchmark,omitempty"`
}

func (p Portfolio) Type() EntityType  { return EntityTypePortfolio }
func (p Portfolio) Reference() string { return p.Code }

func (p Portfolio) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: portfolio code is required", ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: portfolio name is required", ErrValidation)
	}
	if strings.TrimSpace(p.BaseCurrency) == "" {
		return fmt.Errorf("%w: portfolio base currency is required", ErrValidation)
	}
	return nil
}

func (p Portfolio) Fields() map[string]string {
	return map[string]string{
		"code":          p.Code,
		"name":          p.Name,
		"base_currency": p.BaseCurrency,
		"manager":       p.Manager,
		"target_value":  p.TargetValue.String(),
		"benchmark":     p.Benchmark,
	}
}

func (p Portfolio) Clone() Payload { return p }

// Security is a tradable instrument definition.
type Security struct {
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	ISIN       string          `json:"isin,omitempty"`
	AssetClass string          `json:"asset_class,omitempty"`
	Currency   string          `json:"currency"`
	FaceValue  decimal.Decimal `json:"face_value"`
	LotSize    decimal.Decimal `json:"lot_size"`
}

func (s Security) Type() EntityType  { return EntityTypeSecurity }
func (s Security) Reference() string { return s.Symbol }

func (s Security) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: security symbol is required", ErrValidation)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: security name is required", ErrValidation)
	}
	if strings.TrimSpace(s.Currency) == "" {
		return fmt.Errorf("%w: security currency is required", ErrValidation)
	}
	return nil
}

func (s Security) Fields() map[string]string {
	return map[string]string{
		"symbol":      s.Symbol,
		"name":        s.Name,
		"isin":        s.ISIN,
		"asset_class": s.AssetClass,
		"currency":    s.Currency,
		"face_value":  s.FaceValue.String(),
		"lot_size":    s.LotSize.String(),
	}
}

func (s Security) Clone() Payload { return s }

// FieldDefinition is a user-defined custom field attached to portfolios or
// securities.
type FieldDefinition struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	DataType     string `json:"data_type"`
	AppliesTo    string `json:"applies_to,omitempty"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"default_value,omitempty"`
}

func (f FieldDefinition) Type() EntityType  { return EntityTypeFieldDefinition }
func (f FieldDefinition) Reference() string { return f.Name }

func (f FieldDefinition) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: field name is required", ErrValidation)
	}
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("%w: field label is required", ErrValidation)
	}
	if strings.TrimSpace(f.DataType) == "" {
		return fmt.Errorf("%w: field data type is required", ErrValidation)
	}
	return nil
}

func (f FieldDefinition) Fields() map[string]string {
	return map[string]string{
		"name":          f.Name,
		"label":         f.Label,
		"data_type":     f.DataType,
		"applies_to":    f.AppliesTo,
		"required":      fmt.Sprintf("%t", f.Required),
		"default_value": f.DefaultValue,
	}
}

func (f FieldDefinition) Clone() Payload { return f }

// MarshalPayload serializes a payload for storage.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.Type(), err)
	}
	return data, nil
}

// UnmarshalPayload deserializes a stored payload for the given entity type.
func UnmarshalPayload(entityType EntityType, data json.RawMessage) (Payload, error) {
	switch entityType {
	case EntityTypePortfolio:
		var p Portfolio
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal portfolio payload: %w", err)
		}
		return p, nil
	case EntityTypeSecurity:
		var s Security
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal security payload: %w", err)
		}
		return s, nil
	case EntityTypeFieldDefinition:
		var f FieldDefinition
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal field definition payload: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}
