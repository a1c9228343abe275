package partners

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Kind is the entity kind under which business partners are versioned.
const Kind = "business_partner"

// KYCStatus tracks the verification state of a partner.
type KYCStatus string

const (
	KYCPending  KYCStatus = "PENDING"
	KYCVerified KYCStatus = "VERIFIED"
	KYCRejected KYCStatus = "REJECTED"
	KYCExpired  KYCStatus = "EXPIRED"
)

// Branch is one operating location of a partner.
type Branch struct {
	Code string `json:"code" validate:"required,alphanum"`
	Name string `json:"name" validate:"required"`
	City string `json:"city" validate:"omitempty"`
}

// BusinessPartner is the snapshot document stored per version.
type BusinessPartner struct {
	Name           string    `json:"name" validate:"required,min=2"`
	RegistrationNo string    `json:"registration_no" validate:"required,min=3"`
	KYCStatus      KYCStatus `json:"kyc_status" validate:"required,oneof=PENDING VERIFIED REJECTED EXPIRED"`
	Address        string    `json:"address" validate:"omitempty,min=3"`
	ContactEmail   string    `json:"contact_email" validate:"omitempty,email"`
	ContactPhone   string    `json:"contact_phone" validate:"omitempty,e164"`
	Branches       []Branch  `json:"branches" validate:"omitempty,dive"`
}

// Schema validates business partner documents and change payloads. It
// implements the amendment engine's SnapshotSchema.
type Schema struct {
	validate *validator.Validate
	// json tag -> struct field name, for partial validation of changes
	fields map[string]string
}

// NewSchema constructs a Schema.
func NewSchema() *Schema {
	v := validator.New(validator.WithRequiredStructEnabled())
	fields := make(map[string]string)
	t := reflect.TypeOf(BusinessPartner{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag != "" && tag != "-" {
			fields[tag] = f.Name
		}
	}
	return &Schema{validate: v, fields: fields}
}

func (s *Schema) decode(doc map[string]any) (BusinessPartner, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return BusinessPartner{}, fmt.Errorf("partners: %v: %w", err, shared.ErrValidation)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	var bp BusinessPartner
	if err := dec.Decode(&bp); err != nil {
		return BusinessPartner{}, fmt.Errorf("partners: %v: %w", err, shared.ErrValidation)
	}
	return bp, nil
}

// ValidateChange checks a partial change payload: every key must be a known
// field and every provided value must satisfy that field's rules.
func (s *Schema) ValidateChange(changes map[string]any) error {
	var partial []string
	for key, value := range changes {
		field, ok := s.fields[key]
		if !ok {
			return fmt.Errorf("partners: unknown field %q: %w", key, shared.ErrValidation)
		}
		if value == nil {
			// null clears the field; required fields are caught when
			// the merged snapshot is re-validated.
			continue
		}
		partial = append(partial, field)
	}
	if len(partial) == 0 {
		return nil
	}
	bp, err := s.decode(changes)
	if err != nil {
		return err
	}
	if err := s.validate.StructPartial(bp, partial...); err != nil {
		return fmt.Errorf("partners: %v: %w", err, shared.ErrValidation)
	}
	return nil
}

// ValidateSnapshot checks a full document.
func (s *Schema) ValidateSnapshot(snapshot map[string]any) error {
	bp, err := s.decode(snapshot)
	if err != nil {
		return err
	}
	if err := s.validate.Struct(bp); err != nil {
		return fmt.Errorf("partners: %v: %w", err, shared.ErrValidation)
	}
	return nil
}

// FromSnapshot decodes a stored snapshot into the typed document.
func FromSnapshot(snapshot map[string]any) (BusinessPartner, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return BusinessPartner{}, err
	}
	var bp BusinessPartner
	if err := json.Unmarshal(raw, &bp); err != nil {
		return BusinessPartner{}, err
	}
	return bp, nil
}

// ToSnapshot encodes the typed document as a snapshot map.
func ToSnapshot(bp BusinessPartner) (map[string]any, error) {
	raw, err := json.Marshal(bp)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
