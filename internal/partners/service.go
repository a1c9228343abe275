package partners

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/partnerdesk/partnerdesk/internal/amendments"
)

// Versioner is the slice of the amendment engine the partner service uses.
type Versioner interface {
	CreateInitial(ctx context.Context, ref amendments.EntityRef, snapshot map[string]any) (amendments.Version, error)
	CurrentOf(ctx context.Context, ref amendments.EntityRef) (amendments.Version, error)
}

// Service manages business partner records on top of the versioning engine.
// Partners are never mutated directly: creation seeds version 1, and every
// later change goes through an amendment request.
type Service struct {
	versions Versioner
	schema   *Schema
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(versions Versioner, schema *Schema, logger *slog.Logger) *Service {
	return &Service{versions: versions, schema: schema, logger: logger}
}

// Register binds the partner schema to the amendment registry.
func Register(registry *amendments.Registry, schema *Schema) {
	registry.Register(Kind, schema)
}

// Create seeds a new partner at version 1.
func (s *Service) Create(ctx context.Context, bp BusinessPartner) (uuid.UUID, amendments.Version, error) {
	if bp.KYCStatus == "" {
		bp.KYCStatus = KYCPending
	}
	snapshot, err := ToSnapshot(bp)
	if err != nil {
		return uuid.Nil, amendments.Version{}, err
	}
	id := uuid.New()
	version, err := s.versions.CreateInitial(ctx, amendments.EntityRef{Kind: Kind, ID: id}, snapshot)
	if err != nil {
		return uuid.Nil, amendments.Version{}, err
	}
	if s.logger != nil {
		s.logger.Info("partner created", slog.String("id", id.String()))
	}
	return id, version, nil
}

// Get returns the typed current document of a partner with its version.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (BusinessPartner, int, error) {
	version, err := s.versions.CurrentOf(ctx, amendments.EntityRef{Kind: Kind, ID: id})
	if err != nil {
		return BusinessPartner{}, 0, err
	}
	bp, err := FromSnapshot(version.Snapshot)
	if err != nil {
		return BusinessPartner{}, 0, err
	}
	return bp, version.Version, nil
}
