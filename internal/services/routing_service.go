package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/normalize"
)

// RoutingService resolves the active route and validates destinations.
type RoutingService struct {
	Store RoutingStore
}

// NewRoutingService constructs a RoutingService.
func NewRoutingService(store RoutingStore) *RoutingService {
	return &RoutingService{Store: store}
}

// Active returns the first enabled routing record, else the first record,
// else nil. Several enabled records are tolerated; the oldest wins.
func (s *RoutingService) Active(ctx context.Context) (*domain.RoutingConfig, error) {
	ctx, span := otel.Tracer("services/RoutingService").Start(ctx, "Active")
	defer span.End()

	rows, err := s.Store.ListRouting(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	for i := range rows {
		if rows[i].Enabled {
			return &rows[i], nil
		}
	}
	return &rows[0], nil
}

// Check classifies route against the destination number. It returns "" when
// the route accepts numberTo, otherwise one of the routing error codes.
func (s *RoutingService) Check(route *domain.RoutingConfig, numberTo string) string {
	switch {
	case route == nil:
		return domain.CodeRoutingNotFound
	case !route.Enabled:
		return domain.CodeRoutingDisabled
	case normalize.E164(route.NumberTo) != normalize.E164(numberTo):
		return domain.CodeRoutingMismatch
	default:
		return ""
	}
}

// Upsert replaces the routing configuration with a single record.
func (s *RoutingService) Upsert(ctx context.Context, numberTo, workspaceID string, enabled bool) (*domain.RoutingConfig, error) {
	numberTo = normalize.E164(numberTo)
	workspaceID = strings.TrimSpace(workspaceID)

	ctx, span := otel.Tracer("services/RoutingService").Start(ctx, "Upsert",
		trace.WithAttributes(
			attribute.String("routing.workspace_id", workspaceID),
			attribute.Bool("routing.enabled", enabled),
		),
	)
	defer span.End()

	if numberTo == "" || workspaceID == "" {
		return nil, ErrInvalidRouting
	}
	return s.Store.UpsertRouting(ctx, numberTo, workspaceID, enabled)
}
