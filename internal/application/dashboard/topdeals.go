package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
	"github.com/crmdash/backend/internal/infrastructure/telemetry"
)

// topNewWindowDays is the trailing window for the "newest deals" list.
const topNewWindowDays = 30

// TopDeal is one row of a top-deal list, with associated company and
// contact names resolved.
type TopDeal struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Stage        string     `json:"stage"`
	Amount       float64    `json:"amount"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
	CompanyName  string     `json:"companyName,omitempty"`
	ContactNames []string   `json:"contactNames,omitempty"`
}

// GetTopWonDeals returns the highest-value closed-won deals.
func (s *Service) GetTopWonDeals(ctx context.Context, limit int) ([]TopDeal, error) {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.deals.top_won")
	defer span.End()

	limit = clampLimit(limit)
	key := fmt.Sprintf("dashboard:deals:top-won:%d", limit)

	return cache.GetOrFetch(ctx, s.store, s.logger, key,
		cache.Options{TTL: s.ttl},
		func(ctx context.Context) ([]TopDeal, error) {
			records, _, err := s.api.SearchObjects(ctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
				FilterGroups: []crmapi.FilterGroup{{
					Filters: []crmapi.Filter{{
						PropertyName: crm.PropDealStage,
						Operator:     crmapi.OperatorEq,
						Value:        crm.StageClosedWon,
					}},
				}},
				Properties: dealProperties,
			})
			if err != nil {
				return nil, err
			}
			deals := topByAmount(crm.DealsFromRecords(records), limit)
			s.resolveDealNames(ctx, deals)
			return deals, nil
		})
}

// GetTopNewDeals returns the most recently created deals of the trailing
// month, newest first.
func (s *Service) GetTopNewDeals(ctx context.Context, limit int) ([]TopDeal, error) {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.deals.top_new")
	defer span.End()

	limit = clampLimit(limit)
	key := fmt.Sprintf("dashboard:deals:top-new:%d", limit)

	return cache.GetOrFetch(ctx, s.store, s.logger, key,
		cache.Options{TTL: s.ttl},
		func(ctx context.Context) ([]TopDeal, error) {
			window, _ := crm.PeriodRange(topNewWindowDays, s.now())
			records, _, err := s.api.SearchObjects(ctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
				FilterGroups: betweenFilter(crm.PropCreateDate, window),
				Properties:   dealProperties,
			})
			if err != nil {
				return nil, err
			}

			deals := toTopDeals(crm.DealsFromRecords(records))
			sort.SliceStable(deals, func(i, j int) bool {
				return laterTime(deals[i].CreatedAt, deals[j].CreatedAt)
			})
			if len(deals) > limit {
				deals = deals[:limit]
			}
			s.resolveDealNames(ctx, deals)
			return deals, nil
		})
}

// GetTopPaidDeals returns the highest-value deals regardless of stage.
func (s *Service) GetTopPaidDeals(ctx context.Context, limit int) ([]TopDeal, error) {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.deals.top_paid")
	defer span.End()

	limit = clampLimit(limit)
	key := fmt.Sprintf("dashboard:deals:top-paid:%d", limit)

	return cache.GetOrFetch(ctx, s.store, s.logger, key,
		cache.Options{TTL: s.ttl},
		func(ctx context.Context) ([]TopDeal, error) {
			records, _, err := s.api.SearchObjects(ctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
				FilterGroups: []crmapi.FilterGroup{{
					Filters: []crmapi.Filter{{
						PropertyName: crm.PropAmount,
						Operator:     crmapi.OperatorHasProperty,
					}},
				}},
				Properties: dealProperties,
			})
			if err != nil {
				return nil, err
			}
			deals := topByAmount(crm.DealsFromRecords(records), limit)
			s.resolveDealNames(ctx, deals)
			return deals, nil
		})
}

// toTopDeals converts parsed deals to list rows.
func toTopDeals(deals []crm.Deal) []TopDeal {
	rows := make([]TopDeal, 0, len(deals))
	for _, d := range deals {
		rows = append(rows, TopDeal{
			ID:        d.ID,
			Name:      d.Name,
			Stage:     d.Stage,
			Amount:    d.Amount.InexactFloat64(),
			CreatedAt: d.CreatedAt,
			ClosedAt:  d.ClosedAt,
		})
	}
	return rows
}

// topByAmount keeps the limit highest non-zero amounts, descending.
func topByAmount(deals []crm.Deal, limit int) []TopDeal {
	kept := make([]crm.Deal, 0, len(deals))
	for _, d := range deals {
		if !d.Amount.IsZero() {
			kept = append(kept, d)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Amount.GreaterThan(kept[j].Amount)
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return toTopDeals(kept)
}

// laterTime orders non-nil times descending; nil sorts last.
func laterTime(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// resolveDealNames fills in company and contact names for each deal via
// association lookups. Lookups run in batches no larger than the
// client's association concurrency, with the configured pause between
// batches, to stay under the CRM rate limit. Resolution is best-effort:
// failures are logged and the names left empty.
func (s *Service) resolveDealNames(ctx context.Context, deals []TopDeal) {
	if len(deals) == 0 {
		return
	}

	type assoc struct {
		companyIDs []string
		contactIDs []string
	}
	assocs := make([]assoc, len(deals))

	batchSize := s.api.AssocBatchSize()
	for start := 0; start < len(deals); start += batchSize {
		end := min(start+batchSize, len(deals))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				companyIDs, err := s.api.GetAssociations(gctx, crm.ObjectTypeDeals, deals[i].ID, crm.ObjectTypeCompanies)
				if err != nil {
					return err
				}
				contactIDs, err := s.api.GetAssociations(gctx, crm.ObjectTypeDeals, deals[i].ID, crm.ObjectTypeContacts)
				if err != nil {
					return err
				}
				assocs[i] = assoc{companyIDs: companyIDs, contactIDs: contactIDs}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.logger.Warn("association lookup failed, leaving deal names unresolved", zap.Error(err))
			return
		}

		if end < len(deals) && s.api.AssocDelay() > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.api.AssocDelay()):
			}
		}
	}

	companyNames := s.readCompanyNames(ctx, uniqueIDs(assocs, func(a assoc) []string { return a.companyIDs }))
	contactNames := s.readContactNames(ctx, uniqueIDs(assocs, func(a assoc) []string { return a.contactIDs }))

	for i := range deals {
		for _, id := range assocs[i].companyIDs {
			if name, ok := companyNames[id]; ok && name != "" {
				deals[i].CompanyName = name
				break
			}
		}
		for _, id := range assocs[i].contactIDs {
			if name, ok := contactNames[id]; ok && name != "" {
				deals[i].ContactNames = append(deals[i].ContactNames, name)
			}
		}
	}
}

func (s *Service) readCompanyNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}

	records, err := s.api.BatchReadObjects(ctx, crm.ObjectTypeCompanies, ids, []string{crm.PropCompanyName})
	if err != nil {
		s.logger.Warn("company batch read failed", zap.Error(err))
		return names
	}
	for _, r := range records {
		names[r.ID] = crm.CompanyFromRecord(r).Name
	}
	return names
}

func (s *Service) readContactNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}

	records, err := s.api.BatchReadObjects(ctx, crm.ObjectTypeContacts, ids,
		[]string{crm.PropFirstName, crm.PropLastName, crm.PropEmail})
	if err != nil {
		s.logger.Warn("contact batch read failed", zap.Error(err))
		return names
	}
	for _, r := range records {
		names[r.ID] = crm.ContactFromRecord(r).FullName()
	}
	return names
}

func uniqueIDs[T any](items []T, extract func(T) []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, item := range items {
		for _, id := range extract(item) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
