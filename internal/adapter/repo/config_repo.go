package repo

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"shortreel/internal/domain"
)

// ProviderConfigRepositoryPG implements domain.ProviderConfigRepository.
// Config rows are mutated by an external CRUD surface; this repository only
// reads. The ORDER BY applies the single-default rule at read time: among
// duplicate is_default rows the (priority desc, id asc) one lists first and
// is the only default the resolver honors.
type ProviderConfigRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProviderConfigRepository creates a new config repository backed by PostgreSQL.
func NewProviderConfigRepository(pool *pgxpool.Pool) *ProviderConfigRepositoryPG {
	return &ProviderConfigRepositoryPG{pool: pool}
}

// ListByCapability returns the non-deleted configs for a capability in
// resolution order: defaults first, then priority descending, then recency.
func (r *ProviderConfigRepositoryPG) ListByCapability(ctx context.Context, capability domain.Capability) ([]domain.ProviderConfig, error) {
	query := `
SELECT id, service_type, provider, name, base_url, api_key, model, default_model,
       endpoint, query_endpoint, priority, is_default, is_active, created_at, updated_at
FROM ai_service_configs
WHERE deleted_at IS NULL AND service_type = $1
ORDER BY is_default DESC, priority DESC, created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, capability)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.ProviderConfig
	for rows.Next() {
		var cfg domain.ProviderConfig
		var modelJSON []byte
		var defaultModel *string
		if err := rows.Scan(
			&cfg.ID,
			&cfg.Capability,
			&cfg.Provider,
			&cfg.Name,
			&cfg.BaseURL,
			&cfg.APIKey,
			&modelJSON,
			&defaultModel,
			&cfg.Endpoint,
			&cfg.QueryEndpoint,
			&cfg.Priority,
			&cfg.IsDefault,
			&cfg.IsActive,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cfg.Models = modelsFromJSON(modelJSON)
		if defaultModel != nil {
			cfg.DefaultModel = *defaultModel
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reconcileDefaults(configs)
	return configs, nil
}

// reconcileDefaults keeps a single authoritative default per capability at
// read time: among duplicate is_default rows the highest-priority one wins,
// ties broken by lowest id. The others are reported as non-default.
func reconcileDefaults(configs []domain.ProviderConfig) {
	winner := -1
	for i := range configs {
		if !configs[i].IsDefault {
			continue
		}
		if winner < 0 ||
			configs[i].Priority > configs[winner].Priority ||
			(configs[i].Priority == configs[winner].Priority && configs[i].ID < configs[winner].ID) {
			winner = i
		}
	}
	if winner < 0 {
		return
	}
	for i := range configs {
		if i != winner {
			configs[i].IsDefault = false
		}
	}
}

// modelsFromJSON tolerates both a JSON array and a bare string, matching the
// external writer's historical formats.
func modelsFromJSON(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var models []string
	if err := json.Unmarshal(raw, &models); err == nil {
		return models
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}
