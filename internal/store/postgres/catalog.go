package postgres

import (
	"context"
	"database/sql"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateSite(ctx context.Context, site models.Site) (models.Site, error) {
	if site.SiteID == "" {
		site.SiteID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sites (site_id, name, code, address, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, site.SiteID, site.Name, site.Code, site.Address, site.Phone, site.Active)
	if err := row.Scan(&site.CreatedAt, &site.UpdatedAt); err != nil {
		return models.Site{}, translate(err)
	}
	return site, nil
}

func (s *Store) UpdateSite(ctx context.Context, site models.Site) (models.Site, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE sites
		SET name = $2, code = $3, address = $4, phone = $5, active = $6, updated_at = now()
		WHERE site_id = $1
		RETURNING created_at, updated_at
	`, site.SiteID, site.Name, site.Code, site.Address, site.Phone, site.Active)
	if err := row.Scan(&site.CreatedAt, &site.UpdatedAt); err != nil {
		return models.Site{}, lookupError(translate(err), store.ErrSiteNotFound)
	}
	return site, nil
}

func (s *Store) DeleteSite(ctx context.Context, siteID string) error {
	return deleteRow(ctx, s.pool, `DELETE FROM sites WHERE site_id = $1`, siteID, store.ErrSiteNotFound)
}

func (s *Store) GetSite(ctx context.Context, siteID string) (models.Site, error) {
	var site models.Site
	row := s.pool.QueryRow(ctx, `
		SELECT site_id, name, code, address, phone, active, created_at, updated_at
		FROM sites
		WHERE site_id = $1
	`, siteID)
	if err := row.Scan(&site.SiteID, &site.Name, &site.Code, &site.Address, &site.Phone, &site.Active, &site.CreatedAt, &site.UpdatedAt); err != nil {
		return models.Site{}, lookupError(err, store.ErrSiteNotFound)
	}
	return site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]models.Site, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT site_id, name, code, address, phone, active, created_at, updated_at
		FROM sites
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := make([]models.Site, 0)
	for rows.Next() {
		var site models.Site
		if err := rows.Scan(&site.SiteID, &site.Name, &site.Code, &site.Address, &site.Phone, &site.Active, &site.CreatedAt, &site.UpdatedAt); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sites, nil
}

func (s *Store) CreateReason(ctx context.Context, reason models.Reason) (models.Reason, error) {
	if reason.ReasonID == "" {
		reason.ReasonID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reasons (reason_id, site_id, name, prefix, description, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, reason.ReasonID, reason.SiteID, reason.Name, reason.Prefix, reason.Description, reason.Active)
	if err := row.Scan(&reason.CreatedAt, &reason.UpdatedAt); err != nil {
		return models.Reason{}, lookupError(translate(err), store.ErrSiteNotFound)
	}
	return reason, nil
}

// UpdateReason never moves a reason to another site.
func (s *Store) UpdateReason(ctx context.Context, reason models.Reason) (models.Reason, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE reasons
		SET name = $2, prefix = $3, description = $4, active = $5, updated_at = now()
		WHERE reason_id = $1
		RETURNING site_id, created_at, updated_at
	`, reason.ReasonID, reason.Name, reason.Prefix, reason.Description, reason.Active)
	if err := row.Scan(&reason.SiteID, &reason.CreatedAt, &reason.UpdatedAt); err != nil {
		return models.Reason{}, lookupError(translate(err), store.ErrReasonNotFound)
	}
	return reason, nil
}

func (s *Store) DeleteReason(ctx context.Context, reasonID string) error {
	return deleteRow(ctx, s.pool, `DELETE FROM reasons WHERE reason_id = $1`, reasonID, store.ErrReasonNotFound)
}

func (s *Store) GetReason(ctx context.Context, reasonID string) (models.Reason, error) {
	var reason models.Reason
	row := s.pool.QueryRow(ctx, `
		SELECT reason_id, site_id, name, prefix, description, active, created_at, updated_at
		FROM reasons
		WHERE reason_id = $1
	`, reasonID)
	if err := row.Scan(&reason.ReasonID, &reason.SiteID, &reason.Name, &reason.Prefix, &reason.Description, &reason.Active, &reason.CreatedAt, &reason.UpdatedAt); err != nil {
		return models.Reason{}, lookupError(err, store.ErrReasonNotFound)
	}
	return reason, nil
}

func (s *Store) ListReasons(ctx context.Context, siteID string) ([]models.Reason, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT reason_id, site_id, name, prefix, description, active, created_at, updated_at
		FROM reasons
		WHERE site_id = $1
		ORDER BY name ASC
	`, siteID)
	if err != nil {
		return nil, lookupError(err, store.ErrSiteNotFound)
	}
	defer rows.Close()

	reasons := make([]models.Reason, 0)
	for rows.Next() {
		var reason models.Reason
		if err := rows.Scan(&reason.ReasonID, &reason.SiteID, &reason.Name, &reason.Prefix, &reason.Description, &reason.Active, &reason.CreatedAt, &reason.UpdatedAt); err != nil {
			return nil, err
		}
		reasons = append(reasons, reason)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reasons, nil
}

func (s *Store) CreateModule(ctx context.Context, module models.Module) (models.Module, error) {
	if module.ModuleID == "" {
		module.ModuleID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO modules (module_id, site_id, name, number, active, operator_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, module.ModuleID, module.SiteID, module.Name, module.Number, module.Active, module.OperatorID)
	if err := row.Scan(&module.CreatedAt, &module.UpdatedAt); err != nil {
		return models.Module{}, lookupError(translate(err), store.ErrSiteNotFound)
	}
	return module, nil
}

func (s *Store) UpdateModule(ctx context.Context, module models.Module) (models.Module, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE modules
		SET name = $2, number = $3, active = $4, operator_id = $5, updated_at = now()
		WHERE module_id = $1
		RETURNING site_id, created_at, updated_at
	`, module.ModuleID, module.Name, module.Number, module.Active, module.OperatorID)
	if err := row.Scan(&module.SiteID, &module.CreatedAt, &module.UpdatedAt); err != nil {
		return models.Module{}, lookupError(translate(err), store.ErrModuleNotFound)
	}
	return module, nil
}

func (s *Store) DeleteModule(ctx context.Context, moduleID string) error {
	return deleteRow(ctx, s.pool, `DELETE FROM modules WHERE module_id = $1`, moduleID, store.ErrModuleNotFound)
}

func (s *Store) GetModule(ctx context.Context, moduleID string) (models.Module, error) {
	module, err := scanModule(s.pool.QueryRow(ctx, `
		SELECT module_id, site_id, name, number, active, operator_id, created_at, updated_at
		FROM modules
		WHERE module_id = $1
	`, moduleID))
	if err != nil {
		return models.Module{}, lookupError(err, store.ErrModuleNotFound)
	}
	return module, nil
}

func (s *Store) ListModules(ctx context.Context, siteID string) ([]models.Module, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT module_id, site_id, name, number, active, operator_id, created_at, updated_at
		FROM modules
		WHERE site_id = $1
		ORDER BY number ASC
	`, siteID)
	if err != nil {
		return nil, lookupError(err, store.ErrSiteNotFound)
	}
	defer rows.Close()

	modules := make([]models.Module, 0)
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return modules, nil
}

func (s *Store) AssignModuleOperator(ctx context.Context, moduleID string, operatorID *string) (models.Module, error) {
	module, err := scanModule(s.pool.QueryRow(ctx, `
		UPDATE modules
		SET operator_id = $2, updated_at = now()
		WHERE module_id = $1
		RETURNING module_id, site_id, name, number, active, operator_id, created_at, updated_at
	`, moduleID, operatorID))
	if err != nil {
		return models.Module{}, lookupError(translate(err), store.ErrModuleNotFound)
	}
	return module, nil
}

func scanModule(row pgx.Row) (models.Module, error) {
	var module models.Module
	var operatorIDNull sql.NullString
	if err := row.Scan(&module.ModuleID, &module.SiteID, &module.Name, &module.Number, &module.Active, &operatorIDNull, &module.CreatedAt, &module.UpdatedAt); err != nil {
		return models.Module{}, err
	}
	module.OperatorID = nullStringPtr(operatorIDNull)
	return module, nil
}

func deleteRow(ctx context.Context, q querier, query, id string, notFound error) error {
	tag, err := q.Exec(ctx, query, id)
	if err != nil {
		return deleteError(err, notFound)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
