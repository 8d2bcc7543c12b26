package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/auth"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
)

type seedOptions struct {
	SiteCode      string
	SiteName      string
	AdminEmail    string
	AdminPassword string
}

var defaultReasons = []models.Reason{
	{Name: "General", Prefix: "GEN", Description: "Atencion general"},
	{Name: "Citas Medicas", Prefix: "CM", Description: "Asignacion de citas"},
	{Name: "Preferencial", Prefix: "PREF", Description: "Atencion preferencial"},
}

// seed creates whatever of the baseline is missing; running it again changes
// nothing.
func seed(ctx context.Context, st store.Store, opts seedOptions) error {
	site, err := ensureSite(ctx, st, strings.ToUpper(strings.TrimSpace(opts.SiteCode)), opts.SiteName)
	if err != nil {
		return err
	}
	if err := ensureReasons(ctx, st, site.SiteID); err != nil {
		return err
	}
	if err := ensureModule(ctx, st, site.SiteID); err != nil {
		return err
	}
	return ensureAdmin(ctx, st, opts.AdminEmail, opts.AdminPassword)
}

func ensureSite(ctx context.Context, st store.CatalogStore, code, name string) (models.Site, error) {
	sites, err := st.ListSites(ctx)
	if err != nil {
		return models.Site{}, fmt.Errorf("list sites: %w", err)
	}
	for _, site := range sites {
		if site.Code == code {
			log.Printf("site %s already exists", code)
			return site, nil
		}
	}
	site, err := st.CreateSite(ctx, models.Site{Name: name, Code: code, Active: true})
	if err != nil {
		return models.Site{}, fmt.Errorf("create site %s: %w", code, err)
	}
	log.Printf("site %s created id=%s", code, site.SiteID)
	return site, nil
}

func ensureReasons(ctx context.Context, st store.CatalogStore, siteID string) error {
	existing, err := st.ListReasons(ctx, siteID)
	if err != nil {
		return fmt.Errorf("list reasons: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, reason := range existing {
		taken[reason.Prefix] = true
	}
	for _, reason := range defaultReasons {
		if taken[reason.Prefix] {
			continue
		}
		reason.SiteID = siteID
		reason.Active = true
		if _, err := st.CreateReason(ctx, reason); err != nil {
			return fmt.Errorf("create reason %s: %w", reason.Prefix, err)
		}
		log.Printf("reason %s created", reason.Prefix)
	}
	return nil
}

func ensureModule(ctx context.Context, st store.CatalogStore, siteID string) error {
	modules, err := st.ListModules(ctx, siteID)
	if err != nil {
		return fmt.Errorf("list modules: %w", err)
	}
	if len(modules) > 0 {
		return nil
	}
	if _, err := st.CreateModule(ctx, models.Module{SiteID: siteID, Name: "Modulo 1", Number: 1, Active: true}); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	log.Printf("module 1 created")
	return nil
}

func ensureAdmin(ctx context.Context, st store.AccountStore, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := st.GetAccountByEmail(ctx, email)
	if err == nil {
		log.Printf("admin %s already exists", email)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}
	if password == "" {
		return errors.New("--admin-password is required to create the admin account")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := st.CreateAccount(ctx, models.Account{
		Name:         "Administrador",
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Active:       true,
	}); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Printf("admin %s created", email)
	return nil
}
