package service

import (
	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// ResolveCredentials resolves the sender credential pair from an ordered list
// of sources: explicit per-call values, the primary environment pair, then
// the legacy EDRM_MAILER_* pair. User and password resolve independently,
// matching the historical behavior. Returns ErrCredentialsMissing when either
// half stays empty.
func ResolveCredentials(cfg config.Config, user, password string) (domain.Credentials, error) {
	sources := []domain.Credentials{
		{User: user, Password: password},
		{User: cfg.EmailUser, Password: cfg.EmailPassword},
		{User: cfg.LegacyEmailUser, Password: cfg.LegacyEmailPassword},
	}

	var resolved domain.Credentials
	for _, src := range sources {
		if resolved.User == "" {
			resolved.User = src.User
		}
		if resolved.Password == "" {
			resolved.Password = src.Password
		}
	}
	if resolved.User == "" || resolved.Password == "" {
		return domain.Credentials{}, domain.ErrCredentialsMissing
	}
	return resolved, nil
}
