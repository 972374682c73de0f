package mailer

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/logger"
	ctrl "github.com/programisto-labs/edrm-mailer/internal/mailer/controller"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
	repo "github.com/programisto-labs/edrm-mailer/internal/mailer/repository"
	svc "github.com/programisto-labs/edrm-mailer/internal/mailer/service"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/transport"
	rl "github.com/programisto-labs/edrm-mailer/internal/platform/ratelimit"
	"github.com/programisto-labs/edrm-mailer/internal/storage"
)

// Registrar wires the mailer slice: repositories, transport, dispatch
// coordinator and HTTP controller.
type Registrar struct {
	ctrl *ctrl.Controller
	svc  domain.Service
}

func NewRegistrar(pg *pgxpool.Pool, rc *redis.Client, cfg config.Config) *Registrar {
	log := logger.New(cfg.AppEnv)

	templates := repo.NewTemplateRepository(pg)
	messages := repo.NewMessageRepository(pg)

	sender := transport.NewRouter(cfg)
	files := storage.New(cfg)

	dispatch := svc.New(templates, messages, sender, files, cfg)
	dispatch.SetLogger(log)

	c := ctrl.New(dispatch, messages, templates)
	c.SetLogger(log)
	if rc != nil {
		c = c.WithRateLimit(rl.NewRedisStore(rc))
	}

	return &Registrar{ctrl: c, svc: dispatch}
}

// Service exposes the dispatch coordinator for the event dispatcher.
func (r *Registrar) Service() domain.Service { return r.svc }

// RegisterV1 registers the mailer routes under /api/v1.
func (r *Registrar) RegisterV1(g *echo.Group) {
	r.ctrl.RegisterV1(g)
}
