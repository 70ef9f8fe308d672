package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/dispatch"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/onboarding"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment/paymenttest"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit"
	rlrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/repo"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/tip"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tips-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-tips-go/pkg/utilities"
)

// app is the process-wide object graph: every client is built once here and
// handed to the services that need it.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	log    *zap.SugaredLogger
	db     *sqlx.DB

	users    user.Store
	limiter  *ratelimit.Limiter
	links    *onboarding.Links
	provider payment.Provider

	onboarding *onboarding.Service
	tips       *tip.Service
}

// bootstrap loads the dotenv file and builds the logger.
func bootstrap(cmd *cobra.Command) (*zap.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	// best-effort: a missing .env leaves the real environment in charge
	_ = godotenv.Load(envFile)

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return lg, nil
}

// newApp wires the services. With memory set, the stores live in process and
// the payment provider is the in-memory fake, so no database or provider
// credentials are needed.
func newApp(cmd *cobra.Command, memory bool) (*app, error) {
	lg, err := bootstrap(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{logger: lg, log: lg.Sugar()}

	if memory {
		a.cfg, err = config.LoadMemory()
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		_ = lg.Sync()
		return nil, err
	}

	var rates ratelimit.Store
	if memory {
		a.log.Warn("running with in-memory stores and a fake payment provider")
		a.users = userrepo.NewMemoryRepo()
		rates = rlrepo.NewMemoryRepo()
		a.provider = paymenttest.New()
	} else {
		a.db, err = database.ConnectX(database.ConfigFromEnv())
		if err != nil {
			_ = lg.Sync()
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.users = userrepo.NewUserRepo(a.db)
		rates = rlrepo.NewRepo(a.db)
		a.provider = payment.NewStripeProvider(a.cfg.Stripe, a.log.Named("stripe"))
	}

	a.limiter = ratelimit.New(rates, a.log.Named("ratelimit"))
	a.links = onboarding.NewLinks(a.cfg.PublicBaseURL, a.cfg.AppBaseURL, a.cfg.CallbackSigningSecret)
	a.onboarding = onboarding.NewService(a.users, a.provider, a.links, a.log.Named("onboarding")).
		WithReservationTTL(a.cfg.ReservationTTL)
	a.tips = tip.NewService(a.users, a.provider, a.cfg.TipBounds, a.cfg.Fees, a.log.Named("tip"))
	return a, nil
}

func (a *app) handlers() router.Handlers {
	return router.Handlers{
		Users:      user.NewHandler(user.NewUserService(a.users), a.log.Named("user")),
		Onboarding: onboarding.NewHandler(a.onboarding, a.links, a.log.Named("onboarding")),
		Dispatch:   dispatch.NewHandler(a.limiter, a.cfg.RateLimits, a.onboarding, a.tips, a.log.Named("dispatch")),
		Health:     a.users,
	}
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warnw("db close failed", "err", err)
		}
	}
	_ = a.logger.Sync()
}
