package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tradexcel/backend/internal/account"
	"github.com/tradexcel/backend/internal/config"
	"github.com/tradexcel/backend/internal/finance"
	"github.com/tradexcel/backend/internal/middleware"
	"github.com/tradexcel/backend/internal/otp"
	"github.com/tradexcel/backend/internal/registration"
	"github.com/tradexcel/backend/internal/token"
)

// Deps aggregates shared dependencies required to wire routes. OTPSender and
// Quoter are optional overrides; tests use them to capture codes and stub
// the quote provider.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Logger    *slog.Logger
	OTPSender otp.Sender
	Quoter    finance.Quoter
}

// Registration is returned from Setup so main can drive the pending sweeper.
type Registration struct {
	Service *registration.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Registration, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     d.Cfg.CORSOrigin,
		AllowCredentials: true,
		AllowMethods:     "GET,POST,PATCH,OPTIONS",
	}))

	// Health
	RegisterHealthRoutes(app, d)

	// Stores
	var accountRepo account.Repository
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
	}

	// OTP channels
	mailSender, smsSender, err := buildSenders(d)
	if err != nil {
		return nil, err
	}
	issuer := otp.NewIssuer(mailSender, smsSender, d.Cfg.OTPTTL)

	// Services and handlers
	regSvc := registration.NewService(accountRepo, issuer, d.Logger, d.Cfg.PendingRetention)
	tokenSvc := token.NewService(d.Cfg, accountRepo)
	accountSvc := account.NewService(accountRepo)
	userHandler := NewUserHandler(d.Cfg, regSvc, tokenSvc, accountSvc)

	quoter := d.Quoter
	if quoter == nil {
		quoter = finance.NewYahooClient("")
	}
	financeHandler := finance.NewHandler(quoter)

	guard := middleware.AuthGuard(d.Cfg.AccessTokenSecret, accountRepo)
	loginLimiter := middleware.LoginRateLimit(d.Cache, 5)
	registerLimiter := middleware.RegisterRateLimit(d.Cache, 5)

	// API routes
	api := app.Group("/api/v1")
	RegisterUserRoutes(api, userHandler, guard, loginLimiter, registerLimiter)
	RegisterFinanceRoutes(api, financeHandler)

	return &Registration{Service: regSvc}, nil
}

// buildSenders selects real providers when configured and falls back to the
// logging sender otherwise. Production requires both providers.
func buildSenders(d Deps) (otp.Sender, otp.Sender, error) {
	if d.OTPSender != nil {
		return d.OTPSender, d.OTPSender, nil
	}

	var mailSender otp.Sender
	if d.Cfg.SMTPHost != "" {
		smtp, err := otp.NewSMTPSender(d.Cfg.SMTPHost, d.Cfg.SMTPPort, d.Cfg.SMTPUsername, d.Cfg.SMTPPassword, d.Cfg.MailFrom)
		if err != nil {
			return nil, nil, err
		}
		mailSender = smtp
	} else {
		if !d.Cfg.IsDev() {
			return nil, nil, fmt.Errorf("SMTP_HOST must be set when APP_ENV=%s", d.Cfg.AppEnv)
		}
		mailSender = otp.NewLogSender("email", d.Logger)
	}

	var smsSender otp.Sender
	if d.Cfg.TwilioAccountSID != "" {
		smsSender = otp.NewTwilioSender(d.Cfg.TwilioAccountSID, d.Cfg.TwilioAuthToken, d.Cfg.TwilioFromNumber)
	} else {
		if !d.Cfg.IsDev() {
			return nil, nil, fmt.Errorf("TWILIO_ACCOUNT_SID must be set when APP_ENV=%s", d.Cfg.AppEnv)
		}
		smsSender = otp.NewLogSender("sms", d.Logger)
	}

	return mailSender, smsSender, nil
}
