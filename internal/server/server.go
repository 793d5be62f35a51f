package server

import (
	"context"
	"net/http"
	"time"

	"github.com/beneflow/beneflow/internal/audit"
	auditdomain "github.com/beneflow/beneflow/internal/audit/domain"
	"github.com/beneflow/beneflow/internal/billing"
	billingdomain "github.com/beneflow/beneflow/internal/billing/domain"
	"github.com/beneflow/beneflow/internal/config"
	"github.com/beneflow/beneflow/internal/customer"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	"github.com/beneflow/beneflow/internal/gateway"
	gwdomain "github.com/beneflow/beneflow/internal/gateway/domain"
	"github.com/beneflow/beneflow/internal/logger"
	"github.com/beneflow/beneflow/internal/notification"
	notificationdomain "github.com/beneflow/beneflow/internal/notification/domain"
	"github.com/beneflow/beneflow/internal/plansync"
	plansyncdomain "github.com/beneflow/beneflow/internal/plansync/domain"
	"github.com/beneflow/beneflow/internal/providers/notify"
	"github.com/beneflow/beneflow/internal/ratelimit"
	"github.com/beneflow/beneflow/internal/rules"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	rules.Module,
	gateway.Module,
	customer.Module,
	billing.Module,
	plansync.Module,
	notify.Module,
	notification.Module,
	audit.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	credsRepo       gwdomain.CredentialsRepository
	customerSvc     customerdomain.Service
	billingSvc      billingdomain.Service
	plansyncSvc     plansyncdomain.Service
	notificationSvc notificationdomain.Service
	auditRec        auditdomain.Recorder
	limiter         *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	CredsRepo       gwdomain.CredentialsRepository
	CustomerSvc     customerdomain.Service
	BillingSvc      billingdomain.Service
	PlansyncSvc     plansyncdomain.Service
	NotificationSvc notificationdomain.Service
	AuditRec        auditdomain.Recorder      `optional:"true"`
	Limiter         *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		genID:           p.GenID,
		credsRepo:       p.CredsRepo,
		customerSvc:     p.CustomerSvc,
		billingSvc:      p.BillingSvc,
		plansyncSvc:     p.PlansyncSvc,
		notificationSvc: p.NotificationSvc,
		auditRec:        p.AuditRec,
		limiter:         p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	tenant := s.engine.Group("", s.TenantMiddleware())

	tenant.POST("/webhook", s.RateLimitMiddleware(), s.HandleWebhook)

	tenant.GET("/customers", s.ListCustomers)
	tenant.GET("/customers/:id", s.GetCustomer)
	tenant.PATCH("/customers/:id/notification-block", s.UpdateNotificationBlock)
	tenant.PATCH("/customers/:id/notification-channel", s.UpdateNotificationChannel)

	tenant.POST("/receivables/:id/refresh", s.RefreshReceivable)
	tenant.POST("/receivables/:id/payment", s.EnsureReceivablePayment)
	tenant.POST("/receivables/:id/settle", s.SettleReceivable)
	tenant.POST("/receivables/:id/chargeback", s.ChargebackReceivable)

	tenant.POST("/plan-sync/run", s.RunPlanSync)

	tenant.GET("/notifications/dashboard", s.NotificationDashboard)
	tenant.POST("/notifications/dispatch", s.DispatchNotifications)
	tenant.PATCH("/notifications/schedule", s.UpdateNotificationSchedule)
	tenant.GET("/notifications/logs", s.ListNotificationLogs)

	tenant.GET("/audit-logs", s.ListAuditLogs)
}

// audit records a manual operation; no-op when the recorder is absent.
func (s *Server) audit(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditRec == nil {
		return
	}
	s.auditRec.Record(ctx, action, targetType, targetID, metadata)
}
