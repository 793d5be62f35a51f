package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	"github.com/beneflow/beneflow/internal/notification/domain"
	obsmetrics "github.com/beneflow/beneflow/internal/observability/metrics"
	"github.com/beneflow/beneflow/internal/providers/notify"
	rulesdomain "github.com/beneflow/beneflow/internal/rules/domain"
	pkgdb "github.com/beneflow/beneflow/pkg/db"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Cfg          config.Config
	NotifyCfg    *config.NotifyConfigHolder
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	Rules        rulesdomain.Service
	Dispatcher   notify.Dispatcher
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          config.Config
	notifyCfg    *config.NotifyConfigHolder
	repo         domain.Repository
	customerRepo customerdomain.Repository
	rules        rulesdomain.Service
	dispatcher   notify.Dispatcher
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("notification.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Cfg,
		notifyCfg:    p.NotifyCfg,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		rules:        p.Rules,
		dispatcher:   p.Dispatcher,
	}
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.Dashboard{}, customerdomain.ErrInvalidTenant
	}

	schedule, err := s.getOrCreateSchedule(ctx, tenantID)
	if err != nil {
		return domain.Dashboard{}, err
	}

	summaries, err := s.repo.ListOpenSummaries(ctx, s.db, tenantID)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dashboard := domain.Dashboard{
		Schedule:       *schedule,
		Customers:      summaries,
		TotalCustomers: len(summaries),
	}
	notifyCfg := s.notifyCfg.Get()
	for _, summary := range summaries {
		dashboard.TotalOpen += summary.OpenCount
		dashboard.TotalDue += summary.TotalDue

		// Mirrors the dispatch skip rules so the dashboard predicts who a
		// run would actually reach.
		channel := domain.ResolveChannel(summary.NotificationChannel, schedule.Channel, notifyCfg.DefaultChannel)
		switch {
		case summary.NotificationBlocked:
			dashboard.BlockedCustomers++
		case recipientFor(channel, summary) == "":
			dashboard.NoContactCustomers++
		default:
			dashboard.EligibleCustomers++
		}
	}
	if schedule.NextRunAt != nil {
		if remaining := schedule.NextRunAt.Sub(s.clock.Now()); remaining > 0 {
			dashboard.SecondsToNextRun = int64(remaining.Seconds())
		}
	}
	return dashboard, nil
}

func (s *Service) DispatchDue(ctx context.Context, force bool) (domain.DispatchResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.DispatchResult{}, customerdomain.ErrInvalidTenant
	}

	schedule, err := s.getOrCreateSchedule(ctx, tenantID)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	now := s.clock.Now()
	if !force {
		if !schedule.Active {
			return domain.DispatchResult{Ran: false}, nil
		}
		if schedule.NextRunAt != nil && now.Before(*schedule.NextRunAt) {
			return domain.DispatchResult{Ran: false}, nil
		}
	}

	start := time.Now()
	batchID := fmt.Sprintf("%d_%d", schedule.ID.Int64(), now.Unix())
	notifyCfg := s.notifyCfg.Get()

	summaries, err := s.repo.ListOpenSummaries(ctx, s.db, tenantID)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	items, err := s.repo.ListOpenItems(ctx, s.db, tenantID)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	itemsByCustomer := make(map[snowflake.ID][]domain.OpenItem, len(summaries))
	for _, item := range items {
		itemsByCustomer[item.CustomerID] = append(itemsByCustomer[item.CustomerID], item)
	}

	result := domain.DispatchResult{Ran: true, BatchID: batchID}
	logs := make([]*domain.Log, 0, len(summaries))
	for _, summary := range summaries {
		channel := domain.ResolveChannel(summary.NotificationChannel, schedule.Channel, notifyCfg.DefaultChannel)
		entry := &domain.Log{
			ID:         s.genID.Generate(),
			TenantID:   tenantID,
			ScheduleID: schedule.ID,
			CustomerID: summary.CustomerID,
			Channel:    channel,
			BatchID:    batchID,
		}

		switch {
		case summary.NotificationBlocked:
			entry.Status = domain.LogStatusSkipped
			entry.Reason = "blocked"
			result.Skipped++
		case recipientFor(channel, summary) == "":
			entry.Status = domain.LogStatusSkipped
			entry.Reason = "no_contact"
			result.Skipped++
		default:
			err := s.send(ctx, channel, notifyCfg, tenantID, summary, itemsByCustomer[summary.CustomerID])
			if err != nil {
				entry.Status = domain.LogStatusFailed
				entry.Reason = err.Error()
				result.Failed++
				s.log.Warn("notification dispatch failed",
					zap.Int64("tenant_id", tenantID.Int64()),
					zap.Int64("customer_id", summary.CustomerID.Int64()),
					zap.String("channel", channel),
					zap.Error(err))
			} else {
				entry.Status = domain.LogStatusSent
				result.Sent++
			}
		}
		obsmetrics.Default().IncDispatchOutcome(channel, strings.ToLower(entry.Status))

		entry.Metadata = logMetadata(summary)
		logs = append(logs, entry)
	}

	// Log rows and the schedule advance commit together, so a crash between
	// them cannot record a run that never moved the schedule (or vice versa).
	nextRun := now.Add(time.Duration(schedule.FrequencyMinutes) * time.Minute)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertLogs(ctx, tx, logs); err != nil {
			return err
		}
		return s.repo.AdvanceSchedule(ctx, tx, tenantID, schedule.ID, now, nextRun)
	})
	if err != nil {
		return domain.DispatchResult{}, err
	}

	obsmetrics.Default().ObserveDispatchRun(time.Since(start))
	s.log.Info("dispatch run finished",
		zap.Int64("tenant_id", tenantID.Int64()),
		zap.String("batch_id", batchID),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, req domain.UpdateScheduleRequest) (domain.Schedule, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.Schedule{}, customerdomain.ErrInvalidTenant
	}

	schedule, err := s.getOrCreateSchedule(ctx, tenantID)
	if err != nil {
		return domain.Schedule{}, err
	}

	if req.FrequencyMinutes != nil {
		if *req.FrequencyMinutes <= 0 {
			return domain.Schedule{}, domain.ErrInvalidFrequency
		}
		schedule.FrequencyMinutes = *req.FrequencyMinutes
		if schedule.LastRunAt != nil {
			next := schedule.LastRunAt.Add(time.Duration(schedule.FrequencyMinutes) * time.Minute)
			schedule.NextRunAt = &next
		}
	}
	if req.Channel != nil {
		channel := strings.ToLower(strings.TrimSpace(*req.Channel))
		if channel != domain.ChannelEmail && channel != domain.ChannelWhatsapp {
			return domain.Schedule{}, domain.ErrInvalidChannel
		}
		schedule.Channel = channel
	}
	if req.Active != nil {
		schedule.Active = *req.Active
	}

	if err := s.repo.UpdateSchedule(ctx, s.db, schedule); err != nil {
		return domain.Schedule{}, err
	}
	return *schedule, nil
}

func (s *Service) UpdateCustomerBlock(ctx context.Context, customerID snowflake.ID, blocked bool) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return customerdomain.ErrInvalidTenant
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, tenantID, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return customerdomain.ErrNotFound
	}
	return s.customerRepo.UpdateNotificationBlock(ctx, s.db, tenantID, customerID, blocked)
}

func (s *Service) UpdateCustomerChannel(ctx context.Context, customerID snowflake.ID, channel string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return customerdomain.ErrInvalidTenant
	}

	channel = strings.ToLower(strings.TrimSpace(channel))
	// Empty clears the per-customer override.
	if channel != "" && channel != domain.ChannelEmail && channel != domain.ChannelWhatsapp {
		return domain.ErrInvalidChannel
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, tenantID, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return customerdomain.ErrNotFound
	}
	return s.customerRepo.UpdateNotificationChannel(ctx, s.db, tenantID, customerID, channel)
}

func (s *Service) GetLogs(ctx context.Context, limit int) ([]domain.Log, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, customerdomain.ErrInvalidTenant
	}

	if limit <= 0 {
		limit = 50
	}
	if max := s.cfg.NotificationLogPageMax; max > 0 && limit > max {
		limit = max
	}
	return s.repo.ListLogs(ctx, s.db, tenantID, limit)
}

// getOrCreateSchedule returns the tenant schedule, creating it lazily from
// the tenant's business rules. Creation races resolve through the unique
// tenant_id index.
func (s *Service) getOrCreateSchedule(ctx context.Context, tenantID snowflake.ID) (*domain.Schedule, error) {
	schedule, err := s.repo.FindSchedule(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if schedule != nil {
		return schedule, nil
	}

	resolved, err := s.rules.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := now.Add(time.Duration(resolved.NotificationFrequencyMinutes) * time.Minute)
	schedule = &domain.Schedule{
		ID:               s.genID.Generate(),
		TenantID:         tenantID,
		FrequencyMinutes: resolved.NotificationFrequencyMinutes,
		Channel:          domain.ResolveChannel("", resolved.DefaultChannel, s.notifyCfg.Get().DefaultChannel),
		Active:           true,
		LastRunAt:        &now,
		NextRunAt:        &next,
	}
	if err := s.repo.InsertSchedule(ctx, s.db, schedule); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.repo.FindSchedule(ctx, s.db, tenantID)
		}
		return nil, err
	}
	return schedule, nil
}

func (s *Service) send(ctx context.Context, channel string, notifyCfg config.NotifyConfig, tenantID snowflake.ID, summary domain.CustomerSummary, items []domain.OpenItem) error {
	data := newTemplateData(summary.Name, summary.OpenCount, summary.TotalDue, summary.NearestDue)

	charges := make([]map[string]any, 0, len(items))
	for _, item := range items {
		charges = append(charges, map[string]any{
			"description": item.Description,
			"value":       item.Value,
			"due_date":    item.DueDate.Format("2006-01-02"),
		})
	}
	metadata := map[string]any{
		"tenant_id": tenantID.Int64(),
		"charges":   charges,
		"total_due": summary.TotalDue,
	}

	msg := notify.Message{
		Recipient: recipientFor(channel, summary),
		Metadata:  metadata,
	}

	var err error
	if channel == domain.ChannelEmail {
		if msg.Subject, err = renderTemplate("email_subject", notifyCfg.EmailSubject, data); err != nil {
			return err
		}
		if msg.Text, err = renderTemplate("email_text", notifyCfg.EmailText, data); err != nil {
			return err
		}
		if msg.HTML, err = renderTemplate("email_html", notifyCfg.EmailHTML, data); err != nil {
			return err
		}
	} else {
		if msg.Text, err = renderTemplate("whatsapp_text", notifyCfg.WhatsappText, data); err != nil {
			return err
		}
	}

	return s.dispatcher.Send(ctx, channel, msg)
}

func recipientFor(channel string, summary domain.CustomerSummary) string {
	if channel == domain.ChannelEmail {
		return strings.TrimSpace(summary.Email)
	}
	return strings.TrimSpace(summary.Phone)
}

func logMetadata(summary domain.CustomerSummary) datatypes.JSON {
	raw, err := json.Marshal(map[string]any{
		"open_count":  summary.OpenCount,
		"total_due":   summary.TotalDue,
		"nearest_due": summary.NearestDue.Format("2006-01-02"),
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
