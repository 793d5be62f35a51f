package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/beneflow/beneflow/internal/billing/domain"
	"github.com/beneflow/beneflow/internal/clock"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	"github.com/beneflow/beneflow/internal/gateway"
	gwdomain "github.com/beneflow/beneflow/internal/gateway/domain"
	obsmetrics "github.com/beneflow/beneflow/internal/observability/metrics"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	CredsRepo    gwdomain.CredentialsRepository
	Gateway      *gateway.Client
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	customerRepo customerdomain.Repository
	credsRepo    gwdomain.CredentialsRepository
	gateway      *gateway.Client
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("billing.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		credsRepo:    p.CredsRepo,
		gateway:      p.Gateway,
	}
}

func (s *Service) EnsureCustomer(ctx context.Context, customerID snowflake.ID) error {
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
	if customer.ProviderCustomerID != "" {
		return nil
	}

	creds, err := s.credsRepo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return err
	}
	if !creds.Enabled() {
		s.log.Info("gateway disabled, skipping provider customer creation",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.Int64("customer_id", customerID.Int64()))
		return nil
	}

	if _, err := s.linkProviderCustomer(ctx, tenantID, creds.APIKey, customer); err != nil {
		s.log.Warn("provider customer creation failed",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.Int64("customer_id", customerID.Int64()),
			zap.Error(err))
	}
	return nil
}

func (s *Service) EnsurePayment(ctx context.Context, receivableID snowflake.ID, billingType string, force bool) (*domain.Receivable, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, customerdomain.ErrInvalidTenant
	}

	rec, err := s.repo.FindReceivableByID(ctx, s.db, tenantID, receivableID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrReceivableNotFound
	}
	if rec.CustomerID == nil {
		return nil, domain.ErrCustomerNotLinked
	}
	if rec.ProviderPaymentID != nil && !force {
		return rec, nil
	}

	creds, err := s.credsRepo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if !creds.Enabled() {
		return nil, gwdomain.ErrGatewayDisabled
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, tenantID, *rec.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.ErrCustomerNotLinked
	}
	providerCustomerID, err := s.linkProviderCustomer(ctx, tenantID, creds.APIKey, customer)
	if err != nil {
		return nil, err
	}

	if force && rec.ProviderPaymentID != nil {
		if err := s.gateway.DeletePayment(ctx, creds.APIKey, *rec.ProviderPaymentID); err != nil {
			s.log.Warn("stale provider payment removal failed",
				zap.Int64("tenant_id", tenantID.Int64()),
				zap.String("provider_payment_id", *rec.ProviderPaymentID),
				zap.Error(err))
		}
	}

	if billingType == "" {
		billingType = rec.BillingType
	}
	if billingType == "" {
		billingType = "UNDEFINED"
	}

	payment, err := s.gateway.CreatePayment(ctx, creds.APIKey, gwdomain.CreatePaymentRequest{
		Customer:          providerCustomerID,
		BillingType:       billingType,
		Value:             rec.Value,
		DueDate:           rec.DueDate.Format(dateLayout),
		Description:       rec.Description,
		ExternalReference: externalReference(rec.ID),
	})
	if err != nil {
		return nil, err
	}

	rec.BillingType = billingType
	rec.ProviderPaymentID = &payment.ID
	if payment.Subscription != "" {
		rec.ProviderSubscriptionID = &payment.Subscription
	}
	rec.InvoiceURL = payment.InvoiceURL
	rec.PixQrCode = payment.PixQrCode
	rec.PixExpiration = payment.PixExpirationDate
	if err := s.repo.UpdateReceivableBilling(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) ApplyWebhook(ctx context.Context, event domain.WebhookEvent) (domain.ApplyResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ApplyResult{}, customerdomain.ErrInvalidTenant
	}

	to, known := domain.StatusForEvent(event.Event)
	if !known || event.Payment == nil || event.Payment.ID == "" {
		return domain.ApplyResult{}, domain.ErrInvalidEvent
	}

	var result domain.ApplyResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindReceivableByProviderPaymentID(ctx, tx, tenantID, event.Payment.ID)
		if err != nil {
			return err
		}
		if rec == nil && event.Payment.Subscription != "" {
			rec, err = s.repo.FindOpenReceivableBySubscription(ctx, tx, tenantID, event.Payment.Subscription)
			if err != nil {
				return err
			}
		}
		if rec == nil {
			obsmetrics.Default().IncWebhookUnmatched()
			s.log.Info("webhook matched no receivable",
				zap.Int64("tenant_id", tenantID.Int64()),
				zap.String("event", event.Event),
				zap.String("provider_payment_id", event.Payment.ID))
			result = domain.ApplyResult{Matched: false}
			return nil
		}

		result = domain.ApplyResult{Matched: true, ReceivableID: rec.ID, From: rec.Status, To: rec.Status}
		if !transitionAllowed(rec.Status, to) {
			s.log.Info("webhook ignored for terminal receivable",
				zap.Int64("tenant_id", tenantID.Int64()),
				zap.Int64("receivable_id", rec.ID.Int64()),
				zap.String("status", rec.Status),
				zap.String("event", event.Event))
			return nil
		}

		rec.Status = to
		result.To = to
		enrichFromEvent(rec, event.Payment)
		if err := s.repo.UpdateReceivableBilling(ctx, tx, rec); err != nil {
			return err
		}

		if to == domain.StatusReceived {
			created, err := s.recordPayment(ctx, tx, tenantID, rec, event.Payment)
			if err != nil {
				return err
			}
			result.PaymentCreated = created

			if rec.CustomerID != nil {
				granted, err := s.generateReferralCommissionOnce(ctx, tx, tenantID, *rec.CustomerID, rec.Value)
				if err != nil {
					return err
				}
				result.CommissionCreated = granted
			}
		}
		return nil
	})
	if err != nil {
		return domain.ApplyResult{}, err
	}

	if result.Matched {
		obsmetrics.Default().IncWebhookEvent(to)
	}
	return result, nil
}

func (s *Service) RefreshPaymentStatus(ctx context.Context, receivableID snowflake.ID) (domain.ApplyResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ApplyResult{}, customerdomain.ErrInvalidTenant
	}

	rec, err := s.repo.FindReceivableByID(ctx, s.db, tenantID, receivableID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if rec == nil {
		return domain.ApplyResult{}, domain.ErrReceivableNotFound
	}

	creds, err := s.credsRepo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if !creds.Enabled() {
		return domain.ApplyResult{}, gwdomain.ErrGatewayDisabled
	}

	payment, err := s.lookupProviderPayment(ctx, creds.APIKey, rec)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if payment == nil {
		return domain.ApplyResult{}, domain.ErrProviderRecordNotFound
	}

	return s.ApplyWebhook(ctx, domain.WebhookEvent{
		Event: eventForProviderStatus(payment.Status),
		Payment: &domain.WebhookPayment{
			ID:                payment.ID,
			Customer:          payment.Customer,
			Subscription:      payment.Subscription,
			Status:            payment.Status,
			Value:             payment.Value,
			BillingType:       payment.BillingType,
			DueDate:           payment.DueDate,
			InvoiceURL:        payment.InvoiceURL,
			PixQrCode:         payment.PixQrCode,
			PixExpirationDate: payment.PixExpirationDate,
			ExternalReference: payment.ExternalReference,
		},
	})
}

func (s *Service) SettleManually(ctx context.Context, receivableID snowflake.ID) (domain.ApplyResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ApplyResult{}, customerdomain.ErrInvalidTenant
	}

	var result domain.ApplyResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindReceivableByID(ctx, tx, tenantID, receivableID)
		if err != nil {
			return err
		}
		if rec == nil {
			return domain.ErrReceivableNotFound
		}

		result = domain.ApplyResult{Matched: true, ReceivableID: rec.ID, From: rec.Status, To: rec.Status}
		if rec.Status == domain.StatusReceived {
			return nil
		}

		rec.Status = domain.StatusReceived
		result.To = domain.StatusReceived
		if err := s.repo.UpdateReceivableBilling(ctx, tx, rec); err != nil {
			return err
		}

		inserted, err := s.repo.InsertPaymentOnce(ctx, tx, &domain.Payment{
			ID:           s.genID.Generate(),
			TenantID:     tenantID,
			ReceivableID: rec.ID,
			CustomerID:   rec.CustomerID,
			Value:        rec.Value,
			Method:       "MANUAL",
			PaidAt:       s.clock.Now(),
		})
		if err != nil {
			return err
		}
		result.PaymentCreated = inserted

		if rec.CustomerID != nil {
			granted, err := s.generateReferralCommissionOnce(ctx, tx, tenantID, *rec.CustomerID, rec.Value)
			if err != nil {
				return err
			}
			result.CommissionCreated = granted
		}
		return nil
	})
	if err != nil {
		return domain.ApplyResult{}, err
	}
	return result, nil
}

func (s *Service) Chargeback(ctx context.Context, receivableID snowflake.ID) (domain.ApplyResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ApplyResult{}, customerdomain.ErrInvalidTenant
	}

	var result domain.ApplyResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindReceivableByID(ctx, tx, tenantID, receivableID)
		if err != nil {
			return err
		}
		if rec == nil {
			return domain.ErrReceivableNotFound
		}
		if rec.Status != domain.StatusReceived {
			return domain.ErrReceivableNotReceived
		}

		result = domain.ApplyResult{Matched: true, ReceivableID: rec.ID, From: rec.Status, To: domain.StatusCanceled}
		rec.Status = domain.StatusCanceled
		return s.repo.UpdateReceivableBilling(ctx, tx, rec)
	})
	if err != nil {
		return domain.ApplyResult{}, err
	}
	return result, nil
}

func (s *Service) linkProviderCustomer(ctx context.Context, tenantID snowflake.ID, apiKey string, customer *customerdomain.Customer) (string, error) {
	if customer.ProviderCustomerID != "" {
		return customer.ProviderCustomerID, nil
	}

	created, err := s.gateway.CreateCustomer(ctx, apiKey, gwdomain.CreateCustomerRequest{
		Name:              customer.Name,
		Email:             customer.Email,
		MobilePhone:       customer.Phone,
		ExternalReference: customer.ID.String(),
	})
	if err != nil {
		return "", err
	}
	if err := s.customerRepo.UpdateProviderCustomerID(ctx, s.db, tenantID, customer.ID, created.ID); err != nil {
		return "", err
	}
	customer.ProviderCustomerID = created.ID
	return created.ID, nil
}

func (s *Service) lookupProviderPayment(ctx context.Context, apiKey string, rec *domain.Receivable) (*gwdomain.Payment, error) {
	if rec.ProviderPaymentID != nil {
		payment, err := s.gateway.GetPayment(ctx, apiKey, *rec.ProviderPaymentID)
		if err == nil {
			return payment, nil
		}
		var reqErr *gwdomain.RequestError
		if !errors.As(err, &reqErr) || reqErr.StatusCode != 404 {
			return nil, err
		}
	}

	filter := gwdomain.ListPaymentsFilter{Limit: 1}
	if rec.ProviderSubscriptionID != nil {
		filter.Subscription = *rec.ProviderSubscriptionID
	} else {
		filter.ExternalReference = externalReference(rec.ID)
	}
	list, err := s.gateway.ListPayments(ctx, apiKey, filter)
	if err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

func (s *Service) recordPayment(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, rec *domain.Receivable, wp *domain.WebhookPayment) (bool, error) {
	value := wp.Value
	if value == 0 {
		value = rec.Value
	}
	paidAt := s.clock.Now()
	if wp.PaymentDate != "" {
		if parsed, err := time.Parse(dateLayout, wp.PaymentDate); err == nil {
			paidAt = parsed
		}
	}
	providerPaymentID := wp.ID

	return s.repo.InsertPaymentOnce(ctx, tx, &domain.Payment{
		ID:                s.genID.Generate(),
		TenantID:          tenantID,
		ReceivableID:      rec.ID,
		CustomerID:        rec.CustomerID,
		Value:             value,
		Method:            wp.BillingType,
		ProviderPaymentID: &providerPaymentID,
		PaidAt:            paidAt,
	})
}

// generateReferralCommissionOnce grants the referral commission on the first
// settled receivable of a referred customer, together with its payable
// expense. The commissions unique index on customer_id keeps this at most
// once even across races.
func (s *Service) generateReferralCommissionOnce(ctx context.Context, tx *gorm.DB, tenantID, customerID snowflake.ID, value float64) (bool, error) {
	customer, err := s.customerRepo.FindByID(ctx, tx, tenantID, customerID)
	if err != nil {
		return false, err
	}
	if customer == nil || customer.ReferrerID == nil || customer.ReferralRate <= 0 {
		return false, nil
	}

	exists, err := s.repo.HasCommission(ctx, tx, tenantID, customerID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	amount := math.Round(value*customer.ReferralRate*100) / 100
	commission := &domain.Commission{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		CustomerID:    customerID,
		SalespersonID: *customer.ReferrerID,
		Rate:          customer.ReferralRate,
		Amount:        amount,
		Status:        domain.StatusPending,
	}
	if err := s.repo.InsertCommission(ctx, tx, commission); err != nil {
		return false, err
	}

	commissionID := commission.ID
	expense := &domain.Expense{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		CommissionID: &commissionID,
		Description:  fmt.Sprintf("referral commission for customer %d", customerID.Int64()),
		Amount:       amount,
		DueDate:      s.clock.Now().AddDate(0, 1, 0),
		Status:       domain.StatusPending,
	}
	if err := s.repo.InsertExpense(ctx, tx, expense); err != nil {
		return false, err
	}
	return true, nil
}

func transitionAllowed(from, to string) bool {
	switch from {
	case domain.StatusCanceled:
		return false
	case domain.StatusReceived:
		return to == domain.StatusReceived
	}
	return true
}

func enrichFromEvent(rec *domain.Receivable, wp *domain.WebhookPayment) {
	if rec.ProviderPaymentID == nil && wp.ID != "" {
		id := wp.ID
		rec.ProviderPaymentID = &id
	}
	if rec.ProviderSubscriptionID == nil && wp.Subscription != "" {
		sub := wp.Subscription
		rec.ProviderSubscriptionID = &sub
	}
	if wp.Value > 0 {
		rec.Value = wp.Value
	}
	if wp.DueDate != "" {
		if due, err := time.Parse(dateLayout, wp.DueDate); err == nil {
			rec.DueDate = due
		}
	}
	if wp.BillingType != "" {
		rec.BillingType = wp.BillingType
	}
	if wp.InvoiceURL != "" {
		rec.InvoiceURL = wp.InvoiceURL
	}
	if wp.PixQrCode != "" {
		rec.PixQrCode = wp.PixQrCode
	}
	if wp.PixExpirationDate != "" {
		rec.PixExpiration = wp.PixExpirationDate
	}
}

func externalReference(id snowflake.ID) string {
	return fmt.Sprintf("receivable_%d", id.Int64())
}

func eventForProviderStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH":
		return "PAYMENT_RECEIVED"
	case "OVERDUE":
		return "PAYMENT_OVERDUE"
	case "REFUNDED", "DELETED", "CHARGEBACK_REQUESTED":
		return "PAYMENT_REFUNDED"
	default:
		return "PAYMENT_CREATED"
	}
}
