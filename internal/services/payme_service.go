package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/newport/internal/metrics"
	"github.com/example/newport/internal/models"
)

// errStateChanged aborts a database transaction whose conditional update lost
// a race; the caller re-reads and decides how to answer.
var errStateChanged = errors.New("transaction state changed concurrently")

// PaymeService implements the Payme Merchant API state machine.
type PaymeService struct {
	db     *gorm.DB
	events Publisher
	cache  IdempotencyCache
	now    func() time.Time
}

func NewPaymeService(db *gorm.DB, events Publisher, cache IdempotencyCache) *PaymeService {
	if events == nil {
		events = Publishers{}
	}
	if cache == nil {
		cache = NoopIdempotencyCache{}
	}
	return &PaymeService{db: db, events: events, cache: cache, now: time.Now}
}

type PaymeAccount struct {
	PaymentID   string `json:"payment_id"`
	ApartmentID string `json:"apartment_id,omitempty"`
}

type CheckPerformParams struct {
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
}

type CreateTransactionParams struct {
	ID      string       `json:"id"`
	Time    int64        `json:"time"`
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
}

type PerformTransactionParams struct {
	ID string `json:"id"`
}

type CancelTransactionParams struct {
	ID     string               `json:"id"`
	Reason *models.CancelReason `json:"reason"`
}

type CheckTransactionParams struct {
	ID string `json:"id"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type DetailItem struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type CheckPerformDetail struct {
	Items []DetailItem `json:"items"`
}

type CheckPerformResult struct {
	Allow  bool               `json:"allow"`
	Detail CheckPerformDetail `json:"detail"`
}

type CreateTransactionResult struct {
	CreateTime  int64                   `json:"create_time"`
	Transaction string                  `json:"transaction"`
	State       models.TransactionState `json:"state"`
}

type PerformTransactionResult struct {
	Transaction string                  `json:"transaction"`
	PerformTime int64                   `json:"perform_time"`
	State       models.TransactionState `json:"state"`
}

type CancelTransactionResult struct {
	Transaction string                  `json:"transaction"`
	CancelTime  int64                   `json:"cancel_time"`
	State       models.TransactionState `json:"state"`
}

type CheckTransactionResult struct {
	CreateTime  int64                   `json:"create_time"`
	PerformTime int64                   `json:"perform_time"`
	CancelTime  int64                   `json:"cancel_time"`
	Transaction string                  `json:"transaction"`
	State       models.TransactionState `json:"state"`
	Reason      *models.CancelReason    `json:"reason"`
}

type StatementTransaction struct {
	ID          string                  `json:"id"`
	Time        int64                   `json:"time"`
	Amount      int64                   `json:"amount"`
	Account     PaymeAccount            `json:"account"`
	CreateTime  int64                   `json:"create_time"`
	PerformTime int64                   `json:"perform_time"`
	CancelTime  int64                   `json:"cancel_time"`
	Transaction string                  `json:"transaction"`
	State       models.TransactionState `json:"state"`
	Reason      *models.CancelReason    `json:"reason"`
}

type StatementResult struct {
	Transactions []StatementTransaction `json:"transactions"`
}

// CheckPerformTransaction reports whether the payment can still be paid.
func (s *PaymeService) CheckPerformTransaction(ctx context.Context, params CheckPerformParams) (*CheckPerformResult, error) {
	payment, err := s.findPayment(ctx, params.Account.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status.Terminal() {
		return nil, NewTransactionError(PaymeErrorAlreadyProcessed)
	}

	return &CheckPerformResult{
		Allow: true,
		Detail: CheckPerformDetail{
			Items: []DetailItem{
				{Title: "Квартира", Value: payment.ApartmentLabel()},
				{Title: "Плательщик", Value: payment.UserName},
			},
		},
	}, nil
}

// CreateTransaction opens a gateway transaction for a pending payment.
// Repeated delivery with the same external id returns the stored result.
func (s *PaymeService) CreateTransaction(ctx context.Context, params CreateTransactionParams) (*CreateTransactionResult, error) {
	payment, err := s.findPayment(ctx, params.Account.PaymentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.lookupTransaction(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replayCreate(existing, payment.ID)
	}

	if params.Amount != payment.MinorAmount() {
		return nil, NewTransactionError(PaymeErrorInvalidAmount)
	}
	if payment.Status.Terminal() {
		return nil, NewTransactionError(PaymeErrorAlreadyProcessed)
	}
	if payment.Status == models.PaymentStatusProcessing {
		// another gateway transaction already holds this payment
		return nil, NewTransactionError(PaymeErrorInvalidState)
	}

	txn := models.PaymeTransaction{
		ExternalID: params.ID,
		PaymentID:  payment.ID,
		Amount:     params.Amount,
		State:      models.TransactionStateCreated,
		CreateTime: params.Time,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(&txn)
		if res.Error != nil {
			return fmt.Errorf("insert payme transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStateChanged
		}

		res = tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(map[string]any{
				"status":                 models.PaymentStatusProcessing,
				"gateway_transaction_id": params.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("mark payment processing: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return NewTransactionError(PaymeErrorInvalidState)
		}
		return nil
	})
	if errors.Is(err, errStateChanged) {
		existing, err := s.lookupTransaction(ctx, params.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, NewTransactionError(PaymeErrorInvalidState)
		}
		return replayCreate(existing, payment.ID)
	}
	if err != nil {
		return nil, err
	}

	metrics.TransactionTransitionsTotal.WithLabelValues("created").Inc()
	log.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"transaction": params.ID,
		"amount":      params.Amount,
	}).Info("Payme transaction created")

	return &CreateTransactionResult{
		CreateTime:  txn.CreateTime,
		Transaction: txn.ExternalID,
		State:       txn.State,
	}, nil
}

func replayCreate(txn *models.PaymeTransaction, paymentID string) (*CreateTransactionResult, error) {
	if txn.State != models.TransactionStateCreated || txn.PaymentID != paymentID {
		return nil, NewTransactionError(PaymeErrorInvalidState)
	}
	return &CreateTransactionResult{
		CreateTime:  txn.CreateTime,
		Transaction: txn.ExternalID,
		State:       txn.State,
	}, nil
}

// PerformTransaction completes a created transaction and its payment.
func (s *PaymeService) PerformTransaction(ctx context.Context, params PerformTransactionParams) (*PerformTransactionResult, error) {
	txn, err := s.findTransaction(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if txn.State != models.TransactionStateCreated {
		return nil, NewTransactionError(PaymeErrorInvalidState)
	}

	now := s.now()
	performTime := now.UnixMilli()

	var payment models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymeTransaction{}).
			Where("id = ? AND state = ?", txn.ID, models.TransactionStateCreated).
			Updates(map[string]any{
				"state":        models.TransactionStateCompleted,
				"perform_time": performTime,
			})
		if res.Error != nil {
			return fmt.Errorf("complete payme transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return NewTransactionError(PaymeErrorInvalidState)
		}

		res = tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", txn.PaymentID, models.PaymentStatusProcessing).
			Updates(map[string]any{
				"status":       models.PaymentStatusCompleted,
				"completed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("complete payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return NewTransactionError(PaymeErrorInvalidState)
		}

		return tx.Where("id = ?", txn.PaymentID).First(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionTransitionsTotal.WithLabelValues("completed").Inc()
	log.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"transaction": txn.ExternalID,
	}).Info("Payme transaction performed")

	s.emit(ctx, newPaymentEvent(EventPaymentCompleted, &payment, now))

	return &PerformTransactionResult{
		Transaction: txn.ExternalID,
		PerformTime: performTime,
		State:       models.TransactionStateCompleted,
	}, nil
}

// CancelTransaction cancels a created or completed transaction. Cancelling an
// already cancelled transaction returns the stored cancel time.
func (s *PaymeService) CancelTransaction(ctx context.Context, params CancelTransactionParams) (*CancelTransactionResult, error) {
	txn, err := s.findTransaction(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if txn.State == models.TransactionStateCancelled {
		return cancelledResult(txn), nil
	}

	now := s.now()
	cancelTime := now.UnixMilli()

	var payment models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymeTransaction{}).
			Where("id = ? AND state IN ?", txn.ID, []models.TransactionState{
				models.TransactionStateCreated,
				models.TransactionStateCompleted,
			}).
			Updates(map[string]any{
				"state":       models.TransactionStateCancelled,
				"cancel_time": cancelTime,
				"reason":      params.Reason,
			})
		if res.Error != nil {
			return fmt.Errorf("cancel payme transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStateChanged
		}

		res = tx.Model(&models.Payment{}).
			Where("id = ? AND status <> ?", txn.PaymentID, models.PaymentStatusCancelled).
			Updates(map[string]any{
				"status":                 models.PaymentStatusCancelled,
				"cancelled_at":           now,
				"cancel_reason":          params.Reason,
				"active_idempotency_key": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("cancel payment: %w", res.Error)
		}

		return tx.Where("id = ?", txn.PaymentID).First(&payment).Error
	})
	if errors.Is(err, errStateChanged) {
		current, err := s.findTransaction(ctx, params.ID)
		if err != nil {
			return nil, err
		}
		if current.State != models.TransactionStateCancelled {
			return nil, NewTransactionError(PaymeErrorInvalidState)
		}
		return cancelledResult(current), nil
	}
	if err != nil {
		return nil, err
	}

	metrics.TransactionTransitionsTotal.WithLabelValues("cancelled").Inc()
	log.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"transaction": txn.ExternalID,
		"from_state":  txn.State,
	}).Info("Payme transaction cancelled")

	if err := s.cache.Forget(ctx, payment.IdempotencyKey); err != nil {
		log.WithError(err).WithField("payment_id", payment.ID).Warn("Failed to evict idempotency key")
	}
	s.emit(ctx, newPaymentEvent(EventPaymentCancelled, &payment, now))

	return &CancelTransactionResult{
		Transaction: txn.ExternalID,
		CancelTime:  cancelTime,
		State:       models.TransactionStateCancelled,
	}, nil
}

func cancelledResult(txn *models.PaymeTransaction) *CancelTransactionResult {
	return &CancelTransactionResult{
		Transaction: txn.ExternalID,
		CancelTime:  txn.CancelTime,
		State:       models.TransactionStateCancelled,
	}
}

// CheckTransaction returns the stored transaction snapshot.
func (s *PaymeService) CheckTransaction(ctx context.Context, params CheckTransactionParams) (*CheckTransactionResult, error) {
	txn, err := s.findTransaction(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	return &CheckTransactionResult{
		CreateTime:  txn.CreateTime,
		PerformTime: txn.PerformTime,
		CancelTime:  txn.CancelTime,
		Transaction: txn.ExternalID,
		State:       txn.State,
		Reason:      txn.Reason,
	}, nil
}

// GetStatement lists transactions created in [from, to], newest first.
func (s *PaymeService) GetStatement(ctx context.Context, params StatementParams) (*StatementResult, error) {
	var txns []models.PaymeTransaction
	if err := s.db.WithContext(ctx).
		Where("create_time >= ? AND create_time <= ?", params.From, params.To).
		Order("create_time desc").
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("list payme transactions: %w", err)
	}

	apartments := make(map[string]string, len(txns))
	if len(txns) > 0 {
		ids := make([]string, 0, len(txns))
		for _, t := range txns {
			ids = append(ids, t.PaymentID)
		}

		var payments []models.Payment
		if err := s.db.WithContext(ctx).
			Select("id", "apartment_id").
			Where("id IN ?", ids).
			Find(&payments).Error; err != nil {
			return nil, fmt.Errorf("load statement payments: %w", err)
		}
		for _, p := range payments {
			apartments[p.ID] = p.ApartmentID
		}
	}

	result := make([]StatementTransaction, 0, len(txns))
	for _, t := range txns {
		result = append(result, StatementTransaction{
			ID:     t.ExternalID,
			Time:   t.CreateTime,
			Amount: t.Amount,
			Account: PaymeAccount{
				PaymentID:   t.PaymentID,
				ApartmentID: apartments[t.PaymentID],
			},
			CreateTime:  t.CreateTime,
			PerformTime: t.PerformTime,
			CancelTime:  t.CancelTime,
			Transaction: t.ExternalID,
			State:       t.State,
			Reason:      t.Reason,
		})
	}

	return &StatementResult{Transactions: result}, nil
}

func (s *PaymeService) findPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	if paymentID == "" {
		return nil, NewTransactionError(PaymeErrorPaymentNotFound)
	}

	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewTransactionError(PaymeErrorPaymentNotFound)
		}
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	return &payment, nil
}

// lookupTransaction returns nil, nil when no transaction has the external id.
func (s *PaymeService) lookupTransaction(ctx context.Context, externalID string) (*models.PaymeTransaction, error) {
	var txn models.PaymeTransaction
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payme transaction %s: %w", externalID, err)
	}
	return &txn, nil
}

func (s *PaymeService) findTransaction(ctx context.Context, externalID string) (*models.PaymeTransaction, error) {
	txn, err := s.lookupTransaction(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, NewTransactionError(PaymeErrorTransactionNotFound)
	}
	return txn, nil
}

// emit publishes after commit; delivery failures are logged, never returned.
func (s *PaymeService) emit(ctx context.Context, event PaymentEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"payment_id": event.PaymentID,
			"event":      event.Type,
		}).Warn("Failed to publish payment event")
	}
}
