package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Marketplace/internal/models"
)

// Notifier tells users about payouts. Implementations log their own failures;
// a notification problem never affects a payout's recorded state.
type Notifier interface {
	CommissionPaid(ctx context.Context, recipient *models.User, commission *models.Commission)
	WithdrawalCompleted(ctx context.Context, affiliate *models.User, withdrawal *models.Withdrawal)
	WithdrawalFailed(ctx context.Context, affiliate *models.User, withdrawal *models.Withdrawal, reason string)
}

type noopNotifier struct{}

func (noopNotifier) CommissionPaid(context.Context, *models.User, *models.Commission) {}
func (noopNotifier) WithdrawalCompleted(context.Context, *models.User, *models.Withdrawal) {}
func (noopNotifier) WithdrawalFailed(context.Context, *models.User, *models.Withdrawal, string) {}

// EmailSender delivers one HTML e-mail.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

const emailTimeout = 15 * time.Second

// NotificationService stores in-app notifications and, when configured,
// mirrors them by e-mail. E-mails go out in the background so a slow mail
// provider never holds up the payout that triggered them; call Wait before
// exiting to flush them.
type NotificationService struct {
	db    *gorm.DB
	email EmailSender
	log   *zap.Logger
	mail  sync.WaitGroup
}

func NewNotificationService(db *gorm.DB, email EmailSender, log *zap.Logger) *NotificationService {
	// NewEmailService returns a nil *EmailService when e-mail is disabled.
	if es, ok := email.(*EmailService); ok && es == nil {
		email = nil
	}
	return &NotificationService{db: db, email: email, log: log}
}

// Wait blocks until every queued e-mail has been sent or has failed.
func (s *NotificationService) Wait() {
	s.mail.Wait()
}

// CreateNotification creates a new notification
func (s *NotificationService) CreateNotification(ctx context.Context, userID string, notifType models.NotificationType, title, message string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		dataJSON = string(jsonBytes)
	}

	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    dataJSON,
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) notify(ctx context.Context, user *models.User, notifType models.NotificationType, title, message, amount string, data map[string]interface{}) {
	if err := s.CreateNotification(ctx, user.ID, notifType, title, message, data); err != nil {
		s.log.Error("Failed to store notification", zap.String("user_id", user.ID), zap.String("type", string(notifType)), zap.Error(err))
	}
	if s.email == nil || user.Email == "" {
		return
	}

	userID, to, body := user.ID, user.Email, payoutEmailBody(title, message, amount)
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
	s.mail.Add(1)
	go func() {
		defer s.mail.Done()
		defer cancel()
		if err := s.email.Send(mailCtx, to, title, body); err != nil {
			s.log.Error("Failed to send notification email", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// CommissionPaid notifies a recipient that their share was transferred
func (s *NotificationService) CommissionPaid(ctx context.Context, recipient *models.User, commission *models.Commission) {
	amount := commission.Amount.StringFixed(2)
	s.notify(ctx, recipient,
		models.NotificationCommissionPaid,
		"Commission Paid",
		fmt.Sprintf("Your %s commission of GHS %s has been sent to your mobile money wallet.", commission.CommissionType, amount),
		amount,
		map[string]interface{}{
			"commission_id":  commission.ID,
			"transaction_id": commission.TransactionID,
			"amount":         amount,
		},
	)
}

// WithdrawalCompleted notifies an affiliate that the withdrawal went through
func (s *NotificationService) WithdrawalCompleted(ctx context.Context, affiliate *models.User, withdrawal *models.Withdrawal) {
	amount := withdrawal.Amount.StringFixed(2)
	s.notify(ctx, affiliate,
		models.NotificationWithdrawalCompleted,
		"Withdrawal Successful",
		fmt.Sprintf("Your withdrawal of GHS %s has been sent to your mobile money wallet.", amount),
		amount,
		map[string]interface{}{
			"withdrawal_id": withdrawal.ID,
			"amount":        amount,
		},
	)
}

// WithdrawalFailed notifies an affiliate that the transfer failed
func (s *NotificationService) WithdrawalFailed(ctx context.Context, affiliate *models.User, withdrawal *models.Withdrawal, reason string) {
	amount := withdrawal.Amount.StringFixed(2)
	s.notify(ctx, affiliate,
		models.NotificationWithdrawalFailed,
		"Withdrawal Failed",
		fmt.Sprintf("Your withdrawal of GHS %s could not be completed. Reason: %s. The amount is available again.", amount, reason),
		amount,
		map[string]interface{}{
			"withdrawal_id": withdrawal.ID,
			"amount":        amount,
			"reason":        reason,
		},
	)
}

// ListNotifications returns a user's notifications, newest first, and how
// many of them are still unread.
func (s *NotificationService) ListNotifications(ctx context.Context, userID string, offset, limit int, unreadOnly bool) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return notifications, unread, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead marks one of the user's notifications read. Notifications owned
// by someone else are reported as not found.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id string) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}

	if !notification.IsRead {
		now := time.Now()
		notification.IsRead = true
		notification.ReadAt = &now
		if err := s.db.WithContext(ctx).Save(&notification).Error; err != nil {
			return nil, fmt.Errorf("failed to mark notification as read: %w", err)
		}
	}
	return &notification, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}
