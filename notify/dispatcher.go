package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/songzhibin97/jadwal-engine/types"
)

// Sender is the external notification service.
type Sender interface {
	// CreateNotification stores an in-app notification for every account of targetRole.
	CreateNotification(ctx context.Context, targetRole types.Role, subject, message string, sender types.SenderInfo, category types.Category) error

	// SendPushNotification delivers a push message to one device token.
	SendPushNotification(ctx context.Context, token, title, body string) error
}

// Recipients looks up push-token holders.
type Recipients interface {
	StudentsByMajor(ctx context.Context, majorCode string) ([]types.Student, error)
	GetTeacher(ctx context.Context, id uint64) (types.Teacher, error)
}

// Dispatcher delivers notification requests through a Sender.
type Dispatcher struct {
	sender     Sender
	recipients Recipients
	logger     logrus.FieldLogger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sender Sender, recipients Recipients, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{sender: sender, recipients: recipients, logger: logger}
}

// Dispatch delivers one request. Failures come back wrapped in
// types.ErrNotificationDispatch and are logged; they are never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.NotificationRequest) error {
	err := d.dispatch(ctx, req)
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrNotificationDispatch, err)
		d.logger.WithFields(logrus.Fields{
			"request_id":  req.ID,
			"target_role": req.TargetRole,
			"major":       req.TargetMajor,
			"class":       req.ClassName,
			"category":    req.Category,
		}).WithError(err).Warn("notification dispatch failed")
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, req types.NotificationRequest) error {
	switch req.TargetRole {
	case types.TargetKaprodi:
		role, ok := types.KaprodiRoleFor(req.TargetMajor)
		if !ok {
			return fmt.Errorf("no kaprodi role for major %q", req.TargetMajor)
		}
		return d.sender.CreateNotification(ctx, role, req.Subject, req.Message, req.Sender, req.Category)

	case types.TargetAdmin:
		return d.sender.CreateNotification(ctx, types.RoleAdmin, req.Subject, req.Message, req.Sender, req.Category)

	case types.TargetStudent:
		students, err := d.recipients.StudentsByMajor(ctx, req.TargetMajor)
		if err != nil {
			return fmt.Errorf("failed to load students of %s: %w", req.TargetMajor, err)
		}
		var errs []error
		for _, s := range students {
			if s.PushToken == "" {
				continue
			}
			if err := d.sender.SendPushNotification(ctx, s.PushToken, req.Subject, req.Message); err != nil {
				errs = append(errs, fmt.Errorf("student %d: %w", s.ID, err))
			}
		}
		return errors.Join(errs...)

	case types.TargetTeacher:
		t, err := d.recipients.GetTeacher(ctx, req.TargetUserID)
		if err != nil {
			return fmt.Errorf("failed to load teacher %d: %w", req.TargetUserID, err)
		}
		if t.PushToken == "" {
			return nil
		}
		return d.sender.SendPushNotification(ctx, t.PushToken, req.Subject, req.Message)
	}
	return fmt.Errorf("unknown target role %q", req.TargetRole)
}

// DispatchAll delivers requests in order and reports how many failed.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []types.NotificationRequest) int {
	failed := 0
	for _, req := range reqs {
		if err := d.Dispatch(ctx, req); err != nil {
			failed++
		}
	}
	return failed
}

// ConsoleSender logs notifications instead of delivering them.
type ConsoleSender struct {
	Logger logrus.FieldLogger
}

func (s ConsoleSender) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

// CreateNotification implements Sender.
func (s ConsoleSender) CreateNotification(ctx context.Context, targetRole types.Role, subject, message string, sender types.SenderInfo, category types.Category) error {
	s.logger().WithFields(logrus.Fields{
		"target_role": targetRole,
		"category":    category,
		"sender":      sender.Name,
	}).Infof("%s: %s", subject, message)
	return nil
}

// SendPushNotification implements Sender.
func (s ConsoleSender) SendPushNotification(ctx context.Context, token, title, body string) error {
	s.logger().WithField("token", token).Infof("push %s: %s", title, body)
	return nil
}
