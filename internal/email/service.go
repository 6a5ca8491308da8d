package email

import (
	"context"
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/pkg/logger"
)

// Service notifies pharmacy staff about prescriptions needing attention.
type Service interface {
	NotifyReviewRequired(ctx context.Context, p *model.Prescription) error
	NotifyRejected(ctx context.Context, p *model.Prescription, reasons []string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Config holds SMTP settings plus the pharmacist inbox that receives
// review notifications.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	PharmacyInbox string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
	inbox  string
	logger *logger.Logger
}

func NewService(cfg Config, logger *logger.Logger) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		inbox:  cfg.PharmacyInbox,
		logger: logger,
	}
}

func (s *smtpService) NotifyReviewRequired(ctx context.Context, p *model.Prescription) error {
	subject := fmt.Sprintf("Prescription %s needs review", p.PrescriptionNumber)
	body := fmt.Sprintf(
		"Prescription %s for patient %s scored %.2f and requires pharmacist review.\r\n"+
			"Doctor: %s\r\nPriority: %d\r\n",
		p.PrescriptionNumber, p.PatientName, p.ValidationScore, p.DoctorName, p.PriorityLevel)
	return s.SendCustom(ctx, s.inbox, subject, body)
}

func (s *smtpService) NotifyRejected(ctx context.Context, p *model.Prescription, reasons []string) error {
	subject := fmt.Sprintf("Prescription %s rejected", p.PrescriptionNumber)
	body := fmt.Sprintf(
		"Prescription %s for patient %s was rejected.\r\nReasons:\r\n- %s\r\n",
		p.PrescriptionNumber, p.PatientName, strings.Join(reasons, "\r\n- "))
	return s.SendCustom(ctx, s.inbox, subject, body)
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	s.logger.Debug("Email sent", "to", to, "subject", subject)
	return nil
}

// NewNoopService is used when SMTP is not configured; it logs instead of
// sending.
func NewNoopService(logger *logger.Logger) Service {
	return &noopService{logger: logger}
}

type noopService struct {
	logger *logger.Logger
}

func (s *noopService) NotifyReviewRequired(_ context.Context, p *model.Prescription) error {
	s.logger.Info("Email disabled, skipping review notification",
		"prescription_id", p.ID.String())
	return nil
}

func (s *noopService) NotifyRejected(_ context.Context, p *model.Prescription, _ []string) error {
	s.logger.Info("Email disabled, skipping rejection notification",
		"prescription_id", p.ID.String())
	return nil
}

func (s *noopService) SendCustom(_ context.Context, to string, subject string, _ string) error {
	s.logger.Info("Email disabled, skipping message", "to", to, "subject", subject)
	return nil
}
