// Package verification issues short-lived, single-use numeric codes.
// A subject holds at most one live code; a new one can only be issued once
// the previous code was consumed or its window elapsed.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"checkout-service/internal/notify"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrCooldown       = errors.New("a verification code was issued recently")
	ErrCodeExpired    = errors.New("verification code expired or not issued")
	ErrInvalidCode    = errors.New("verification code does not match")
	ErrInvalidSubject = errors.New("verification subject is required")
)

// DefaultWindow is both the code lifetime and the re-issue cooldown
const DefaultWindow = 60 * time.Second

const codeDigits = 6

// CodeStore keeps live codes
type CodeStore interface {
	IssueCode(ctx context.Context, subject, code string, ttl time.Duration) (bool, error)
	CodeTTL(ctx context.Context, subject string) (time.Duration, error)
	ConsumeCode(ctx context.Context, subject, code string) (redisclient.ConsumeResult, error)
}

// Issued describes a freshly issued code
type Issued struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	codes  CodeStore
	sender notify.Sender
	window time.Duration
	logger *zap.Logger
}

// NewService creates a verification service. A zero window means DefaultWindow.
func NewService(codes CodeStore, sender notify.Sender, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		codes:  codes,
		sender: sender,
		window: window,
		logger: util.GetLogger(),
	}
}

// Issue generates a code for subject and sends it
func (s *Service) Issue(ctx context.Context, subject string) (*Issued, error) {
	ctx, span := util.StartSpan(ctx, "Verification.Issue")
	defer span.End()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrInvalidSubject
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}

	ok, err := s.codes.IssueCode(ctx, subject, code, s.window)
	if err != nil {
		return nil, err
	}
	if !ok {
		util.VerificationCodesTotal.WithLabelValues("issue", "cooldown").Inc()
		ttl, err := s.codes.CodeTTL(ctx, subject)
		if err != nil || ttl <= 0 {
			if err != nil {
				s.logger.Warn("Failed to read verification code TTL", zap.String("subject", subject), zap.Error(err))
			}
			return nil, ErrCooldown
		}
		return nil, fmt.Errorf("%w: retry in %s", ErrCooldown, ttl.Round(time.Second))
	}
	util.VerificationCodesTotal.WithLabelValues("issue", "ok").Inc()

	body := fmt.Sprintf("Your verification code is %s. It expires in %s.", code, s.window)
	if err := s.sender.Send(ctx, subject, "Verification code", body); err != nil {
		s.logger.Error("Failed to send verification code", zap.String("subject", subject), zap.Error(err))
	}

	return &Issued{Subject: subject, ExpiresAt: time.Now().Add(s.window)}, nil
}

// Verify consumes the subject's code if it matches
func (s *Service) Verify(ctx context.Context, subject, code string) error {
	ctx, span := util.StartSpan(ctx, "Verification.Verify")
	defer span.End()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidSubject
	}

	res, err := s.codes.ConsumeCode(ctx, subject, strings.TrimSpace(code))
	if err != nil {
		return err
	}

	switch res {
	case redisclient.CodeConsumed:
		util.VerificationCodesTotal.WithLabelValues("verify", "ok").Inc()
		return nil
	case redisclient.CodeMismatch:
		util.VerificationCodesTotal.WithLabelValues("verify", "mismatch").Inc()
		return ErrInvalidCode
	default:
		util.VerificationCodesTotal.WithLabelValues("verify", "expired").Inc()
		return ErrCodeExpired
	}
}

func newCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
