package kyc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"akwaba.app/internal/ids"
)

// Notifier observes committed transitions. It runs after the write and cannot fail it.
type Notifier interface {
	CaseChanged(ctx context.Context, c Case)
}

// Submission is a subject's request to open a case.
type Submission struct {
	SubjectID      string
	Role           Role
	DocumentURL    string
	DocumentType   DocumentType
	DocumentNumber string
	Consent        bool
}

// Decision is the review authority's verdict on one attempt.
type Decision struct {
	CaseID     string
	Outcome    Outcome
	Reason     string
	ReviewerID string
}

// Service owns the authoritative state of every case.
type Service struct {
	store     Store
	now       func() time.Time
	notifiers []Notifier
}

// ServiceOption configures Service behaviour.
type ServiceOption func(*Service) error

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithNotifier registers an observer of committed transitions.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		if n == nil {
			return errors.New("kyc: nil notifier")
		}
		s.notifiers = append(s.notifiers, n)
		return nil
	}
}

// NewService constructs Service over store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("kyc: store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Submit moves the pair's case from NONE or REJECTED to PENDING with a fresh attempt id.
func (s *Service) Submit(ctx context.Context, sub Submission) (Case, error) {
	subject := strings.TrimSpace(sub.SubjectID)
	if subject == "" {
		return Case{}, fmt.Errorf("%w: subject is required", ErrPolicyViolation)
	}
	policy, err := PolicyFor(sub.Role)
	if err != nil {
		return Case{}, err
	}
	docType := sub.DocumentType
	if docType == "" {
		docType = policy.DefaultDocumentType
	}
	number := strings.TrimSpace(sub.DocumentNumber)
	docURL := strings.TrimSpace(sub.DocumentURL)
	if err := policy.Validate(sub.Consent, docType, number, docURL); err != nil {
		return Case{}, err
	}

	c, err := s.store.MutateSubject(ctx, subject, sub.Role, func(cur Case) (Case, error) {
		next, err := cur.State.Apply(Submit())
		if err != nil {
			return Case{}, err
		}
		now := s.now().UTC()
		return Case{
			State:          next,
			ID:             ids.NewAt(now),
			SubjectID:      subject,
			Role:           sub.Role,
			DocumentType:   docType,
			DocumentNumber: number,
			DocumentURL:    docURL,
			Attempt:        cur.Attempt + 1,
			SubmittedAt:    now,
			UpdatedAt:      now,
		}, nil
	})
	if err != nil {
		return Case{}, err
	}
	s.notify(ctx, c)
	return c, nil
}

// Decide applies a review decision to a pending attempt.
func (s *Service) Decide(ctx context.Context, d Decision) (Case, error) {
	caseID := strings.TrimSpace(d.CaseID)
	if caseID == "" {
		return Case{}, ErrNotFound
	}
	outcome, err := ParseOutcome(string(d.Outcome))
	if err != nil {
		return Case{}, err
	}
	if outcome == OutcomeRejected && strings.TrimSpace(d.Reason) == "" {
		return Case{}, ErrReasonRequired
	}

	c, err := s.store.MutateByID(ctx, caseID, func(cur Case) (Case, error) {
		next, err := cur.State.Apply(Decide(outcome, d.Reason))
		if err != nil {
			return Case{}, err
		}
		now := s.now().UTC()
		cur.State = next
		cur.DecidedAt = now
		cur.DecidedBy = strings.TrimSpace(d.ReviewerID)
		cur.UpdatedAt = now
		return cur, nil
	})
	if err != nil {
		return Case{}, err
	}
	s.notify(ctx, c)
	return c, nil
}

// Get returns the pair's case. A pair without a record is reported as NONE.
func (s *Service) Get(ctx context.Context, subjectID string, role Role) (Case, error) {
	if _, err := PolicyFor(role); err != nil {
		return Case{}, err
	}
	c, err := s.store.Get(ctx, subjectID, role)
	if errors.Is(err, ErrNotFound) {
		return Case{SubjectID: subjectID, Role: role, State: State{Status: StatusNone}}, nil
	}
	if err != nil {
		return Case{}, err
	}
	return c, nil
}

// GetByID returns the attempt with id.
func (s *Service) GetByID(ctx context.Context, id string) (Case, error) {
	return s.store.GetByID(ctx, strings.TrimSpace(id))
}

// Pending lists the review queue, oldest first.
func (s *Service) Pending(ctx context.Context, limit int) ([]Case, error) {
	return s.store.List(ctx, StatusPending, limit)
}

// List returns cases with the given status.
func (s *Service) List(ctx context.Context, status Status, limit int) ([]Case, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	if status == StatusNone {
		return nil, nil
	}
	return s.store.List(ctx, status, limit)
}

// PendingCount returns the size of the review queue.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx, StatusPending)
}

func (s *Service) notify(ctx context.Context, c Case) {
	for _, n := range s.notifiers {
		n.CaseChanged(ctx, c)
	}
}
