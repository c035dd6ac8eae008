package rules

import (
	"math"
	"time"

	"agencyline/internal/domain"
)

const (
	PaymentHealthy = "healthy"
	PaymentWarning = "warning"
	PaymentDanger  = "danger"

	AssignmentFull    = "full"
	AssignmentPartial = "partial"
	AssignmentNone    = "none"

	QAPassed     = "passed"
	QAInProgress = "in-progress"
	QAFailed     = "failed"
	QANotStarted = "not-started"

	DeadlineOnTrack = "on-track"
	DeadlineAtRisk  = "at-risk"
	DeadlineOverdue = "overdue"
)

const (
	baseScore        = 50
	atRiskDays       = 14
	atRiskProgress   = 70
	fullTeamSize     = 3
	clientItemWeight = 3
)

type PaymentDetails struct {
	Total    float64 `json:"total"`
	Received float64 `json:"received"`
	Overdue  int     `json:"overdue"`
}

type HealthReport struct {
	domain.Health
	PaymentDetails       PaymentDetails `json:"payment_details"`
	OverduePaymentsExist bool           `json:"overdue_payments_exist"`
}

// PaymentTotals sums non-cancelled payments and counts pending ones dated before now.
func PaymentTotals(payments []domain.Payment, now time.Time) PaymentDetails {
	var d PaymentDetails
	for _, p := range payments {
		if p.Status == domain.PaymentCancelled {
			continue
		}
		d.Total += p.Amount
		if p.Status == domain.PaymentReceived {
			d.Received += p.Amount
		}
		if IsPaymentOverdue(p, now) {
			d.Overdue++
		}
	}
	return d
}

func IsPaymentOverdue(p domain.Payment, now time.Time) bool {
	return p.Status == domain.PaymentPending && p.Date != nil && p.Date.Before(now)
}

func HasOverduePayment(payments []domain.Payment, now time.Time) bool {
	for _, p := range payments {
		if IsPaymentOverdue(p, now) {
			return true
		}
	}
	return false
}

// ComputeHealth scores a project from its stages, team, due date and payments.
// It does not touch the project.
func ComputeHealth(p domain.Project, payments []domain.Payment, now time.Time) HealthReport {
	details := PaymentTotals(payments, now)
	h := domain.Health{
		Payment:             paymentHealth(details),
		ClientPending:       ClientPendingCount(p.Stages),
		DeveloperAssignment: developerAssignment(len(p.Team)),
		QAStatus:            qaStatus(p.Stages),
		DeadlineRisk:        DeadlineRisk(p.DueDate, p.Progress, now),
	}
	h.OverallScore = score(h)
	return HealthReport{
		Health:               h,
		PaymentDetails:       details,
		OverduePaymentsExist: details.Overdue > 0,
	}
}

func paymentHealth(d PaymentDetails) string {
	switch {
	case d.Overdue > 0:
		return PaymentDanger
	case d.Received < d.Total*0.5:
		return PaymentWarning
	default:
		return PaymentHealthy
	}
}

// ClientPendingCount counts pending asset requests plus open checklist items
// that mention the client.
func ClientPendingCount(stages []domain.Stage) int {
	n := 0
	for _, st := range stages {
		n += pendingAssets(st)
		if st.Type != domain.StageTypeChecklist {
			continue
		}
		for _, it := range st.Items {
			if !it.Done && textHas(it.Text, "client") {
				n++
			}
		}
	}
	return n
}

func developerAssignment(teamSize int) string {
	switch {
	case teamSize >= fullTeamSize:
		return AssignmentFull
	case teamSize >= 1:
		return AssignmentPartial
	default:
		return AssignmentNone
	}
}

func qaStatus(stages []domain.Stage) string {
	for _, st := range stages {
		if st.Name != domain.StageQA {
			continue
		}
		switch {
		case st.NormalizedStatus() == domain.StageCompleted:
			return QAPassed
		case st.NormalizedStatus() == domain.StageInProgress:
			return QAInProgress
		case st.Health == "danger":
			return QAFailed
		}
		return QANotStarted
	}
	return QANotStarted
}

// DeadlineRisk uses whole days remaining, rounded up.
func DeadlineRisk(due *time.Time, progress int, now time.Time) string {
	if due == nil {
		return DeadlineOnTrack
	}
	daysLeft := int(math.Ceil(due.Sub(now).Hours() / 24))
	switch {
	case daysLeft < 0:
		return DeadlineOverdue
	case daysLeft < atRiskDays && progress < atRiskProgress:
		return DeadlineAtRisk
	default:
		return DeadlineOnTrack
	}
}

func score(h domain.Health) int {
	s := baseScore
	switch h.Payment {
	case PaymentHealthy:
		s += 15
	case PaymentDanger:
		s -= 15
	}
	if h.ClientPending == 0 {
		s += 10
	} else {
		s -= h.ClientPending * clientItemWeight
	}
	if h.DeveloperAssignment == AssignmentFull {
		s += 10
	}
	if h.QAStatus == QAPassed {
		s += 10
	}
	switch h.DeadlineRisk {
	case DeadlineOnTrack:
		s += 10
	case DeadlineOverdue:
		s -= 20
	}
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
