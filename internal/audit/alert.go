package audit

import (
	"fmt"
	"strings"

	"github.com/gzhole/toolwarden/internal/patterns"
)

// AlertResponseBytes is the data size above which a large_response alert
// fires.
const AlertResponseBytes = 1_000_000

const (
	AlertSensitiveData = "sensitive_data_exposure"
	AlertLargeResponse = "large_response"
	AlertExecution     = "execution_detected"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Alerts groups the alerts raised for one record.
type Alerts struct {
	Alerts    []Alert `json:"alerts"`
	AuditID   string  `json:"audit_id"`
	Timestamp string  `json:"timestamp"`
}

// Evaluate checks the independent alert triggers. It returns nil when none
// fire.
func Evaluate(rec Record) *Alerts {
	var alerts []Alert

	if rec.Analysis.SensitivityLevel == patterns.SensitivityHigh {
		alerts = append(alerts, Alert{
			Type:     AlertSensitiveData,
			Severity: SeverityHigh,
			Message:  "High sensitivity data detected in response",
		})
	}
	if rec.Analysis.DataSize > AlertResponseBytes {
		alerts = append(alerts, Alert{
			Type:     AlertLargeResponse,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Large response detected: %d bytes", rec.Analysis.DataSize),
		})
	}
	if len(rec.Analysis.ExecutionIndicators) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertExecution,
			Severity: SeverityMedium,
			Message:  "Execution indicators: " + strings.Join(rec.Analysis.ExecutionIndicators, ", "),
		})
	}

	if len(alerts) == 0 {
		return nil
	}
	return &Alerts{Alerts: alerts, AuditID: rec.RecordID, Timestamp: rec.Timestamp}
}
