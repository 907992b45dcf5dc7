package amqp

import (
	"encoding/json"
	"time"
)

// ScheduleExportMessage asks the worker to export a loan's amortization
// schedule. It carries only the loan ID, the worker recomputes the schedule
// from the stored terms so the exported rows can never go stale.
type ScheduleExportMessage struct {
	LoanID    int64     `json:"loan_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewScheduleExportMessage creates an export request for the given loan.
func NewScheduleExportMessage(loanID int64) *ScheduleExportMessage {
	return &ScheduleExportMessage{
		LoanID:    loanID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ScheduleExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ScheduleExportMessageFromJSON creates a message from JSON bytes
func ScheduleExportMessageFromJSON(data []byte) (*ScheduleExportMessage, error) {
	var msg ScheduleExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
