package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TransactionState is the gateway-side state of a Payme transaction.
type TransactionState int

const (
	TransactionStateCreated   TransactionState = 1
	TransactionStateCompleted TransactionState = 2
	TransactionStateCancelled TransactionState = -1
)

// PaymeTransaction mirrors a single Payme payment attempt.
// Times are unix milliseconds; zero means the event has not happened.
type PaymeTransaction struct {
	BaseModel
	ExternalID  string           `gorm:"column:external_id;uniqueIndex;size:64" json:"external_id"`
	PaymentID   string           `gorm:"index;size:64" json:"payment_id"`
	Amount      int64            `json:"amount"`
	State       TransactionState `gorm:"index" json:"state"`
	CreateTime  int64            `gorm:"index" json:"create_time"`
	PerformTime int64            `json:"perform_time"`
	CancelTime  int64            `json:"cancel_time"`
	Reason      *CancelReason    `json:"reason"`
}

// CancelReason holds the reason the gateway sent with CancelTransaction.
// Payme sends numeric codes, manual cancellations may carry text; both are kept
// verbatim and numeric reasons are rendered back as JSON numbers.
type CancelReason string

// UnmarshalJSON accepts either an integer JSON number or a JSON string.
func (r *CancelReason) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = CancelReason(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cancel reason must be a number or string: %w", err)
	}
	code, err := n.Int64()
	if err != nil {
		return fmt.Errorf("cancel reason %s is not an integer code", raw)
	}
	*r = CancelReason(strconv.FormatInt(code, 10))
	return nil
}

// MarshalJSON renders integer reasons as numbers and everything else as strings.
func (r CancelReason) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(r), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(r))
}

// Value implements driver.Valuer.
func (r CancelReason) Value() (driver.Value, error) {
	return string(r), nil
}

// Scan implements sql.Scanner.
func (r *CancelReason) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = ""
	case string:
		*r = CancelReason(v)
	case []byte:
		*r = CancelReason(v)
	case int64:
		*r = CancelReason(strconv.FormatInt(v, 10))
	default:
		return fmt.Errorf("unsupported cancel reason type %T", value)
	}
	return nil
}
