package httpapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"equiploan/pkg/domain"
)

// Date accepts RFC3339 timestamps or bare 2006-01-02 dates.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := parseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, domain.ValidationError{Field: "date", Message: "expected RFC3339 or YYYY-MM-DD, got " + raw}
	}
	return t, nil
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type itemRequest struct {
	CategoryID   string               `json:"category_id"`
	Name         string               `json:"name"`
	SerialNumber string               `json:"serial_number"`
	QRCodeValue  string               `json:"qr_code_value"`
	Status       domain.ItemStatus    `json:"status"`
	Condition    domain.ItemCondition `json:"condition"`
	Location     string               `json:"location"`
	Notes        string               `json:"notes"`
}

func (r itemRequest) item() domain.Item {
	return domain.Item{
		CategoryID:   r.CategoryID,
		Name:         r.Name,
		SerialNumber: r.SerialNumber,
		QRCodeValue:  r.QRCodeValue,
		Status:       r.Status,
		Condition:    r.Condition,
		Location:     r.Location,
		Notes:        r.Notes,
	}
}

// apply overwrites the fields present in the request.
func (r itemRequest) apply(item *domain.Item) {
	if r.CategoryID != "" {
		item.CategoryID = r.CategoryID
	}
	if r.Name != "" {
		item.Name = r.Name
	}
	if r.SerialNumber != "" {
		item.SerialNumber = r.SerialNumber
	}
	if r.QRCodeValue != "" {
		item.QRCodeValue = r.QRCodeValue
	}
	if r.Status != "" {
		item.Status = r.Status
	}
	if r.Condition != "" {
		item.Condition = r.Condition
	}
	if r.Location != "" {
		item.Location = r.Location
	}
	if r.Notes != "" {
		item.Notes = r.Notes
	}
}

type transactionRequest struct {
	ItemID string `json:"item_id"`
	domain.Borrower
	DateRequested Date                     `json:"date_requested"`
	DueDate       Date                     `json:"due_date"`
	Remarks       string                   `json:"remarks"`
	ReferenceID   string                   `json:"reference_id"`
	Reservation   bool                     `json:"reservation"`
	Status        domain.TransactionStatus `json:"status"`
}

type sessionRequest struct {
	domain.Borrower
	Department         string `json:"department"`
	Purpose            string `json:"purpose"`
	RequestedDate      Date   `json:"requested_date"`
	ExpectedReturnDate Date   `json:"expected_return_date"`
}

type returnRequest struct {
	Condition domain.ItemCondition `json:"condition"`
	Remarks   string               `json:"remarks"`
}

type scanRequest struct {
	Code string `json:"code"`
}

type itemRef struct {
	ItemID string `json:"item_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type issueRequest struct {
	IssueDescription string `json:"issue_description"`
}

type resolveRequest struct {
	FinalCondition domain.ItemCondition `json:"final_condition"`
}

type exportRequest struct {
	Kind    string   `json:"kind"`
	Formats []string `json:"formats"`
}
