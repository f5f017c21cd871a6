package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"equiploan/internal/core"
	"equiploan/pkg/domain"
)

// Kind names a report that can be exported.
type Kind string

const (
	KindInventory    Kind = "inventory"
	KindTransactions Kind = "transactions"
	KindOverdue      Kind = "overdue"
	KindMaintenance  Kind = "maintenance"
	KindDamaged      Kind = "damaged"
	KindSessions     Kind = "sessions"
	KindAudit        Kind = "audit"
)

// Kinds lists every exportable report in display order.
func Kinds() []Kind {
	return []Kind{KindInventory, KindTransactions, KindOverdue, KindMaintenance, KindDamaged, KindSessions, KindAudit}
}

// ParseKind accepts a case-insensitive kind name.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown report %q", raw)}
}

// Format is the encoding of an artifact.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", domain.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", raw)}
}

func (f Format) contentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Table is a rendered report: a header row and string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

const timeLayout = time.RFC3339

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func stampPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return stamp(*t)
}

// Build renders kind from snap as of now.
func Build(kind Kind, snap domain.Snapshot, now time.Time) (Table, error) {
	items := make(map[string]domain.Item, len(snap.Items))
	for _, item := range snap.Items {
		items[item.ID] = item
	}
	itemName := func(id string) string { return items[id].Name }
	categories := make(map[string]string, len(snap.Categories))
	for _, c := range snap.Categories {
		categories[c.ID] = c.Name
	}

	switch kind {
	case KindInventory, KindDamaged:
		t := Table{Columns: []string{"id", "name", "serial_number", "category", "status", "condition", "location", "notes"}}
		for _, item := range snap.Items {
			if kind == KindDamaged && (item.Condition != domain.ConditionDamaged || item.Status == domain.ItemMaintenance || item.Status == domain.ItemArchived) {
				continue
			}
			t.Rows = append(t.Rows, []string{item.ID, item.Name, item.SerialNumber, categories[item.CategoryID], string(item.Status), string(item.Condition), item.Location, item.Notes})
		}
		return t, nil
	case KindTransactions, KindOverdue:
		t := Table{Columns: []string{"id", "item", "borrower_name", "borrower_id_number", "status", "date_requested", "date_borrowed", "due_date", "date_returned", "session_code", "remarks"}}
		for _, tr := range snap.Transactions {
			if kind == KindOverdue && !core.IsOverdue(tr, now) {
				continue
			}
			t.Rows = append(t.Rows, []string{tr.ID, itemName(tr.ItemID), tr.Borrower.Name, tr.IDNumber, string(tr.Status),
				stamp(tr.DateRequested), stampPtr(tr.DateBorrowed), stamp(tr.DueDate), stampPtr(tr.DateReturned), tr.SessionCode, tr.Remarks})
		}
		return t, nil
	case KindMaintenance:
		t := Table{Columns: []string{"id", "item", "issue_description", "status", "reported_date", "resolved_date", "final_condition"}}
		for _, m := range snap.Maintenance {
			final := ""
			if m.FinalCondition != nil {
				final = string(*m.FinalCondition)
			}
			t.Rows = append(t.Rows, []string{m.ID, itemName(m.ItemID), m.IssueDescription, string(m.Status), stamp(m.ReportedDate), stampPtr(m.ResolvedDate), final})
		}
		return t, nil
	case KindSessions:
		t := Table{Columns: []string{"session_code", "borrower_name", "department", "status", "items", "released", "requested_date", "expected_return_date", "date_released", "date_completed"}}
		for _, s := range snap.Sessions {
			t.Rows = append(t.Rows, []string{s.SessionCode, s.Borrower.Name, s.Department, string(s.Status),
				fmt.Sprint(len(s.ItemIDs)), fmt.Sprint(len(s.ReleasedItemIDs)),
				stamp(s.RequestedDate), stamp(s.ExpectedReturnDate), stampPtr(s.DateReleased), stampPtr(s.DateCompleted)})
		}
		return t, nil
	case KindAudit:
		t := Table{Columns: []string{"timestamp", "action_type", "item", "admin_user", "description"}}
		for _, a := range snap.AuditLogs {
			t.Rows = append(t.Rows, []string{stamp(a.Timestamp), string(a.ActionType), itemName(a.ItemID), a.AdminUser, a.Description})
		}
		return t, nil
	}
	return Table{}, domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown report %q", kind)}
}

// Encode serialises t in format. JSON output is an array of objects keyed by column.
func (t Table) Encode(format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		w := csv.NewWriter(&buf)
		if err := w.Write(t.Columns); err != nil {
			return nil, err
		}
		if err := w.WriteAll(t.Rows); err != nil {
			return nil, err
		}
	case FormatJSON:
		records := make([]map[string]string, 0, len(t.Rows))
		for _, row := range t.Rows {
			rec := make(map[string]string, len(t.Columns))
			for i, col := range t.Columns {
				rec[col] = row[i]
			}
			records = append(records, rec)
		}
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
	return buf.Bytes(), nil
}
