package memory

import (
	"time"

	"equiploan/pkg/domain"
)

// SeedSnapshot returns the demonstration dataset loaded into empty stores.
// Session transactions carry their session id and code so the workflow engine
// can complete or cancel them.
func SeedSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Version:      domain.SnapshotVersion,
		Categories:   seedCategories(),
		Items:        seedItems(),
		Transactions: seedTransactions(),
		Sessions:     seedSessions(),
		Maintenance: []domain.MaintenanceLog{{
			Base:             seedBase("maint-initial-1", "2023-12-08"),
			ItemID:           "item-cam-3",
			IssueDescription: "Lens cover cracked during field trip",
			ReportedDate:     seedTime("2023-12-08"),
			Status:           domain.MaintenanceOngoing,
		}},
		AuditLogs: []domain.AuditLog{
			{ID: "log-1", ActionType: domain.AuditCreate, AdminUser: "System Admin", Timestamp: seedTime("2023-10-01T08:00:00Z"),
				Description: "Initial import of Epson Projector units.", ItemID: "item-proj-1"},
			{ID: "log-2", ActionType: domain.AuditBorrow, AdminUser: "System Admin", Timestamp: seedTime("2024-02-25T14:10:00Z"),
				Description: "Borrowed: Epson EB-X06 Projector by John Mark Rolle.", ItemID: "item-proj-1"},
			{ID: "log-3", ActionType: domain.AuditReturn, AdminUser: "System Admin", Timestamp: seedTime("2024-02-28T16:45:00Z"),
				Description: "Returned: Epson EB-X06 Projector by John Mark Rolle. Status: DAMAGED.", ItemID: "item-proj-1"},
			{ID: "log-gopro-1", ActionType: domain.AuditReturn, AdminUser: "System Admin", Timestamp: seedTime("2024-02-24T15:20:00Z"),
				Description: "Returned: GoPro Hero 11 Black by John Alfred. Status: DAMAGED.", ItemID: "item-cam-3"},
		},
	}
}

func seedCategories() []domain.Category {
	mk := func(id, name, desc, created string) domain.Category {
		return domain.Category{Base: seedBase(id, created), Name: name, Description: desc}
	}
	return []domain.Category{
		mk("cat-proj", "Projectors", "Visual projection equipment", "2023-01-01"),
		mk("cat-lap", "Laptops", "Portable computing units", "2023-01-05"),
		mk("cat-ipad", "iPads", "Tablets and mobile devices", "2023-02-10"),
		mk("cat-cam", "Cameras", "Photography and video gear", "2023-03-15"),
		mk("cat-mic", "Microphones", "Audio recording equipment", "2023-04-20"),
	}
}

func seedItems() []domain.Item {
	mk := func(id, cat, name, serial string, status domain.ItemStatus, cond domain.ItemCondition, loc, added, notes string) domain.Item {
		return domain.Item{
			Base:         seedBase(id, added),
			CategoryID:   cat,
			Name:         name,
			SerialNumber: serial,
			QRCodeValue:  serial,
			Status:       status,
			Condition:    cond,
			Location:     loc,
			Notes:        notes,
		}
	}
	return []domain.Item{
		mk("item-proj-1", "cat-proj", "Epson EB-X06 Projector", "PROJ-EPS-001", domain.ItemAvailable, domain.ConditionDamaged,
			"AV Storage Room 101", "2023-10-01", "3600 Lumens, HDMI. Note: Recently returned with lens issue."),
		mk("item-proj-2", "cat-proj", "BenQ MH560 Business Projector", "PROJ-BNQ-002", domain.ItemBorrowed, domain.ConditionGood,
			"AV Storage Room 101", "2023-10-15", "1080p, High Contrast"),
		// Returned on 2024-02-25 with no loan since.
		mk("item-lap-1", "cat-lap", "Dell Latitude 5420", "LAP-DEL-102", domain.ItemAvailable, domain.ConditionGood,
			"IT Office Rack A", "2023-11-05", "Intel i5, 16GB RAM"),
		mk("item-lap-2", "cat-lap", "MacBook Air M2", "LAP-APL-105", domain.ItemBorrowed, domain.ConditionGood,
			"IT Office Rack A", "2023-11-10", "Silver, 256GB SSD"),
		mk("item-lap-3", "cat-lap", "HP EliteBook 840", "LAP-HP-108", domain.ItemAvailable, domain.ConditionGood,
			"IT Office Rack B", "2023-11-12", "Enterprise model"),
		mk("item-ipad-1", "cat-ipad", "iPad Pro 11-inch", "IPD-APL-201", domain.ItemReserved, domain.ConditionGood,
			"Mobile Lab Cart", "2023-09-20", "Includes Apple Pencil"),
		mk("item-ipad-2", "cat-ipad", "iPad Mini (6th Gen)", "IPD-APL-205", domain.ItemAvailable, domain.ConditionGood,
			"Mobile Lab Cart", "2023-09-25", "Space Grey"),
		mk("item-cam-1", "cat-cam", "Canon EOS R6", "CAM-CAN-301", domain.ItemBorrowed, domain.ConditionGood,
			"Media Locker 01", "2023-12-01", "Body only"),
		mk("item-cam-2", "cat-cam", "Sony A7 IV", "CAM-SON-305", domain.ItemAvailable, domain.ConditionGood,
			"Media Locker 01", "2023-12-05", "High performance"),
		mk("item-cam-3", "cat-cam", "GoPro Hero 11 Black", "CAM-GPR-310", domain.ItemMaintenance, domain.ConditionUnderRepair,
			"Media Locker 02", "2023-12-08", "Damaged lens cover"),
		mk("item-mic-1", "cat-mic", "Shure SM58 Vocal Mic", "MIC-SHU-401", domain.ItemBorrowed, domain.ConditionGood,
			"Sound Cabinet A", "2023-08-15", "Classic dynamic mic"),
		mk("item-mic-2", "cat-mic", "Rode Wireless GO II", "MIC-ROD-405", domain.ItemAvailable, domain.ConditionGood,
			"Sound Cabinet B", "2023-08-20", "Dual channel receiver"),
	}
}

type seedLoan struct {
	id, item                    string
	borrower                    domain.Borrower
	requested, borrowed, due    string
	returned                    string
	status                      domain.TransactionStatus
	returnCondition             domain.ItemCondition
	remarks, ref, session, code string
}

func (l seedLoan) transaction() domain.Transaction {
	t := domain.Transaction{
		Base:               seedBase(l.id, l.requested),
		ItemID:             l.item,
		Borrower:           l.borrower,
		DateRequested:      seedTime(l.requested),
		DueDate:            seedTime(l.due),
		Status:             l.status,
		ConditionOnRelease: domain.ConditionGood,
		Remarks:            l.remarks,
		ReferenceID:        l.ref,
		SessionID:          l.session,
		SessionCode:        l.code,
	}
	if l.borrowed != "" {
		ts := seedTime(l.borrowed)
		t.DateBorrowed = &ts
	}
	if l.returned != "" {
		ts := seedTime(l.returned)
		t.DateReturned = &ts
		cond := l.returnCondition
		t.ConditionOnReturn = &cond
	}
	return t
}

var (
	sarah  = domain.Borrower{Name: "Sarah Jenkins", IDNumber: "S20056", ContactNumber: "555-0234"}
	john   = domain.Borrower{Name: "John Mark Rolle", IDNumber: "S30089", ContactNumber: "555-0789"}
	alfred = domain.Borrower{Name: "John Alfred", IDNumber: "S30099", ContactNumber: "555-0888"}
	alice  = domain.Borrower{Name: "Alice Smith", IDNumber: "S30012", ContactNumber: "555-0111"}
	bob    = domain.Borrower{Name: "Bob Johnson", IDNumber: "S30045", ContactNumber: "555-0222"}
	chen   = domain.Borrower{Name: "Michael Chen", IDNumber: "S10022", ContactNumber: "555-0991"}
	emily  = domain.Borrower{Name: "Emily Davis", IDNumber: "S40011", ContactNumber: "555-0556"}
	david  = domain.Borrower{Name: "David Wilson", IDNumber: "S50033", ContactNumber: "555-0667"}
	mark   = domain.Borrower{Name: "Mark Stevens", IDNumber: "S60077", ContactNumber: "555-0900"}
	old    = domain.Borrower{Name: "Old Request", IDNumber: "S99999", ContactNumber: "555-0000"}
)

func seedTransactions() []domain.Transaction {
	loans := []seedLoan{
		{id: "tx-sample-1", item: "item-lap-2", borrower: sarah, requested: "2024-03-01T09:00:00Z", borrowed: "2024-03-01T09:15:00Z",
			due: "2024-03-10", status: domain.TransactionBorrowed, remarks: "Software Development project", ref: "GF-501",
			session: "session-1", code: "BS-GF501"},
		{id: "tx-sample-2", item: "item-proj-1", borrower: john, requested: "2024-02-25T14:00:00Z", borrowed: "2024-02-25T14:10:00Z",
			returned: "2024-02-28T16:45:00Z", due: "2024-03-01", status: domain.TransactionReturned, returnCondition: domain.ConditionDamaged,
			remarks: "Reported: Unit fell from tripod during presentation.", ref: "GF-502", session: "session-2", code: "BS-GF502"},
		{id: "tx-gopro-sample", item: "item-cam-3", borrower: alfred, requested: "2024-02-20T10:00:00Z", borrowed: "2024-02-20T10:30:00Z",
			returned: "2024-02-24T15:20:00Z", due: "2024-02-27", status: domain.TransactionReturned, returnCondition: domain.ConditionDamaged,
			remarks: "User reported lens cover cracked while filming sports event.", ref: "GF-999", session: "session-7", code: "BS-GF999"},
		{id: "tx-proj-history-1", item: "item-proj-1", borrower: alice, requested: "2024-01-10T08:00:00Z", borrowed: "2024-01-10T08:30:00Z",
			returned: "2024-01-15T17:00:00Z", due: "2024-01-16", status: domain.TransactionReturned, returnCondition: domain.ConditionGood,
			remarks: "Weekly meeting projection", ref: "GF-101", session: "session-8", code: "BS-GF101"},
		{id: "tx-proj-history-2", item: "item-proj-1", borrower: bob, requested: "2024-02-05T10:00:00Z", borrowed: "2024-02-05T10:15:00Z",
			returned: "2024-02-10T09:30:00Z", due: "2024-02-12", status: domain.TransactionReturned, returnCondition: domain.ConditionGood,
			remarks: "Client presentation in Conference Room B", ref: "GF-205", session: "session-9", code: "BS-GF205"},
		{id: "tx-sample-3", item: "item-ipad-1", borrower: chen, requested: "2024-03-05T08:30:00Z",
			due: "2024-03-15", status: domain.TransactionReserved, remarks: "Graphic design seminar next week", ref: "GF-503",
			session: "session-3", code: "BS-GF503"},
		{id: "tx-sample-4", item: "item-cam-1", borrower: emily, requested: "2024-03-02T11:00:00Z", borrowed: "2024-03-02T11:20:00Z",
			due: "2024-03-09", status: domain.TransactionBorrowed, remarks: "Student orientation photography", ref: "GF-504",
			session: "session-4", code: "BS-GF504"},
		{id: "tx-sample-5", item: "item-lap-1", borrower: david, requested: "2024-02-20T10:00:00Z", borrowed: "2024-02-20T10:30:00Z",
			returned: "2024-02-25T09:00:00Z", due: "2024-02-27", status: domain.TransactionReturned, returnCondition: domain.ConditionGood,
			remarks: "Data analysis task completed ahead of schedule.", ref: "GF-505", session: "session-5", code: "BS-GF505"},
		{id: "tx-multi-1", item: "item-proj-2", borrower: mark, requested: "2024-03-10T10:00:00Z", borrowed: "2024-03-10T10:15:00Z",
			due: "2024-03-15", status: domain.TransactionBorrowed, remarks: "Multi-item Session: BS-MULTI-001 | Media Workshop",
			ref: "BS-MULTI-001", session: "session-multi-1", code: "BS-MULTI-001"},
		{id: "tx-multi-2", item: "item-mic-1", borrower: mark, requested: "2024-03-10T10:00:00Z", borrowed: "2024-03-10T10:15:00Z",
			due: "2024-03-15", status: domain.TransactionBorrowed, remarks: "Multi-item Session: BS-MULTI-001 | Media Workshop",
			ref: "BS-MULTI-001", session: "session-multi-1", code: "BS-MULTI-001"},
	}
	out := make([]domain.Transaction, 0, len(loans))
	for _, l := range loans {
		out = append(out, l.transaction())
	}
	return out
}

type seedRequest struct {
	id, code            string
	borrower            domain.Borrower
	department, purpose string
	requested, expected string
	released, completed string
	status              domain.SessionStatus
	items               []string
}

func (r seedRequest) session() domain.BorrowSession {
	s := domain.BorrowSession{
		Base:               seedBase(r.id, r.requested),
		SessionCode:        r.code,
		Borrower:           r.borrower,
		Department:         r.department,
		Purpose:            r.purpose,
		RequestedDate:      seedTime(r.requested),
		ExpectedReturnDate: seedTime(r.expected),
		Status:             r.status,
		ItemIDs:            append([]string{}, r.items...),
	}
	if r.released != "" {
		ts := seedTime(r.released)
		s.DateReleased = &ts
		s.ReleasedItemIDs = append([]string(nil), r.items...)
	}
	if r.completed != "" {
		ts := seedTime(r.completed)
		s.DateCompleted = &ts
	}
	return s
}

func seedSessions() []domain.BorrowSession {
	reqs := []seedRequest{
		{id: "session-1", code: "BS-GF501", borrower: sarah, department: "Computer Science", purpose: "Software Development project",
			requested: "2024-03-01T09:00:00Z", expected: "2024-03-10", released: "2024-03-01T09:15:00Z",
			status: domain.SessionActive, items: []string{"item-lap-2"}},
		{id: "session-2", code: "BS-GF502", borrower: john, department: "Engineering", purpose: "Class Presentation",
			requested: "2024-02-25T14:00:00Z", expected: "2024-03-01", released: "2024-02-25T14:10:00Z", completed: "2024-02-28T16:45:00Z",
			status: domain.SessionCompleted, items: []string{"item-proj-1"}},
		{id: "session-3", code: "BS-GF503", borrower: chen, department: "Design", purpose: "Graphic design seminar next week",
			requested: "2024-03-05T08:30:00Z", expected: "2024-03-15",
			status: domain.SessionApproved, items: []string{"item-ipad-1"}},
		{id: "session-4", code: "BS-GF504", borrower: emily, department: "Arts & Media", purpose: "Student orientation photography",
			requested: "2024-03-02T11:00:00Z", expected: "2024-03-09", released: "2024-03-02T11:20:00Z",
			status: domain.SessionActive, items: []string{"item-cam-1"}},
		{id: "session-5", code: "BS-GF505", borrower: david, department: "Data Science", purpose: "Data analysis task",
			requested: "2024-02-20T10:00:00Z", expected: "2024-02-27", released: "2024-02-20T10:30:00Z", completed: "2024-02-25T09:00:00Z",
			status: domain.SessionCompleted, items: []string{"item-lap-1"}},
		{id: "session-6", code: "BS-CANCELLED", borrower: old, department: "History", purpose: "Cancelled project",
			requested: "2024-01-01T10:00:00Z", expected: "2024-01-05",
			status: domain.SessionCancelled, items: []string{}},
		{id: "session-7", code: "BS-GF999", borrower: alfred, department: "Engineering", purpose: "Field research",
			requested: "2024-02-20T10:00:00Z", expected: "2024-02-27", released: "2024-02-20T10:30:00Z", completed: "2024-02-24T15:20:00Z",
			status: domain.SessionCompleted, items: []string{"item-cam-3"}},
		{id: "session-8", code: "BS-GF101", borrower: alice, department: "Management", purpose: "Weekly meeting projection",
			requested: "2024-01-10T08:00:00Z", expected: "2024-01-16", released: "2024-01-10T08:30:00Z", completed: "2024-01-15T17:00:00Z",
			status: domain.SessionCompleted, items: []string{"item-proj-1"}},
		{id: "session-9", code: "BS-GF205", borrower: bob, department: "Sales", purpose: "Client presentation",
			requested: "2024-02-05T10:00:00Z", expected: "2024-02-12", released: "2024-02-05T10:15:00Z", completed: "2024-02-10T09:30:00Z",
			status: domain.SessionCompleted, items: []string{"item-proj-1"}},
		{id: "session-multi-1", code: "BS-MULTI-001", borrower: mark, department: "Media Arts", purpose: "Media Production Workshop",
			requested: "2024-03-10T10:00:00Z", expected: "2024-03-15", released: "2024-03-10T10:15:00Z",
			status: domain.SessionActive, items: []string{"item-proj-2", "item-mic-1"}},
	}
	out := make([]domain.BorrowSession, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.session())
	}
	out[2].ReservedItemIDs = []string{"item-ipad-1"}
	return out
}

func seedBase(id, created string) domain.Base {
	ts := seedTime(created)
	return domain.Base{ID: id, CreatedAt: ts, UpdatedAt: ts}
}

// seedTime accepts RFC 3339 timestamps and bare dates, which are read as UTC midnight.
func seedTime(v string) time.Time {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC()
	}
	ts, err := time.Parse(time.DateOnly, v)
	if err != nil {
		panic("memory: invalid seed time " + v)
	}
	return ts
}
