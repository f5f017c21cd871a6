package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"equiploan/pkg/domain"
)

func TestOpenTransactionDrivesItemStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cat := mustCategory(t, svc, "Kit")
	item := mustItem(t, svc, cat.ID, "Camera", "CAM-1")

	reserved, _, err := svc.OpenTransaction(ctx, item.ID, jane(), LoanTerms{DueDate: testNow.Add(time.Hour), ReferenceID: "GF-1"}, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if reserved.Status != domain.TransactionReserved || reserved.DateBorrowed != nil {
		t.Fatalf("unexpected reservation %+v", reserved)
	}
	if got := mustGetItem(t, svc, item.ID).Status; got != domain.ItemReserved {
		t.Fatalf("expected Reserved item, got %s", got)
	}

	_, _, err = svc.OpenTransaction(ctx, item.ID, jane(), LoanTerms{DueDate: testNow.Add(time.Hour)}, false)
	expectInvalidState(t, err)

	borrowed, _, err := svc.HandOverReservation(ctx, reserved.ID)
	if err != nil {
		t.Fatalf("hand over: %v", err)
	}
	if borrowed.Status != domain.TransactionBorrowed || borrowed.DateBorrowed == nil {
		t.Fatalf("unexpected handover %+v", borrowed)
	}
	if got := mustGetItem(t, svc, item.ID).Status; got != domain.ItemBorrowed {
		t.Fatalf("expected Borrowed item, got %s", got)
	}
	_, _, err = svc.HandOverReservation(ctx, reserved.ID)
	expectInvalidState(t, err)
	assertLoanConsistency(t, svc)
}

func TestOpenTransactionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.OpenTransaction(ctx, "", jane(), LoanTerms{DueDate: testNow}, false)
	var vErr domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "item_id" {
		t.Fatalf("expected item validation error, got %v", err)
	}
	_, _, err = svc.OpenTransaction(ctx, "ghost", jane(), LoanTerms{DueDate: testNow}, false)
	expectNotFound(t, err, domain.EntityItem)
}

func TestCompleteTransactionIsTypedAndFinal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cat := mustCategory(t, svc, "Kit")
	item := mustItem(t, svc, cat.ID, "Laptop", "LAP-1")
	loan, _, err := svc.OpenTransaction(ctx, item.ID, jane(), LoanTerms{DueDate: testNow.Add(time.Hour)}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, _, err = svc.CompleteTransaction(ctx, loan.ID, domain.ItemCondition("Shattered"), "")
	var vErr domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for unknown condition, got %v", err)
	}

	done, _, err := svc.CompleteTransaction(ctx, loan.ID, domain.ConditionDamaged, "scratched lid")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.TransactionReturned || done.DateReturned == nil || *done.ConditionOnReturn != domain.ConditionDamaged {
		t.Fatalf("unexpected return %+v", done)
	}
	if done.ReturnRemarks != "scratched lid" {
		t.Fatalf("expected return remarks, got %q", done.ReturnRemarks)
	}
	got := mustGetItem(t, svc, item.ID)
	if got.Status != domain.ItemAvailable || got.Condition != domain.ConditionDamaged {
		t.Fatalf("unexpected item after return %+v", got)
	}

	_, _, err = svc.CompleteTransaction(ctx, loan.ID, domain.ConditionGood, "")
	expectInvalidState(t, err)
	_, _, err = svc.UpdateTransaction(ctx, domain.Transaction{Base: domain.Base{ID: loan.ID}, Remarks: "rewrite"})
	expectInvalidState(t, err)
}

func TestUpdateTransactionOnlyAllowsHandover(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cat := mustCategory(t, svc, "Kit")
	item := mustItem(t, svc, cat.ID, "Tablet", "TAB-1")
	res, _, err := svc.OpenTransaction(ctx, item.ID, jane(), LoanTerms{DueDate: testNow.Add(time.Hour)}, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, _, err = svc.UpdateTransaction(ctx, domain.Transaction{Base: domain.Base{ID: res.ID}, Status: domain.TransactionReturned})
	expectInvalidState(t, err)

	due := testNow.Add(48 * time.Hour)
	updated, _, err := svc.UpdateTransaction(ctx, domain.Transaction{
		Base:    domain.Base{ID: res.ID},
		Status:  domain.TransactionBorrowed,
		DueDate: due,
		Remarks: "picked up early",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.TransactionBorrowed || !updated.DueDate.Equal(due) || updated.Remarks != "picked up early" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if got := mustGetItem(t, svc, item.ID).Status; got != domain.ItemBorrowed {
		t.Fatalf("handover must borrow the item, got %s", got)
	}
}

func TestCancelTransactionRollsBackItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cat := mustCategory(t, svc, "Kit")
	item := mustItem(t, svc, cat.ID, "Speaker", "SPK-1")
	loan, _, err := svc.OpenTransaction(ctx, item.ID, jane(), LoanTerms{DueDate: testNow.Add(time.Hour)}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cancelled, _, err := svc.CancelTransaction(ctx, loan.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.TransactionCancelled {
		t.Fatalf("expected Cancelled, got %s", cancelled.Status)
	}
	if got := mustGetItem(t, svc, item.ID).Status; got != domain.ItemAvailable {
		t.Fatalf("expected Available, got %s", got)
	}
	_, _, err = svc.CancelTransaction(ctx, loan.ID)
	expectInvalidState(t, err)
}

func TestReturnSessionItemWithoutLoan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cat := mustCategory(t, svc, "Kit")
	item := mustItem(t, svc, cat.ID, "Mic", "MIC-1")
	sess := approvedSession(t, svc, item)

	_, _, err := svc.ReturnSessionItem(ctx, sess.ID, item.ID, domain.ConditionGood, "")
	expectInvalidState(t, err)
}
