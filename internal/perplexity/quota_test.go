package perplexity

import (
	"errors"
	"sync"
	"testing"
)

func TestLedgerConsume_ElevatedExhaustion(t *testing.T) {
	l := newLedger(3, 0)
	for i := 0; i < 3; i++ {
		if err := l.consume(true, 0); err != nil {
			t.Fatalf("consume %v failed: %v", i, err)
		}
	}
	err := l.consume(true, 0)
	var qErr QuotaError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QuotaError, got: %v", err)
	}
	if copilot, _ := l.balances(); copilot != 0 {
		t.Fatalf("expected copilot balance 0, got: %v", copilot)
	}
}

func TestLedgerConsume_InsufficientUploadBudget(t *testing.T) {
	l := newLedger(1, 1)
	err := l.consume(true, 2)
	var qErr QuotaError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QuotaError, got: %v", err)
	}
	if qErr.Kind != "file upload" {
		t.Fatalf("expected file upload quota error, got: %v", qErr.Kind)
	}
	// The elevated budget must not be touched when the upload check fails
	copilot, fileUpload := l.balances()
	if copilot != 1 || fileUpload != 1 {
		t.Fatalf("expected untouched balances 1/1, got: %v/%v", copilot, fileUpload)
	}
}

func TestLedgerConsume_UnlimitedNeverDecrements(t *testing.T) {
	l := newLedger(unlimitedBudget, unlimitedBudget)
	for i := 0; i < 100; i++ {
		if err := l.consume(true, 7); err != nil {
			t.Fatalf("unexpected error on unlimited ledger: %v", err)
		}
	}
	copilot, fileUpload := l.balances()
	if copilot != unlimitedBudget || fileUpload != unlimitedBudget {
		t.Fatalf("unlimited budgets mutated: %v/%v", copilot, fileUpload)
	}
}

func TestLedgerConsume_ConcurrentNeverOverconsumes(t *testing.T) {
	const budget = 50
	l := newLedger(budget, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < budget*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.consume(true, 0) == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != budget {
		t.Fatalf("expected exactly %v grants, got: %v", budget, granted)
	}
	if copilot, _ := l.balances(); copilot != 0 {
		t.Fatalf("expected copilot balance 0, got: %v", copilot)
	}
}

func TestLedgerGrant(t *testing.T) {
	l := newLedger(0, 0)
	l.grant(newAccountCopilot, newAccountFileUpload)
	copilot, fileUpload := l.balances()
	if copilot != 5 || fileUpload != 10 {
		t.Fatalf("expected new account entitlements 5/10, got: %v/%v", copilot, fileUpload)
	}
}
