package perplexity

import "sync"

// unlimitedBudget marks a budget which is never decremented. Sessions built
// from user supplied cookies get it for both budgets, since the real limits
// live server-side for such accounts.
const unlimitedBudget = -1

// Entitlements granted by the upstream service to a freshly provisioned
// account.
const (
	newAccountCopilot    = 5
	newAccountFileUpload = 10
)

// ledger tracks the two consumable budgets of a session. Check and decrement
// happen under one lock so concurrent searches cannot race past the gate.
type ledger struct {
	mu         sync.Mutex
	copilot    int
	fileUpload int
}

func newLedger(copilot, fileUpload int) *ledger {
	return &ledger{copilot: copilot, fileUpload: fileUpload}
}

// consume atomically verifies that both budgets cover the request and
// decrements them. On failure nothing is decremented.
func (l *ledger) consume(elevated bool, nFiles int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elevated && l.copilot != unlimitedBudget && l.copilot < 1 {
		return QuotaError{Kind: "enhanced query", Remaining: l.copilot, Requested: 1}
	}
	if nFiles > 0 && l.fileUpload != unlimitedBudget && l.fileUpload-nFiles < 0 {
		return QuotaError{Kind: "file upload", Remaining: l.fileUpload, Requested: nFiles}
	}
	if elevated && l.copilot != unlimitedBudget {
		l.copilot--
	}
	if nFiles > 0 && l.fileUpload != unlimitedBudget {
		l.fileUpload -= nFiles
	}
	return nil
}

// grant resets both budgets, used after account provisioning.
func (l *ledger) grant(copilot, fileUpload int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.copilot = copilot
	l.fileUpload = fileUpload
}

func (l *ledger) balances() (copilot, fileUpload int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copilot, l.fileUpload
}
