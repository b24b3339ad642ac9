package domain

type ComplianceResult struct {
	KYCPassed       bool   `json:"kyc_passed"`
	AMLPassed       bool   `json:"aml_passed"`
	SanctionsPassed bool   `json:"sanctions_passed"`
	PEPPassed       bool   `json:"pep_passed"`
	OverallPassed   bool   `json:"overall_passed"`
	Reason          string `json:"reason,omitempty"`
}

type WatchlistType string

const (
	WatchlistSanctions WatchlistType = "sanctions"
	WatchlistPEP       WatchlistType = "pep"
)

type WatchlistEntry struct {
	ID       string        `json:"id"`
	List     WatchlistType `json:"list"`
	Name     string        `json:"name"`
	IsActive bool          `json:"is_active"`
}
