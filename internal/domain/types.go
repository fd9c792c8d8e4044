package domain

// ProviderID identifies a CI backend integration
type ProviderID string

const (
	ProviderGitHub ProviderID = "github"
	ProviderTravis ProviderID = "travis"
	ProviderCirrus ProviderID = "cirrus"
	ProviderDummy  ProviderID = "dummy"
)

// Result is the canonical outcome of a CI run
type Result string

const (
	ResultPassed Result = "passed"
	ResultFailed Result = "failed"
)

// Terminal patch states on the review tracker. A series whose last patch
// reaches one of these no longer needs its CI branch.
const (
	PatchSuperseded       = "superseded"
	PatchRejected         = "rejected"
	PatchAccepted         = "accepted"
	PatchChangesRequested = "changes-requested"
	PatchNotApplicable    = "not-applicable"
)

// IsTerminalPatchState reports whether a patch state releases the series' CI slot
func IsTerminalPatchState(state string) bool {
	switch state {
	case PatchSuperseded, PatchRejected, PatchAccepted, PatchChangesRequested, PatchNotApplicable:
		return true
	}
	return false
}

// ReviewEligibleStates are the patch states still open for recheck requests
var ReviewEligibleStates = []string{"new", "rfc", "under-review"}
