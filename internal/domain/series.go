package domain

// Series is one review-tracker change-set under tracking.
// (Instance, SeriesID) uniquely identifies it; Branch and Repo are either
// both empty or both set.
type Series struct {
	SeriesID   int
	Project    string
	URL        string
	Submitter  string
	Email      string
	Submitted  bool
	Completed  bool
	Instance   string
	Downloaded int
	Branch     string
	Repo       string
}

// Build is one (series, patch) unit of work awaiting CI confirmation.
// The row is immutable except for the per-provider sync flags, which only
// ever flip false to true.
type Build struct {
	SeriesID  int
	PatchID   int
	PatchURL  string
	PatchName string
	SHA       string
	Instance  string
	Project   string
	RepoName  string

	GitHubSync bool
	TravisSync bool
	CirrusSync bool
	DummySync  bool
}

// Synced reports the sync flag for the given provider
func (b *Build) Synced(p ProviderID) bool {
	switch p {
	case ProviderGitHub:
		return b.GitHubSync
	case ProviderTravis:
		return b.TravisSync
	case ProviderCirrus:
		return b.CirrusSync
	case ProviderDummy:
		return b.DummySync
	}
	return false
}

// Outcome is the canonical result record every provider yields. Providers
// collapse their backend's status vocabulary to Result before yielding.
type Outcome struct {
	PWInstance string
	SeriesID   int
	SHA        string
	Result     Result
	BuildURL   string
	PatchName  string
	RepoName   string
	TestName   string
	PatchID    int
}

// RecheckRequest is a request, parsed out of review comments, for a named
// CI system to re-run. Dispatch of rechecks is an extension point; only
// detection and persistence happen here.
type RecheckRequest struct {
	ID          int
	MessageID   string
	RequestedBy string
	SeriesRef   string
	PatchID     int
	CIName      string
	Instance    string
	Project     string
	Synced      bool
}
