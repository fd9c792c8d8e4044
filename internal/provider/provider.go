package provider

import (
	"fmt"
	"strings"

	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/seriesdb"
)

// Provider produces canonical build outcomes for unsynced work. A call to
// BuildResults re-derives its work queue from the store; once a build's
// sync flag is set the provider never reports it again. Backend errors are
// contained to the affected series or build and logged; only store
// failures surface as an error.
type Provider interface {
	Name() domain.ProviderID
	Token() string
	BuildResults(pwInstance, pwProject string) ([]domain.Outcome, error)
}

// Options carries optional provider settings
type Options struct {
	// APIBase overrides the backend API URL, used when testing against
	// local stand-in servers.
	APIBase string
}

// New constructs a provider by name. The name set is closed; anything else
// is an error.
func New(name, token string, db *seriesdb.Store, opts Options) (Provider, error) {
	switch domain.ProviderID(strings.ToLower(name)) {
	case domain.ProviderGitHub:
		return NewGitHub(token, db, opts.APIBase), nil
	case domain.ProviderTravis:
		return NewTravis(token, db, opts.APIBase), nil
	case domain.ProviderCirrus:
		return NewCirrus(token, db, opts.APIBase), nil
	case domain.ProviderDummy:
		return NewDummy(token, db), nil
	}
	return nil, fmt.Errorf("unknown CI provider %q", name)
}

// branchName is the CI-side branch allocated to a series
func branchName(seriesID int) string {
	return fmt.Sprintf("series_%d", seriesID)
}
