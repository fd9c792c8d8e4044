package provider

import (
	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/seriesdb"
)

// Dummy reports success for every unsynced build without touching the
// network. It exists to exercise the orchestration path in tests and
// deployments without a real backend.
type Dummy struct {
	token string
	db    *seriesdb.Store
}

// NewDummy creates the no-op provider
func NewDummy(token string, db *seriesdb.Store) *Dummy {
	return &Dummy{token: token, db: db}
}

func (d *Dummy) Name() domain.ProviderID { return domain.ProviderDummy }
func (d *Dummy) Token() string           { return d.token }

func (d *Dummy) BuildResults(pwInstance, pwProject string) ([]domain.Outcome, error) {
	builds, err := d.db.GetUnsyncedBuilds(pwInstance, domain.ProviderDummy)
	if err != nil {
		return nil, err
	}

	var outcomes []domain.Outcome
	for _, build := range builds {
		if pwProject != "" && pwProject != build.Project {
			continue
		}

		outcomes = append(outcomes, domain.Outcome{
			PWInstance: pwInstance,
			SeriesID:   build.SeriesID,
			SHA:        build.SHA,
			Result:     domain.ResultPassed,
			BuildURL:   "https://example.com/dummy-build",
			PatchName:  build.PatchName,
			RepoName:   build.RepoName,
			TestName:   "dummy-test",
			PatchID:    build.PatchID,
		})

		if err := d.db.SetBuildSynced(pwInstance, build.PatchID, domain.ProviderDummy); err != nil {
			return outcomes, err
		}
	}

	return outcomes, nil
}
