package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/seriesdb"
)

const travisAPIBase = "https://api.travis-ci.com"

// Travis polls a branch-keyed backend: one build per series branch, no
// named sub-jobs. The first terminal build found decides the outcome and
// releases the series' branch slot for reuse.
type Travis struct {
	token   string
	apiBase string
	db      *seriesdb.Store
	client  *http.Client
}

// NewTravis creates the Travis provider. An empty apiBase uses the public API.
func NewTravis(token string, db *seriesdb.Store, apiBase string) *Travis {
	if apiBase == "" {
		apiBase = travisAPIBase
	}
	return &Travis{
		token:   token,
		apiBase: apiBase,
		db:      db,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Travis) Name() domain.ProviderID { return domain.ProviderTravis }
func (t *Travis) Token() string           { return t.token }

type travisBuild struct {
	ID     int    `json:"id"`
	State  string `json:"state"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type travisBuildList struct {
	Builds []travisBuild `json:"builds"`
}

// BuildResults walks the active branches instead of the build queue; the
// branch marker is what keys this backend's work.
func (t *Travis) BuildResults(pwInstance, pwProject string) ([]domain.Outcome, error) {
	branches, err := t.db.GetActiveBranches(pwInstance)
	if err != nil {
		return nil, err
	}

	var outcomes []domain.Outcome
	for _, branch := range branches {
		if pwProject != "" && pwProject != branch.Project {
			continue
		}

		builds, err := t.fetchBuilds(branch.Repo, branch.Branch)
		if err != nil {
			fmt.Printf("Error fetching Travis builds for %s/%s: %v\n",
				branch.Repo, branch.Branch, err)
			continue
		}

		for _, build := range builds {
			if build.State != "failed" && build.State != "passed" && build.State != "errored" {
				continue
			}

			result := domain.ResultPassed
			if build.State != "passed" {
				result = domain.ResultFailed
			}

			outcome := domain.Outcome{
				PWInstance: pwInstance,
				SeriesID:   branch.SeriesID,
				SHA:        build.Commit.SHA,
				Result:     result,
				BuildURL:   fmt.Sprintf("https://travis-ci.com/%s/builds/%d", branch.Repo, build.ID),
				PatchName:  branch.URL,
				RepoName:   branch.Repo,
			}

			patchID, ok, err := t.db.GetPatchIDBySeriesAndSha(branch.SeriesID, build.Commit.SHA, pwInstance)
			if err != nil {
				return outcomes, err
			}
			if ok {
				outcome.PatchID = patchID
				if err := t.db.SetBuildSynced(pwInstance, patchID, domain.ProviderTravis); err != nil {
					return outcomes, err
				}
			}

			outcomes = append(outcomes, outcome)

			// Build is done; free the branch for the next series
			if err := t.db.ClearSeriesBranch(pwInstance, branch.SeriesID); err != nil {
				return outcomes, err
			}
			break
		}
	}

	return outcomes, nil
}

func (t *Travis) fetchBuilds(repo, branch string) ([]travisBuild, error) {
	params := url.Values{}
	params.Set("branch.name", branch)
	params.Set("limit", "10")

	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/repos/%s/builds?%s", t.apiBase, repo, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+t.token)
	req.Header.Set("Travis-API-Version", "3")
	req.Header.Set("User-Agent", "(pw-ci) travis-monitor")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("travis returned %d", resp.StatusCode)
	}

	var list travisBuildList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return list.Builds, nil
}
