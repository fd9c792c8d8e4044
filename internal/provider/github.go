package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/seriesdb"
)

const githubAPIBase = "https://api.github.com"

// GitHub polls GitHub Actions workflow runs for series branches. One
// outcome is produced per distinct workflow name, using the latest-started
// run of each, so a series can close out several CI channels independently.
type GitHub struct {
	token   string
	apiBase string
	db      *seriesdb.Store
	client  *http.Client
}

// NewGitHub creates the GitHub Actions provider. An empty apiBase uses the
// public API.
func NewGitHub(token string, db *seriesdb.Store, apiBase string) *GitHub {
	if apiBase == "" {
		apiBase = githubAPIBase
	}
	return &GitHub{
		token:   token,
		apiBase: apiBase,
		db:      db,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GitHub) Name() domain.ProviderID { return domain.ProviderGitHub }
func (g *GitHub) Token() string           { return g.token }

type workflowRun struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	HTMLURL      string    `json:"html_url"`
	RunStartedAt time.Time `json:"run_started_at"`
}

type workflowRunList struct {
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

// BuildResults walks the unsynced build queue, fetching workflow runs once
// per series. A build whose runs are all still in flight keeps its sync
// flag so a later cycle picks it up again.
func (g *GitHub) BuildResults(pwInstance, pwProject string) ([]domain.Outcome, error) {
	builds, err := g.db.GetUnsyncedBuilds(pwInstance, domain.ProviderGitHub)
	if err != nil {
		return nil, err
	}

	var outcomes []domain.Outcome
	prevSeries := -1
	var runs []workflowRun
	runsOK := false

	for _, build := range builds {
		if pwProject != "" && pwProject != build.Project {
			continue
		}

		if build.SeriesID != prevSeries {
			prevSeries = build.SeriesID
			runs, err = g.fetchRuns(build.RepoName, branchName(build.SeriesID))
			if err != nil {
				fmt.Printf("Error fetching GitHub Actions runs for %s %s: %v\n",
					build.RepoName, branchName(build.SeriesID), err)
				runsOK = false
				continue
			}
			runsOK = true
		}

		if !runsOK || len(runs) == 0 {
			continue
		}

		// Latest-started run per distinct workflow name
		latest := make(map[string]workflowRun)
		for _, run := range runs {
			if cur, ok := latest[run.Name]; !ok || run.RunStartedAt.After(cur.RunStartedAt) {
				latest[run.Name] = run
			}
		}

		names := make([]string, 0, len(latest))
		for name := range latest {
			names = append(names, name)
		}
		sort.Strings(names)

		yielded := false
		for _, name := range names {
			run := latest[name]

			if run.Status != "completed" {
				fmt.Printf("patch_id=%d series_id=%d workflow %q not completed. Skipping\n",
					build.PatchID, build.SeriesID, name)
				continue
			}

			result := domain.ResultFailed
			if run.Conclusion == "success" {
				result = domain.ResultPassed
			}

			outcomes = append(outcomes, domain.Outcome{
				PWInstance: pwInstance,
				SeriesID:   build.SeriesID,
				SHA:        build.SHA,
				Result:     result,
				BuildURL:   run.HTMLURL,
				PatchName:  build.PatchName,
				RepoName:   build.RepoName,
				TestName:   name,
				PatchID:    build.PatchID,
			})
			yielded = true
		}

		if yielded {
			if err := g.db.SetBuildSynced(pwInstance, build.PatchID, domain.ProviderGitHub); err != nil {
				return outcomes, err
			}
		}
	}

	return outcomes, nil
}

func (g *GitHub) fetchRuns(repo, branch string) ([]workflowRun, error) {
	params := url.Values{}
	params.Set("branch", branch)
	params.Set("per_page", "100")

	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/repos/%s/actions/runs?%s", g.apiBase, repo, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "(pw-ci) github-actions-monitor")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github returned %d", resp.StatusCode)
	}

	var list workflowRunList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return list.WorkflowRuns, nil
}
