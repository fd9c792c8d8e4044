package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/seriesdb"
)

const cirrusAPIBase = "https://api.cirrus-ci.com/graphql"

// Cirrus polls the Cirrus CI GraphQL API. A build carries a task list; the
// build fails if any task failed, otherwise it passes.
type Cirrus struct {
	token   string
	apiBase string
	db      *seriesdb.Store
	client  *http.Client
}

// NewCirrus creates the Cirrus provider. An empty apiBase uses the public API.
func NewCirrus(token string, db *seriesdb.Store, apiBase string) *Cirrus {
	if apiBase == "" {
		apiBase = cirrusAPIBase
	}
	return &Cirrus{
		token:   token,
		apiBase: apiBase,
		db:      db,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Cirrus) Name() domain.ProviderID { return domain.ProviderCirrus }
func (c *Cirrus) Token() string           { return c.token }

const cirrusBuildQuery = `
query BuildStatus($owner: String!, $name: String!, $branch: String!) {
    ownerRepository(platform: "github", owner: $owner, name: $name) {
        builds(branch: $branch, last: 10) {
            edges {
                node {
                    id
                    branch
                    status
                    tasks {
                        name
                        status
                    }
                }
            }
        }
    }
}
`

type cirrusTask struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type cirrusNode struct {
	ID     string       `json:"id"`
	Branch string       `json:"branch"`
	Status string       `json:"status"`
	Tasks  []cirrusTask `json:"tasks"`
}

type cirrusResponse struct {
	Data struct {
		OwnerRepository struct {
			Builds struct {
				Edges []struct {
					Node cirrusNode `json:"node"`
				} `json:"edges"`
			} `json:"builds"`
		} `json:"ownerRepository"`
	} `json:"data"`
}

// BuildResults queries the build status of each unsynced build's series
// branch and yields one outcome per completed build.
func (c *Cirrus) BuildResults(pwInstance, pwProject string) ([]domain.Outcome, error) {
	builds, err := c.db.GetUnsyncedBuilds(pwInstance, domain.ProviderCirrus)
	if err != nil {
		return nil, err
	}

	var outcomes []domain.Outcome
	for _, build := range builds {
		if pwProject != "" && pwProject != build.Project {
			continue
		}

		parts := strings.Split(build.RepoName, "/")
		if len(parts) != 2 {
			continue
		}

		nodes, err := c.queryBuilds(parts[0], parts[1], branchName(build.SeriesID))
		if err != nil {
			fmt.Printf("Error fetching Cirrus CI build for series %d: %v\n", build.SeriesID, err)
			continue
		}

		for _, node := range nodes {
			if node.Status != "COMPLETED" {
				continue
			}

			result := domain.ResultPassed
			for _, task := range node.Tasks {
				if task.Status == "FAILED" {
					result = domain.ResultFailed
					break
				}
			}

			outcomes = append(outcomes, domain.Outcome{
				PWInstance: pwInstance,
				SeriesID:   build.SeriesID,
				SHA:        build.SHA,
				Result:     result,
				BuildURL:   "https://cirrus-ci.com/build/" + node.ID,
				PatchName:  build.PatchName,
				RepoName:   build.RepoName,
				TestName:   "cirrus-ci",
				PatchID:    build.PatchID,
			})

			if err := c.db.SetBuildSynced(pwInstance, build.PatchID, domain.ProviderCirrus); err != nil {
				return outcomes, err
			}
			break
		}
	}

	return outcomes, nil
}

func (c *Cirrus) queryBuilds(owner, name, branch string) ([]cirrusNode, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": cirrusBuildQuery,
		"variables": map[string]string{
			"owner":  owner,
			"name":   name,
			"branch": branch,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.apiBase, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "(pw-ci) cirrus-monitor")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cirrus returned %d", resp.StatusCode)
	}

	var parsed cirrusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	nodes := make([]cirrusNode, 0, len(parsed.Data.OwnerRepository.Builds.Edges))
	for _, edge := range parsed.Data.OwnerRepository.Builds.Edges {
		nodes = append(nodes, edge.Node)
	}
	return nodes, nil
}
