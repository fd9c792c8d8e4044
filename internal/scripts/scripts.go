// Package scripts invokes the external helper programs that fetch CI logs
// and post results back to a reporting endpoint. Helpers take their
// arguments on the command line, receive the CI token in the environment
// and answer on stdout. A missing or failing helper degrades the feature,
// it never fails the caller.
package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

const (
	fetchLogsHelper  = "pw-ci-fetch-logs"
	postResultHelper = "pw-ci-post-result"
)

// Runner locates and runs the helper programs. An empty Dir resolves them
// through PATH.
type Runner struct {
	dir     string
	timeout time.Duration
}

func NewRunner(dir string) *Runner {
	return &Runner{
		dir:     dir,
		timeout: 60 * time.Second,
	}
}

func (r *Runner) helper(name string) string {
	if r.dir == "" {
		return name
	}
	return filepath.Join(r.dir, name)
}

func (r *Runner) run(name string, token string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.helper(name), args...)
	// the token rides in the environment, not argv
	cmd.Env = append(os.Environ(), "CI_TOKEN="+token)
	return cmd.Output()
}

// FetchLogs returns the tail of the CI log for one build, or "" when the
// helper is absent, times out or fails.
func (r *Runner) FetchLogs(providerName, repo string, seriesID int, sha, token, testName string) string {
	out, err := r.run(fetchLogsHelper, token,
		providerName, repo, strconv.Itoa(seriesID), sha, testName)
	if err != nil {
		fmt.Printf("Log fetch failed for %s series %d: %v\n", providerName, seriesID, err)
		return ""
	}
	return string(out)
}

// PostResultData is the helper's answer: where the posted result lives
type PostResultData struct {
	URL string `json:"url"`
}

// PostResult publishes a build result through the helper and returns the
// location of the posted result, or nil when the helper is absent, fails
// or answers with something other than the expected JSON.
func (r *Runner) PostResult(providerName, repo string, seriesID, patchID int, sha string, result, buildURL, token, extra string) *PostResultData {
	out, err := r.run(postResultHelper, token,
		providerName, repo, strconv.Itoa(seriesID), strconv.Itoa(patchID),
		sha, result, buildURL, extra)
	if err != nil {
		fmt.Printf("Result post-back failed for patch %d: %v\n", patchID, err)
		return nil
	}

	var data PostResultData
	if err := json.Unmarshal(out, &data); err != nil {
		fmt.Printf("Result post-back returned malformed output for patch %d: %v\n", patchID, err)
		return nil
	}
	return &data
}
