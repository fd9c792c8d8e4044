// Package cimon drives the CI side: it drains build outcomes from the
// configured providers and turns each into a notification on the review
// tracker's mailing list.
package cimon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/patchwork"
	"github.com/pwci/pw-ci/internal/provider"
	"github.com/pwci/pw-ci/internal/report"
	"github.com/pwci/pw-ci/internal/scripts"
)

// CIMon reports provider outcomes as notifications. Providers run in the
// order given; a failing provider pass or a failed delivery is logged and
// never blocks the rest.
type CIMon struct {
	Client    *patchwork.Client
	Providers []provider.Provider
	Composer  *report.Composer
	Notifier  report.Notifier

	// Scripts enables log retrieval and result post-back when non-nil
	Scripts         *scripts.Runner
	FetchLogs       bool
	PostResult      bool
	PostResultExtra string

	// URLFilter is a sed-style s/pattern/replacement/ rewrite applied to
	// the patch link placed in report bodies. Empty or "q" disables it.
	URLFilter string
}

// Run drains every provider once for the given project
func (c *CIMon) Run(project string) error {
	instance := c.Client.BaseURL()

	var firstErr error
	for _, p := range c.Providers {
		outcomes, err := p.BuildResults(instance, project)
		if err != nil {
			fmt.Printf("Provider %s failed: %v\n", p.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, o := range outcomes {
			c.reportOutcome(p, o)
		}
	}
	return firstErr
}

// reportOutcome composes and delivers the notification for one outcome.
// The sync flag for the outcome's patch is already set by the provider;
// anything failing from here on is logged and dropped rather than retried.
func (c *CIMon) reportOutcome(p provider.Provider, o domain.Outcome) {
	patch := c.resolvePatch(o)

	msgID := ""
	patchURL := fmt.Sprintf("%s/api/patches/%d/", c.Client.BaseURL(), o.PatchID)
	var cc []string
	if patch != nil {
		msgID = patch.MessageID
		patchURL = patch.URL
		if o.Result != domain.ResultPassed && patch.Submitter.Email != "" {
			cc = append(cc, patch.Submitter.Email)
		}
	}
	patchURL = applyURLFilter(c.URLFilter, patchURL)

	logs := ""
	if c.Scripts != nil && c.FetchLogs {
		logs = c.Scripts.FetchLogs(string(p.Name()), o.RepoName, o.SeriesID,
			o.SHA, p.Token(), o.TestName)
	}

	msg := c.Composer.Compose(o, msgID, patchURL, cc, logs)
	if err := c.Notifier.Send(msg); err != nil {
		fmt.Printf("Delivery failed for patch %d (%s): %v\n", o.PatchID, p.Name(), err)
		return
	}
	fmt.Printf("Reported %s for pw%d via %s\n", o.Result, o.PatchID, p.Name())

	if c.Scripts != nil && c.PostResult {
		data := c.Scripts.PostResult(string(p.Name()), o.RepoName, o.SeriesID,
			o.PatchID, o.SHA, string(o.Result), o.BuildURL, p.Token(), c.PostResultExtra)
		if data != nil && data.URL != "" {
			followUp := c.Composer.ComposeFollowUp(o, msgID, data.URL)
			if err := c.Notifier.Send(followUp); err != nil {
				fmt.Printf("Follow-up delivery failed for patch %d: %v\n", o.PatchID, err)
			}
		}
	}
}

// resolvePatch fetches the tracker's view of the outcome's patch: the
// exact patch when the series still lists it, else the last patch of the
// series. Nil when the tracker cannot answer; the report then goes out
// without threading.
func (c *CIMon) resolvePatch(o domain.Outcome) *patchwork.Patch {
	series, err := c.Client.GetSeries(o.SeriesID)
	if err != nil {
		fmt.Printf("Error fetching series %d: %v\n", o.SeriesID, err)
		return nil
	}
	if len(series.Patches) == 0 {
		return nil
	}

	ref := series.Patches[len(series.Patches)-1]
	for _, r := range series.Patches {
		if r.ID == o.PatchID {
			ref = r
			break
		}
	}

	patch, err := c.Client.GetPatch(ref.URL)
	if err != nil {
		fmt.Printf("Error fetching patch %d: %v\n", ref.ID, err)
		return nil
	}
	return patch
}

// applyURLFilter rewrites url with a sed-style s/pattern/replacement/
// expression. "q" and anything not in that shape pass the URL through.
func applyURLFilter(filter, url string) string {
	if filter == "" || filter == "q" {
		return url
	}
	if !strings.HasPrefix(filter, "s/") || !strings.HasSuffix(filter, "/") {
		return url
	}

	parts := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(filter, "s/"), "/"), "/", 2)
	if len(parts) != 2 {
		return url
	}
	re, err := regexp.Compile(parts[0])
	if err != nil {
		fmt.Printf("Bad URL filter %q: %v\n", filter, err)
		return url
	}
	return re.ReplaceAllString(url, parts[1])
}
