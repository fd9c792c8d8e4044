package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pwci/pw-ci/internal/domain"
	"github.com/pwci/pw-ci/internal/patchwork"
	"github.com/pwci/pw-ci/internal/seriesdb"
)

// recheckPrefix marks a review comment as a recheck directive
const recheckPrefix = "Recheck-request: "

// Monitor drives the review-tracker side: series discovery, lifecycle
// advancement, branch reaping and recheck detection. Each pass commits its
// own store changes; a network failure in one unit of work never aborts
// the pass, and a failing pass never blocks the passes after it.
type Monitor struct {
	db       *seriesdb.Store
	client   *patchwork.Client
	project  string
	instance string
}

// New creates a Monitor for one (instance, project)
func New(db *seriesdb.Store, client *patchwork.Client, project string) *Monitor {
	return &Monitor{
		db:       db,
		client:   client,
		project:  project,
		instance: client.BaseURL(),
	}
}

// DiscoverNewSeries fetches series-created events since the given time and
// records series not seen before. It returns the new watermark for the
// caller to persist; on a failed event fetch the old watermark comes back
// unchanged so no event window is lost.
func (m *Monitor) DiscoverNewSeries(since time.Time) (time.Time, error) {
	start := time.Now()

	events, err := m.client.GetSeriesEvents(m.project, since)
	if err != nil {
		fmt.Printf("Error fetching series events: %v\n", err)
		return since, nil
	}

	for _, event := range events {
		seriesID := event.Payload.Series.ID

		series, err := m.client.GetSeries(seriesID)
		if err != nil {
			fmt.Printf("Error fetching series %d: %v\n", seriesID, err)
			continue
		}

		if err := m.emitSeries(series); err != nil {
			return since, err
		}
	}

	return start, nil
}

func (m *Monitor) emitSeries(series *patchwork.Series) error {
	exists, err := m.db.SeriesExists(m.instance, series.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	fmt.Printf("Series instance: %s\n", m.instance)
	fmt.Printf("Series id:       %d\n", series.ID)
	fmt.Printf("Series url:      %s\n", series.URL)
	fmt.Printf("submitter:       %s <%s>\n", series.Submitter.Name, series.Submitter.Email)
	fmt.Printf("all:             %v\n", series.ReceivedAll)

	return m.db.AddSeries(m.instance, m.project, series.ID, series.URL,
		series.Submitter.Name, series.Submitter.Email, series.ReceivedAll)
}

// CheckCompletedSeries re-fetches uncompleted series and flips the
// completed flag once the tracker reports all patches received
func (m *Monitor) CheckCompletedSeries() error {
	uncompleted, err := m.db.GetUncompletedSeries(m.instance, m.project)
	if err != nil {
		return err
	}

	for _, row := range uncompleted {
		series, err := m.client.GetSeries(row.SeriesID)
		if err != nil {
			fmt.Printf("Error checking series %d: %v\n", row.SeriesID, err)
			continue
		}

		if series.ReceivedAll {
			fmt.Printf("Setting series %d to completed\n", row.SeriesID)
			if err := m.db.SetSeriesCompleted(m.instance, row.SeriesID); err != nil {
				return err
			}
		}
	}

	return nil
}

// CheckSupersededSeries releases the CI branch of any series whose last
// patch has reached a terminal review state
func (m *Monitor) CheckSupersededSeries() error {
	branches, err := m.db.GetActiveBranches(m.instance)
	if err != nil {
		return err
	}

	for _, branch := range branches {
		series, err := m.client.GetSeries(branch.SeriesID)
		if err != nil {
			fmt.Printf("Error checking series %d: %v\n", branch.SeriesID, err)
			continue
		}
		if len(series.Patches) == 0 {
			continue
		}

		lastPatch := series.Patches[len(series.Patches)-1]
		patch, err := m.client.GetPatch(lastPatch.URL)
		if err != nil {
			fmt.Printf("Error fetching patch %s: %v\n", lastPatch.URL, err)
			continue
		}

		if domain.IsTerminalPatchState(patch.State) {
			if err := m.db.ClearSeriesBranch(m.instance, branch.SeriesID); err != nil {
				return err
			}
			fmt.Printf("Cleared branch for series %d: state %s\n", branch.SeriesID, patch.State)
		}
	}

	return nil
}

// CheckRecheckRequests scans comments of review-eligible patches for
// recheck directives matching the configured filter names. Matches are
// recorded once per (message, CI name); dispatch is left to a separate
// consumer of the recheck queue.
func (m *Monitor) CheckRecheckRequests(recheckFilters []string) error {
	if len(recheckFilters) == 0 {
		return nil
	}

	seriesList, err := m.client.GetSeriesList(m.project, domain.ReviewEligibleStates, false, "-id")
	if err != nil {
		fmt.Printf("Error fetching series list: %v\n", err)
		return nil
	}

	for _, series := range seriesList {
		for _, ref := range series.Patches {
			if err := m.checkPatchForRecheck(series.ID, ref.URL, recheckFilters); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Monitor) checkPatchForRecheck(seriesID int, patchURL string, recheckFilters []string) error {
	patch, err := m.client.GetPatch(patchURL)
	if err != nil {
		fmt.Printf("Error checking patch %s: %v\n", patchURL, err)
		return nil
	}

	if domain.IsTerminalPatchState(patch.State) {
		return nil
	}
	if patch.Comments == "" {
		return nil
	}

	comments, err := m.client.GetPatchComments(patch.Comments)
	if err != nil {
		fmt.Printf("Error fetching comments for patch %d: %v\n", patch.ID, err)
		return nil
	}

	for _, comment := range comments {
		if !strings.HasPrefix(comment.Content, recheckPrefix) {
			continue
		}
		targets := strings.Split(strings.TrimPrefix(comment.Content, recheckPrefix), ", ")

		for _, filter := range recheckFilters {
			if !contains(targets, filter) {
				continue
			}
			fmt.Printf("Recheck matched: %d %s\n", patch.ID, filter)

			err := m.db.InsertRecheckRequest(&domain.RecheckRequest{
				MessageID:   patch.MessageID,
				RequestedBy: patch.Submitter.Email,
				SeriesRef:   strconv.Itoa(seriesID),
				PatchID:     patch.ID,
				CIName:      filter,
				Instance:    m.instance,
				Project:     m.project,
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func contains(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

// RunFullCheck runs all four passes in order. The discovery watermark is
// loaded from and saved back to the store. A store failure in one pass is
// remembered but does not stop the remaining passes.
func (m *Monitor) RunFullCheck(recheckFilters []string) error {
	fmt.Printf("Monitoring %s project %s\n", m.instance, m.project)

	since, err := m.db.GetMarker(m.instance, m.project)
	if err != nil {
		return err
	}
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}

	var firstErr error

	watermark, err := m.DiscoverNewSeries(since)
	if err != nil {
		firstErr = err
	} else if err := m.db.SetMarker(m.instance, m.project, watermark); err != nil {
		firstErr = err
	}

	if err := m.CheckCompletedSeries(); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := m.CheckSupersededSeries(); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := m.CheckRecheckRequests(recheckFilters); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
