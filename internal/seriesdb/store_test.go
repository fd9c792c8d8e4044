package seriesdb

import (
	"testing"
	"time"

	"github.com/pwci/pw-ci/internal/domain"
)

const testInstance = "https://patchwork.example.com"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SeriesLifecycle(t *testing.T) {
	store := newTestStore(t)

	exists, err := store.SeriesExists(testInstance, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("series should not exist before insert")
	}

	err = store.AddSeries(testInstance, "testproject", 1000,
		"https://patchwork.example.com/api/series/1000/", "John Doe", "john@example.com", false)
	if err != nil {
		t.Fatal(err)
	}

	exists, _ = store.SeriesExists(testInstance, 1000)
	if !exists {
		t.Error("series should exist after insert")
	}

	uncompleted, err := store.GetUncompletedSeries(testInstance, "testproject")
	if err != nil {
		t.Fatal(err)
	}
	if len(uncompleted) != 1 {
		t.Fatalf("uncompleted count = %d, want 1", len(uncompleted))
	}
	if uncompleted[0].SeriesID != 1000 {
		t.Errorf("SeriesID = %d, want 1000", uncompleted[0].SeriesID)
	}
	if uncompleted[0].Submitter != "John Doe" || uncompleted[0].Email != "john@example.com" {
		t.Errorf("submitter = %q <%q>, want John Doe <john@example.com>",
			uncompleted[0].Submitter, uncompleted[0].Email)
	}

	if err := store.SetSeriesCompleted(testInstance, 1000); err != nil {
		t.Fatal(err)
	}

	uncompleted, _ = store.GetUncompletedSeries(testInstance, "testproject")
	if len(uncompleted) != 0 {
		t.Errorf("uncompleted count after completion = %d, want 0", len(uncompleted))
	}

	unsubmitted, err := store.GetUnsubmittedSeries(testInstance, "testproject")
	if err != nil {
		t.Fatal(err)
	}
	if len(unsubmitted) != 1 {
		t.Fatalf("unsubmitted count = %d, want 1", len(unsubmitted))
	}

	// completed is monotonic: repeating the flip is a no-op
	if err := store.SetSeriesCompleted(testInstance, 1000); err != nil {
		t.Fatal(err)
	}
	unsubmitted, _ = store.GetUnsubmittedSeries(testInstance, "testproject")
	if len(unsubmitted) != 1 {
		t.Errorf("unsubmitted count after repeat flip = %d, want 1", len(unsubmitted))
	}

	if err := store.SetSeriesSubmitted(testInstance, 1000); err != nil {
		t.Fatal(err)
	}
	unsubmitted, _ = store.GetUnsubmittedSeries(testInstance, "testproject")
	if len(unsubmitted) != 0 {
		t.Errorf("unsubmitted count after submit = %d, want 0", len(unsubmitted))
	}
}

func TestStore_SeriesPerInstance(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddSeries("https://pw1.example.com", "proj", 5, "u", "s", "e", false); err != nil {
		t.Fatal(err)
	}

	exists, _ := store.SeriesExists("https://pw2.example.com", 5)
	if exists {
		t.Error("series_id 5 should not exist on a different instance")
	}

	// same series id on a second instance is a distinct row
	if err := store.AddSeries("https://pw2.example.com", "proj", 5, "u", "s", "e", false); err != nil {
		t.Fatalf("insert on second instance: %v", err)
	}
}

func TestStore_BranchRoundTrip(t *testing.T) {
	store := newTestStore(t)

	store.AddSeries(testInstance, "proj", 42, "url", "sub", "email", true)

	if err := store.SetSeriesBranch(testInstance, 42, "owner/repo", "series_42"); err != nil {
		t.Fatal(err)
	}

	branches, err := store.GetActiveBranches(testInstance)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 1 {
		t.Fatalf("active branches = %d, want 1", len(branches))
	}
	if branches[0].Branch != "series_42" || branches[0].Repo != "owner/repo" {
		t.Errorf("branch = %q repo = %q, want series_42 owner/repo",
			branches[0].Branch, branches[0].Repo)
	}

	if err := store.ClearSeriesBranch(testInstance, 42); err != nil {
		t.Fatal(err)
	}

	branches, _ = store.GetActiveBranches(testInstance)
	if len(branches) != 0 {
		t.Errorf("active branches after clear = %d, want 0", len(branches))
	}
}

func TestStore_InsertBuildRoundTrip(t *testing.T) {
	store := newTestStore(t)

	err := store.InsertBuild(1000, 100001, "https://pw/api/patches/100001/",
		"[PATCH 1/1] net: fix thing", "abc1001001", testInstance, "testproject", "owner/repo")
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []domain.ProviderID{domain.ProviderGitHub, domain.ProviderTravis, domain.ProviderCirrus, domain.ProviderDummy} {
		builds, err := store.GetUnsyncedBuilds(testInstance, p)
		if err != nil {
			t.Fatal(err)
		}
		if len(builds) != 1 {
			t.Fatalf("unsynced builds for %s = %d, want 1", p, len(builds))
		}
		b := builds[0]
		if b.SeriesID != 1000 || b.PatchID != 100001 || b.SHA != "abc1001001" {
			t.Errorf("%s: build = %+v", p, b)
		}
		if b.PatchName != "[PATCH 1/1] net: fix thing" || b.RepoName != "owner/repo" {
			t.Errorf("%s: patch_name = %q repo = %q", p, b.PatchName, b.RepoName)
		}
		if b.GitHubSync || b.TravisSync || b.CirrusSync || b.DummySync {
			t.Errorf("%s: new build has a sync flag set: %+v", p, b)
		}
	}
}

func TestStore_SyncFlagsIndependent(t *testing.T) {
	store := newTestStore(t)

	store.InsertBuild(1000, 100001, "u", "n", "sha1", testInstance, "proj", "owner/repo")
	store.InsertBuild(1001, 100101, "u", "n", "sha2", testInstance, "proj", "owner/repo")

	if err := store.SetBuildSynced(testInstance, 100001, domain.ProviderGitHub); err != nil {
		t.Fatal(err)
	}

	gh, _ := store.GetUnsyncedBuilds(testInstance, domain.ProviderGitHub)
	if len(gh) != 1 || gh[0].PatchID != 100101 {
		t.Errorf("github unsynced = %+v, want only patch 100101", gh)
	}

	// the other providers' queues still contain both patches
	cirrus, _ := store.GetUnsyncedBuilds(testInstance, domain.ProviderCirrus)
	if len(cirrus) != 2 {
		t.Errorf("cirrus unsynced = %d, want 2", len(cirrus))
	}

	// flipping twice is a no-op
	if err := store.SetBuildSynced(testInstance, 100001, domain.ProviderGitHub); err != nil {
		t.Fatal(err)
	}
	gh, _ = store.GetUnsyncedBuilds(testInstance, domain.ProviderGitHub)
	if len(gh) != 1 {
		t.Errorf("github unsynced after repeat flip = %d, want 1", len(gh))
	}
}

func TestStore_UnsyncedBuildsOrderedBySeries(t *testing.T) {
	store := newTestStore(t)

	store.InsertBuild(1002, 100201, "u", "n", "s", testInstance, "proj", "r")
	store.InsertBuild(1000, 100001, "u", "n", "s", testInstance, "proj", "r")
	store.InsertBuild(1001, 100101, "u", "n", "s", testInstance, "proj", "r")

	builds, err := store.GetUnsyncedBuilds(testInstance, domain.ProviderDummy)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(builds); i++ {
		if builds[i-1].SeriesID > builds[i].SeriesID {
			t.Errorf("builds not ordered by series_id: %d before %d",
				builds[i-1].SeriesID, builds[i].SeriesID)
		}
	}
}

func TestStore_GetPatchIDBySeriesAndSha(t *testing.T) {
	store := newTestStore(t)

	store.InsertBuild(1000, 100001, "u", "n", "abc1001001", testInstance, "proj", "r")

	id, ok, err := store.GetPatchIDBySeriesAndSha(1000, "abc1001001", testInstance)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != 100001 {
		t.Errorf("patch id = %d ok = %v, want 100001 true", id, ok)
	}

	_, ok, err = store.GetPatchIDBySeriesAndSha(1000, "deadbeef", testInstance)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("lookup with unknown sha should report not found")
	}
}

func TestStore_RecheckDedup(t *testing.T) {
	store := newTestStore(t)

	req := &domain.RecheckRequest{
		MessageID:   "<msg-1@example.com>",
		RequestedBy: "john@example.com",
		SeriesRef:   "1000",
		PatchID:     100001,
		CIName:      "github",
		Instance:    testInstance,
		Project:     "proj",
	}

	if err := store.InsertRecheckRequest(req); err != nil {
		t.Fatal(err)
	}
	// same message and CI again: deduplicated
	if err := store.InsertRecheckRequest(req); err != nil {
		t.Fatal(err)
	}
	// same message, different CI: a separate request
	other := *req
	other.CIName = "cirrus"
	if err := store.InsertRecheckRequest(&other); err != nil {
		t.Fatal(err)
	}

	reqs, err := store.GetUnsyncedRecheckRequests(testInstance)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 {
		t.Fatalf("recheck requests = %d, want 2", len(reqs))
	}

	if err := store.SetRecheckSynced(reqs[0].ID); err != nil {
		t.Fatal(err)
	}
	reqs, _ = store.GetUnsyncedRecheckRequests(testInstance)
	if len(reqs) != 1 {
		t.Errorf("unsynced recheck requests after flip = %d, want 1", len(reqs))
	}
}

func TestStore_Marker(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetMarker(testInstance, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Errorf("marker before set = %v, want zero", got)
	}

	want := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	if err := store.SetMarker(testInstance, "proj", want); err != nil {
		t.Fatal(err)
	}

	got, _ = store.GetMarker(testInstance, "proj")
	if !got.Equal(want) {
		t.Errorf("marker = %v, want %v", got, want)
	}

	// marker is an upsert
	later := want.Add(time.Hour)
	if err := store.SetMarker(testInstance, "proj", later); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetMarker(testInstance, "proj")
	if !got.Equal(later) {
		t.Errorf("marker after update = %v, want %v", got, later)
	}
}

func TestStore_UnknownProviderRejected(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetUnsyncedBuilds(testInstance, domain.ProviderID("obs")); err == nil {
		t.Error("GetUnsyncedBuilds with unknown provider should fail")
	}
	if err := store.SetBuildSynced(testInstance, 1, domain.ProviderID("obs")); err == nil {
		t.Error("SetBuildSynced with unknown provider should fail")
	}
}

func TestStore_ListSeriesAndInfo(t *testing.T) {
	store := newTestStore(t)
	store.AddSeries(testInstance, "proj", 1000, "url0", "A Dev", "a@example.com", false)
	store.AddSeries(testInstance, "proj", 1001, "url1", "B Dev", "b@example.com", true)
	store.AddSeries(testInstance, "otherproj", 2000, "url2", "C Dev", "c@example.com", true)
	store.SetSeriesBranch(testInstance, 1001, "owner/repo", "series_1001")

	list, err := store.ListSeries(testInstance, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("ListSeries = %d rows, want 2", len(list))
	}
	if list[0].SeriesID != 1000 || list[1].SeriesID != 1001 {
		t.Errorf("ListSeries order = %+v", list)
	}
	if list[1].Branch != "series_1001" || list[1].Repo != "owner/repo" {
		t.Errorf("branch columns = %+v", list[1])
	}
	if list[0].Branch != "" {
		t.Errorf("unset branch = %q, want empty", list[0].Branch)
	}

	info, found, err := store.GetSeriesInfo(testInstance, 1001)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("series 1001 not found")
	}
	if !info.Completed || info.Submitted {
		t.Errorf("info = %+v", info)
	}
	if info.Submitter != "B Dev" || info.Email != "b@example.com" {
		t.Errorf("info = %+v", info)
	}

	_, found, err = store.GetSeriesInfo(testInstance, 9999)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("unknown series reported as found")
	}
}
