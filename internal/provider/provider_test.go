package provider

import (
	"testing"

	"github.com/pwci/pw-ci/internal/domain"
)

func TestNew_KnownProviders(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name string
		want domain.ProviderID
	}{
		{"github", domain.ProviderGitHub},
		{"GitHub", domain.ProviderGitHub},
		{"travis", domain.ProviderTravis},
		{"cirrus", domain.ProviderCirrus},
		{"dummy", domain.ProviderDummy},
	}

	for _, tt := range tests {
		p, err := New(tt.name, "tok", store, Options{})
		if err != nil {
			t.Errorf("New(%q) error = %v", tt.name, err)
			continue
		}
		if p.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.name, p.Name(), tt.want)
		}
		if p.Token() != "tok" {
			t.Errorf("New(%q).Token() = %q, want tok", tt.name, p.Token())
		}
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	store := newTestStore(t)

	if _, err := New("obs", "tok", store, Options{}); err == nil {
		t.Error("New with unknown name should fail")
	}
}

func TestDummy_YieldsPassedForEverything(t *testing.T) {
	store := newTestStore(t)
	store.InsertBuild(1000, 100001, "u", "n", "sha0", testInstance, "proj", "owner/repo")
	store.InsertBuild(1001, 100101, "u", "n", "sha1", testInstance, "proj", "owner/repo")

	d := NewDummy("tok", store)
	outcomes, err := d.BuildResults(testInstance, "")
	if err != nil {
		t.Fatal(err)
	}

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Result != domain.ResultPassed {
			t.Errorf("Result = %q, want passed", o.Result)
		}
		if o.TestName != "dummy-test" {
			t.Errorf("TestName = %q", o.TestName)
		}
	}

	unsynced, _ := store.GetUnsyncedBuilds(testInstance, domain.ProviderDummy)
	if len(unsynced) != 0 {
		t.Errorf("unsynced after dummy pass = %d, want 0", len(unsynced))
	}

	// other providers are untouched
	gh, _ := store.GetUnsyncedBuilds(testInstance, domain.ProviderGitHub)
	if len(gh) != 2 {
		t.Errorf("github unsynced = %d, want 2", len(gh))
	}
}
