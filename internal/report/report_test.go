package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/pwci/pw-ci/internal/domain"
)

func testOutcome(result domain.Result) domain.Outcome {
	return domain.Outcome{
		PWInstance: "https://patchwork.example.com",
		SeriesID:   1000,
		SHA:        "abc1001001",
		Result:     result,
		BuildURL:   "https://ci.example.com/build/42",
		PatchName:  "[PATCH v2] fix the thing",
		RepoName:   "owner/repo",
		TestName:   "Build and Test",
		PatchID:    100001,
	}
}

func TestCompose_Success(t *testing.T) {
	c := &Composer{From: "robot@example.com", To: "dev-list@example.com"}

	m := c.Compose(testOutcome(domain.ResultPassed), "<orig@example.com>",
		"https://patchwork.example.com/patch/100001/", nil, "")

	wantLines := []string{
		"To: dev-list@example.com",
		"From: robot@example.com",
		"In-Reply-To: <orig@example.com>",
		"References: <orig@example.com>",
		"Subject: |SUCCESS| pw100001 [PATCH v2] fix the thing",
		"Test-Label: Build and Test-robot",
		"Test-Status: SUCCESS",
		"https://patchwork.example.com/patch/100001/",
		"Build URL: https://ci.example.com/build/42",
	}
	for _, line := range wantLines {
		if !strings.Contains(m.Body, line) {
			t.Errorf("body missing %q:\n%s", line, m.Body)
		}
	}
	if strings.Contains(m.Body, "Cc:") {
		t.Error("success report must not carry a Cc header")
	}
	if m.To != "dev-list@example.com" || len(m.CC) != 0 {
		t.Errorf("envelope = %+v", m)
	}
}

func TestCompose_FailureWithCC(t *testing.T) {
	c := &Composer{From: "robot@example.com", To: "dev-list@example.com"}

	cc := []string{"submitter@example.com"}
	m := c.Compose(testOutcome(domain.ResultFailed), "<orig@example.com>",
		"https://patchwork.example.com/patch/100001/", cc, "")

	if !strings.Contains(m.Body, "Subject: |FAILURE| pw100001") {
		t.Errorf("body missing failure subject:\n%s", m.Body)
	}
	if !strings.Contains(m.Body, "Cc: submitter@example.com") {
		t.Errorf("body missing Cc header:\n%s", m.Body)
	}
	if len(m.CC) != 1 || m.CC[0] != "submitter@example.com" {
		t.Errorf("envelope CC = %v", m.CC)
	}
}

func TestCompose_StatusOverrides(t *testing.T) {
	c := &Composer{
		From:     "robot@example.com",
		To:       "dev-list@example.com",
		Statuses: StatusStrings{Success: "ok", Failure: "broken"},
	}

	m := c.Compose(testOutcome(domain.ResultFailed), "", "url", nil, "")
	if !strings.Contains(m.Body, "Subject: |broken| pw100001") {
		t.Errorf("override not applied:\n%s", m.Body)
	}
	if !strings.Contains(m.Body, "Test-Status: broken") {
		t.Errorf("override not applied to Test-Status:\n%s", m.Body)
	}
}

func TestCompose_LogsAppended(t *testing.T) {
	c := &Composer{From: "f", To: "t"}

	m := c.Compose(testOutcome(domain.ResultFailed), "", "url", nil, "step 3 failed: boom")
	if !strings.HasSuffix(m.Body, "step 3 failed: boom\n") {
		t.Errorf("logs not appended:\n%s", m.Body)
	}
}

func TestCompose_NoThreadingWithoutMessageID(t *testing.T) {
	c := &Composer{From: "f", To: "t"}

	m := c.Compose(testOutcome(domain.ResultPassed), "", "url", nil, "")
	if strings.Contains(m.Body, "In-Reply-To:") || strings.Contains(m.Body, "References:") {
		t.Errorf("threading headers without a message id:\n%s", m.Body)
	}
}

func TestComposeFollowUp(t *testing.T) {
	c := &Composer{From: "f", To: "t"}

	m := c.ComposeFollowUp(testOutcome(domain.ResultPassed), "<orig@example.com>",
		"https://results.example.com/100001")
	if !strings.Contains(m.Body, "https://results.example.com/100001") {
		t.Errorf("follow-up missing result URL:\n%s", m.Body)
	}
	if !strings.Contains(m.Body, "In-Reply-To: <orig@example.com>") {
		t.Errorf("follow-up not threaded:\n%s", m.Body)
	}
}

func TestGitSendEmail_Args(t *testing.T) {
	g := &GitSendEmail{DryRun: true}
	m := &Message{To: "list@example.com", CC: []string{"a@example.com", "b@example.com"}}

	got := strings.Join(g.args(m, "/tmp/x.eml"), " ")
	want := "send-email --confirm=never --suppress-from --to=list@example.com " +
		"--cc=a@example.com --cc=b@example.com --dry-run /tmp/x.eml"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

type failingNotifier struct{}

func (failingNotifier) Send(*Message) error { return errors.New("boom") }

type countingNotifier struct{ sent int }

func (c *countingNotifier) Send(*Message) error {
	c.sent++
	return nil
}

func TestMulti_StopsAtFirstFailure(t *testing.T) {
	after := &countingNotifier{}
	m := &Multi{Notifiers: []Notifier{&countingNotifier{}, failingNotifier{}, after}}

	if err := m.Send(&Message{}); err == nil {
		t.Error("Multi must surface the failure")
	}
	if after.sent != 0 {
		t.Error("notifier after the failure must not run")
	}
}

func TestNoop(t *testing.T) {
	if err := (Noop{}).Send(&Message{Body: "x"}); err != nil {
		t.Errorf("Noop.Send() = %v", err)
	}
}
