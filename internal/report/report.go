// Package report composes and delivers build result notifications. A
// notification is an RFC-822 style mail threaded onto the patch it
// concerns, so review tooling files it with the submission.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pwci/pw-ci/internal/domain"
)

// StatusStrings are the result words placed in the subject and the
// Test-Status body line. Zero values fall back to the defaults.
type StatusStrings struct {
	Success string
	Failure string
	Warning string
}

// Composer builds notification messages for build outcomes
type Composer struct {
	From     string
	To       string
	Statuses StatusStrings
}

func (c *Composer) status(r domain.Result) string {
	switch r {
	case domain.ResultPassed:
		if c.Statuses.Success != "" {
			return c.Statuses.Success
		}
		return "SUCCESS"
	case domain.ResultFailed:
		if c.Statuses.Failure != "" {
			return c.Statuses.Failure
		}
		return "FAILURE"
	default:
		if c.Statuses.Warning != "" {
			return c.Statuses.Warning
		}
		return "WARNING"
	}
}

func (c *Composer) headers(b *strings.Builder, subject, patchMsgID string, cc []string) {
	fmt.Fprintf(b, "To: %s\n", c.To)
	fmt.Fprintf(b, "From: %s\n", c.From)
	if len(cc) > 0 {
		fmt.Fprintf(b, "Cc: %s\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(b, "Date: %s\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(b, "Message-Id: <%s@pw-ci>\n", uuid.NewString())
	if patchMsgID != "" {
		fmt.Fprintf(b, "In-Reply-To: %s\n", patchMsgID)
		fmt.Fprintf(b, "References: %s\n", patchMsgID)
	}
	fmt.Fprintf(b, "Subject: %s\n\n", subject)
}

// Compose builds the notification for one outcome. patchMsgID threads the
// mail onto the original submission; patchURL is the (possibly rewritten)
// tracker link placed in the body; logs, when non-empty, are appended
// after the result block.
func (c *Composer) Compose(o domain.Outcome, patchMsgID, patchURL string, cc []string, logs string) *Message {
	status := c.status(o.Result)

	var b strings.Builder
	subject := fmt.Sprintf("|%s| pw%d %s", status, o.PatchID, o.PatchName)
	c.headers(&b, subject, patchMsgID, cc)

	fmt.Fprintf(&b, "Test-Label: %s-robot\n", o.TestName)
	fmt.Fprintf(&b, "Test-Status: %s\n", status)
	fmt.Fprintf(&b, "%s\n", patchURL)
	fmt.Fprintf(&b, "\nBuild finished: %s\n", o.TestName)
	fmt.Fprintf(&b, "Build URL: %s\n", o.BuildURL)
	if logs != "" {
		fmt.Fprintf(&b, "\n%s", logs)
		if !strings.HasSuffix(logs, "\n") {
			b.WriteByte('\n')
		}
	}

	return &Message{To: c.To, CC: cc, Body: b.String()}
}

// ComposeFollowUp builds the short notice pointing at a posted result
func (c *Composer) ComposeFollowUp(o domain.Outcome, patchMsgID, resultURL string) *Message {
	status := c.status(o.Result)

	var b strings.Builder
	subject := fmt.Sprintf("|%s| pw%d %s", status, o.PatchID, o.PatchName)
	c.headers(&b, subject, patchMsgID, nil)

	fmt.Fprintf(&b, "Full results for %s posted at:\n%s\n", o.TestName, resultURL)

	return &Message{To: c.To, Body: b.String()}
}
