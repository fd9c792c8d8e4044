package report

import (
	"fmt"
	"os"
	"os/exec"
)

// GitSendEmail delivers messages through `git send-email`, which picks up
// the sender's SMTP settings from git config. DryRun goes through the
// whole pipeline without handing the mail to the transport.
type GitSendEmail struct {
	DryRun bool
}

func (g *GitSendEmail) args(m *Message, path string) []string {
	args := []string{"send-email", "--confirm=never", "--suppress-from", "--to=" + m.To}
	for _, cc := range m.CC {
		args = append(args, "--cc="+cc)
	}
	if g.DryRun {
		args = append(args, "--dry-run")
	}
	return append(args, path)
}

func (g *GitSendEmail) Send(m *Message) error {
	f, err := os.CreateTemp("", "pw-ci-report-*.eml")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(m.Body); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	cmd := exec.Command("git", g.args(m, f.Name())...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git send-email failed: %w: %s", err, out)
	}
	return nil
}
