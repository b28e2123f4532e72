package metadata

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Provenance keys
const (
	KeyCommitHash = "commit-hash"
	KeyCommitDate = "commit-date"
	KeyCommitMsg  = "commit-msg"
)

// Unavailable is stored for provenance fields that could not be determined.
const Unavailable = "unavailable"

// Build-time provenance, set with
//
//	go build -ldflags "-X github.com/ajitpratap0/crystal/pkg/metadata.CommitHash=..."
//
// When CommitHash is set the repository is not queried.
var (
	CommitHash string
	CommitDate string
	CommitMsg  string
)

const gitTimeout = 5 * time.Second

// gitRunner runs git with args in dir and returns trimmed stdout.
type gitRunner func(ctx context.Context, dir string, args ...string) (string, error)

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// ProbeProvenance returns the commit hash, date and message of the build.
// Provenance is best-effort: fields that cannot be determined hold
// Unavailable instead of failing the run.
func ProbeProvenance(ctx context.Context, dir string) map[string]string {
	return probe(ctx, dir, runGit)
}

func probe(ctx context.Context, dir string, git gitRunner) map[string]string {
	if CommitHash != "" {
		return map[string]string{
			KeyCommitHash: CommitHash,
			KeyCommitDate: orUnavailable(CommitDate),
			KeyCommitMsg:  orUnavailable(CommitMsg),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	query := func(format string) string {
		v, err := git(ctx, dir, "log", "-1", "--format="+format)
		if err != nil {
			return Unavailable
		}
		return orUnavailable(v)
	}

	return map[string]string{
		KeyCommitHash: query("%H"),
		KeyCommitDate: query("%ci"),
		KeyCommitMsg:  query("%s"),
	}
}

func orUnavailable(v string) string {
	if v == "" {
		return Unavailable
	}
	return v
}
