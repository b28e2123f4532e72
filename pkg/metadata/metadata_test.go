package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblePrecedence(t *testing.T) {
	md, collisions := Assemble(
		map[string]string{"a": "1", "b": "config"},
		map[string]string{"a": "2", "c": "cli"},
		nil,
	)

	assert.Equal(t, map[string]string{"a": "2", "b": "config", "c": "cli"}, md)
	require.Len(t, collisions, 1)
	assert.Equal(t, Collision{
		Key:     "a",
		Sources: []string{SourceConfig, SourceCLI},
		Winner:  SourceCLI,
		Value:   "2",
	}, collisions[0])
}

func TestAssembleProvenanceWins(t *testing.T) {
	md, collisions := Assemble(
		map[string]string{KeyCommitHash: "cfg"},
		map[string]string{KeyCommitHash: "cli"},
		map[string]string{KeyCommitHash: "abc123"},
	)

	assert.Equal(t, "abc123", md[KeyCommitHash])
	require.Len(t, collisions, 1)
	assert.Equal(t, []string{SourceConfig, SourceCLI, SourceProvenance}, collisions[0].Sources)
	assert.Equal(t, SourceProvenance, collisions[0].Winner)
}

func TestAssembleUnionSize(t *testing.T) {
	config := map[string]string{"seed": "1", "scint": "CsI", "chunk_size": "200"}
	cli := map[string]string{"-n": "10", "seed": "2"}
	prov := map[string]string{KeyCommitHash: Unavailable}

	md, collisions := Assemble(config, cli, prov)
	assert.Len(t, md, 5)
	assert.Len(t, collisions, 1)
}

func TestAssembleCollisionsSorted(t *testing.T) {
	_, collisions := Assemble(
		map[string]string{"z": "1", "m": "1", "a": "1"},
		map[string]string{"z": "2", "m": "2", "a": "2"},
		nil,
	)

	require.Len(t, collisions, 3)
	assert.Equal(t, "a", collisions[0].Key)
	assert.Equal(t, "m", collisions[1].Key)
	assert.Equal(t, "z", collisions[2].Key)
}

func TestAssembleEmpty(t *testing.T) {
	md, collisions := Sources{}.Assemble()
	assert.NotNil(t, md)
	assert.Empty(t, md)
	assert.Empty(t, collisions)
}

func TestSplit(t *testing.T) {
	keys, values := Split(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, []string{"1", "2", "3"}, values)
}

func TestProbeBuildTime(t *testing.T) {
	CommitHash, CommitDate, CommitMsg = "deadbeef", "", "release"
	t.Cleanup(func() { CommitHash, CommitDate, CommitMsg = "", "", "" })

	called := false
	git := func(context.Context, string, ...string) (string, error) {
		called = true
		return "", nil
	}

	prov := probe(context.Background(), ".", git)
	assert.False(t, called)
	assert.Equal(t, map[string]string{
		KeyCommitHash: "deadbeef",
		KeyCommitDate: Unavailable,
		KeyCommitMsg:  "release",
	}, prov)
}

func TestProbeGit(t *testing.T) {
	answers := map[string]string{
		"--format=%H":  "0123abcd",
		"--format=%ci": "2024-05-01 10:00:00 +0000",
		"--format=%s":  "Add reader",
	}
	git := func(_ context.Context, dir string, args ...string) (string, error) {
		assert.Equal(t, "/repo", dir)
		require.Len(t, args, 3)
		return answers[args[2]], nil
	}

	prov := probe(context.Background(), "/repo", git)
	assert.Equal(t, "0123abcd", prov[KeyCommitHash])
	assert.Equal(t, "2024-05-01 10:00:00 +0000", prov[KeyCommitDate])
	assert.Equal(t, "Add reader", prov[KeyCommitMsg])
}

func TestProbeUnavailable(t *testing.T) {
	git := func(context.Context, string, ...string) (string, error) {
		return "", errors.New("not a git repository")
	}

	prov := probe(context.Background(), t.TempDir(), git)
	require.Len(t, prov, 3)
	for k, v := range prov {
		assert.Equal(t, Unavailable, v, k)
	}
}
