package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoinArgs_CommandLine(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "reel.mov")

	job, err := parseJoinArgs([]string{"-o", out, "-skip-missing-video", "a.mov", "b.mp4"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, out, job.output)
	assert.True(t, job.skipMissingVideo)
	require.Len(t, job.clips, 2)
	assert.Equal(t, "a.mov", job.clips[0].Path)
	assert.Equal(t, "b.mp4", job.clips[1].Path)
	assert.Empty(t, job.edlDir)
}

func TestParseJoinArgs_Manifest(t *testing.T) {
	dir := t.TempDir()
	mf := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(mf, []byte(`
output: reel.mov
edl: {frame_rate: 25}
clips:
  - intro.mov
  - path: take.mov
    name: Take
`), 0o644))

	job, err := parseJoinArgs([]string{"-f", mf}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "reel.mov"), job.output)
	assert.Equal(t, dir, job.edlDir)
	assert.Equal(t, 25.0, job.edlFrameRate)
	require.Len(t, job.clips, 2)
	assert.Equal(t, "Take", job.clips[1].Name)
}

func TestParseJoinArgs_Errors(t *testing.T) {
	dir := t.TempDir()
	mf := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(mf, []byte("output: reel.mov\nclips: [a.mov]\n"), 0o644))

	cases := map[string][]string{
		"no clips":          {"-o", filepath.Join(dir, "x.mov")},
		"no output":         {"a.mov"},
		"bad extension":     {"-o", filepath.Join(dir, "x.avi"), "a.mov"},
		"missing parent":    {"-o", filepath.Join(dir, "nope", "x.mov"), "a.mov"},
		"manifest and args": {"-f", mf, "b.mov"},
		"missing edl dir":   {"-o", filepath.Join(dir, "x.mov"), "-edl", filepath.Join(dir, "nope"), "a.mov"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseJoinArgs(args, io.Discard)
			assert.Error(t, err)
		})
	}
}
