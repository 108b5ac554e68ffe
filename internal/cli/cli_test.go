package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tplot/internal/errors"
)

const threeTimes = "2016-11-01T00:00:00Z,2016-11-01T00:01:00Z,2016-11-01T00:02:00Z"

// run executes one tplot invocation against the session in dir. Every
// call builds fresh options, so state only survives through the session
// files.
func run(t *testing.T, dir string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	opts := &RootOptions{SessionDir: dir, EnvFile: filepath.Join(dir, "missing.env")}
	cmd := newRootCommand(opts)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, errOut, err := run(t, dir, "", args...)
	require.NoError(t, err, "tplot %s: %s", strings.Join(args, " "), errOut)
	return out
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
}

func storeAB(t *testing.T, dir string) {
	t.Helper()
	mustRun(t, dir, "store", "a", "--x", threeTimes, "--y", "1,2,3", "--y", "4.5,5.5,6.5")
	mustRun(t, dir, "store", "b", "--x", threeTimes, "--y", "10,20,30")
}

// =============================================================================
// store / get
// =============================================================================

func TestStoreGet_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "store", "a", "--x", threeTimes, "--y", "1,2,3", "--y", "4.5,5.5,6.5")
	assert.Equal(t, "stored a: 3 samples, 2 traces\n", out)

	out = mustRun(t, dir, "get", "a")
	newGoldie(t).Assert(t, "get_csv", []byte(out))
}

func TestStore_CSVWithHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.csv")
	csv := `time,Bx,By,dy
2016-11-01T00:00:00Z,1,2,0.1
2016-11-01T00:01:00Z,,4,0.2
`
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	out := mustRun(t, dir, "store", "B", "--csv", path)
	assert.Contains(t, out, "2 samples, 2 traces")

	out = mustRun(t, dir, "get", "B")
	newGoldie(t).Assert(t, "get_csv_header", []byte(out))
}

func TestStore_CSVFromStdin(t *testing.T) {
	dir := t.TempDir()
	_, errOut, err := run(t, dir, "1478000000,1\n1478000060,2\n", "store", "s", "--csv", "-")
	require.NoError(t, err, errOut)

	out := mustRun(t, dir, "names")
	assert.Equal(t, "s\n", out)
}

func TestStore_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		args     []string
		sentinel error
		code     int
	}{
		{"length mismatch", []string{"store", "a", "--x", threeTimes, "--y", "1,2"}, errors.ErrLengthMismatch, ExitFailure},
		{"bad value", []string{"store", "a", "--x", threeTimes, "--y", "1,x,3"}, errors.ErrInvalidConfig, ExitCommandError},
		{"bad time", []string{"store", "a", "--x", "yesterday", "--y", "1"}, errors.ErrInvalidTime, ExitFailure},
		{"no data", []string{"store", "a"}, nil, ExitCommandError},
		{"missing csv", []string{"store", "a", "--csv", filepath.Join(dir, "nope.csv")}, errors.ErrNotFound, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, dir, "", tt.args...)
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel), "expected %v, got %v", tt.sentinel, err)
			}
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}

func TestGet_UnknownVariable(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "", "get", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrVariableNotFound))
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestGet_JSON(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "store", "a", "--x", threeTimes, "--y", "1,2,3", "--meta", "units=nT")

	out := mustRun(t, dir, "--format", "json", "get", "a", "--metadata")

	var resp struct {
		Status string       `json:"status"`
		Data   variableJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "a", resp.Data.Name)
	require.Len(t, resp.Data.Values, 3)
	require.NotNil(t, resp.Data.Values[2][0])
	assert.Equal(t, 3.0, *resp.Data.Values[2][0])
	assert.Equal(t, "nT", resp.Data.Metadata["units"])
}

func TestStore_Pseudo(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "store", "ab", "--pseudo", "a", "b")
	assert.Equal(t, "stored ab (a b)\n", out)

	_, _, err := run(t, dir, "", "get", "ab")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPseudoVariable))
}

// =============================================================================
// plot
// =============================================================================

func TestPlot_WritesPNG(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)
	path := filepath.Join(dir, "fig")

	out := mustRun(t, dir, "plot", "a", "b", "-o", path, "--width", "400", "--height", "300")
	assert.Equal(t, fmt.Sprintf("wrote %s.png\n", path), out)

	data, err := os.ReadFile(path + ".png")
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

func TestPlot_ToWriter(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "plot", "a", "-o", "-", "--image-format", "svg")
	assert.Contains(t, out, "<svg")
}

func TestPlot_UnknownVariable(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "", "plot", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// =============================================================================
// names / list / delete / rename / copy
// =============================================================================

func TestManage(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)
	mustRun(t, dir, "store", "B_gse", "--x", threeTimes, "--y", "1,2,3")

	assert.Equal(t, "a\nb\nB_gse\n", mustRun(t, dir, "names"))
	assert.Equal(t, "B_gse\n", mustRun(t, dir, "names", "B_*"))
	assert.Equal(t, "a\nb\n", mustRun(t, dir, "names", "-r", "[ab]$"))

	list := mustRun(t, dir, "list")
	assert.Contains(t, list, "NAME")
	assert.Contains(t, list, "B_gse")
	assert.Contains(t, list, "2016-11-01T00:02:00Z")

	assert.Equal(t, "renamed a to alpha\n", mustRun(t, dir, "rename", "a", "alpha"))
	assert.Equal(t, "copied b to beta\n", mustRun(t, dir, "cp", "b", "beta"))
	assert.Equal(t, "alpha\nb\nB_gse\nbeta\n", mustRun(t, dir, "names"))

	assert.Equal(t, "deleted 2 variables\n", mustRun(t, dir, "delete", "b*"))
	assert.Equal(t, "alpha\nB_gse\n", mustRun(t, dir, "names"))

	_, _, err := run(t, dir, "", "delete", "nothing")
	assert.True(t, errors.Is(err, errors.ErrVariableNotFound))

	_, _, err = run(t, dir, "", "delete")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Equal(t, "deleted 2 variables\n", mustRun(t, dir, "rm", "--all"))
	assert.Equal(t, "", mustRun(t, dir, "names"))
}

func TestNames_JSON(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "--format", "json", "names")
	var resp struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"a", "b"}, resp.Data)
}

// =============================================================================
// options / global / link
// =============================================================================

func TestOptions(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "options", "a", "ylog=true", "title=Density", "color=[red,blue]")
	assert.Equal(t, "updated 3 options\n", out)

	out = mustRun(t, dir, "options", "a")
	assert.Contains(t, out, "ylog: true")
	assert.Contains(t, out, "title: Density")
	assert.Contains(t, out, "- red")

	_, _, err := run(t, dir, "", "options", "a", "nosuch=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = run(t, dir, "", "options", "a", "alpha=3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGlobal(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "global", "title=Event", "--xlim", "2016-11-01T00:00:30Z,2016-11-01T00:01:30Z")
	assert.Equal(t, "figure options updated\n", out)

	out = mustRun(t, dir, "global")
	assert.Contains(t, out, "title: Event")
	assert.Contains(t, out, "2016-11-01T00:00:30Z")

	mustRun(t, dir, "global", "--tlimit", "full")

	_, _, err := run(t, dir, "", "global", "--xlim", "2016-11-01T00:00:30Z")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLink(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "link", "a", "--to", "b", "--type", "alt")
	assert.Equal(t, "linked b as alt\n", out)
}

// =============================================================================
// stats / resample / math
// =============================================================================

func TestStats(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "stats", "b")
	assert.Contains(t, out, "MEAN")
	assert.Contains(t, out, "20")

	out = mustRun(t, dir, "--format", "json", "stats", "a")
	var resp struct {
		Data []statsJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, int64(3), resp.Data[0].Count)
	require.NotNil(t, resp.Data[1].Max)
	assert.Equal(t, 6.5, *resp.Data[1].Max)
}

func TestMath_Add(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "store", "a", "--x", threeTimes, "--y", "1,2,3")
	mustRun(t, dir, "store", "b", "--x", threeTimes, "--y", "10,20,30")

	out := mustRun(t, dir, "math", "add", "a", "b", "--name", "sum")
	assert.Equal(t, "stored sum\n", out)

	out = mustRun(t, dir, "get", "sum")
	assert.Contains(t, out, "2016-11-01T00:01:00Z,22\n")
}

func TestMath_ClipAndSplit(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	mustRun(t, dir, "math", "clip", "b", "--max", "25", "--name", "b_clip")
	out := mustRun(t, dir, "get", "b_clip")
	assert.Contains(t, out, "2016-11-01T00:02:00Z,NaN\n")

	out = mustRun(t, dir, "math", "split", "a", "--suffix", "_x,_y")
	assert.Equal(t, "stored a_x\nstored a_y\n", out)
}

func TestResample(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "store", "b", "--x", threeTimes, "--y", "10,20,30")

	out := mustRun(t, dir, "resample", "b", "--width", "2m", "--stat", "mean", "--name", "b2")
	assert.Equal(t, "stored b2\n", out)
	assert.Contains(t, mustRun(t, dir, "names"), "b2")
}

// =============================================================================
// query / export / import / session / shell
// =============================================================================

func TestQuery(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "query", "SELECT name, count(*) AS n FROM samples GROUP BY name ORDER BY name")
	assert.Contains(t, out, "n")
	assert.Contains(t, out, "6")

	mustRun(t, dir, "query", "--store", "bq", "SELECT time, value * 2 FROM samples WHERE name = 'b' ORDER BY time")
	out = mustRun(t, dir, "get", "bq")
	assert.Contains(t, out, "2016-11-01T00:02:00Z,60\n")
}

func TestExportImport(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	storeAB(t, src)
	path := filepath.Join(src, "vars.pb")

	mustRun(t, src, "export", "-o", path)

	out := mustRun(t, dst, "import", path, "--prefix", "x_")
	assert.Equal(t, "imported 2 variables\n", out)
	assert.Equal(t, "x_a\nx_b\n", mustRun(t, dst, "names"))

	want := mustRun(t, src, "get", "a")
	got := mustRun(t, dst, "get", "x_a")
	assert.Equal(t, want, got)
}

func TestSession(t *testing.T) {
	dir := t.TempDir()
	storeAB(t, dir)

	out := mustRun(t, dir, "session", "info")
	assert.Contains(t, out, "2 variables")

	mustRun(t, dir, "session", "clear")
	assert.Equal(t, "", mustRun(t, dir, "names"))
}

func TestShell_Script(t *testing.T) {
	dir := t.TempDir()
	script := fmt.Sprintf(`store a --x %s --y 1,2,3
# comment
names
get nope
rename a "a 2"
names
`, threeTimes)

	out, errOut, err := run(t, dir, script, "shell")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrVariableNotFound))
	assert.Contains(t, out, "stored a: 3 samples, 1 traces\n")
	assert.Contains(t, out, "renamed a to a 2\n")
	assert.Contains(t, errOut, "Error [NotFound]")

	assert.Equal(t, "a 2\n", mustRun(t, dir, "names"))
}

func TestShell_NoNesting(t *testing.T) {
	_, errOut, err := run(t, t.TempDir(), "shell\n", "shell")
	require.Error(t, err)
	assert.Contains(t, errOut, "already in a shell")
}

// =============================================================================
// Exit codes
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "inner", fmt.Errorf("x"))), ExitFailure},
		{"not found", errors.NewVariableNotFound("x"), ExitFailure},
		{"invalid option", errors.NewInvalidOption("ylog", "3", "not a bool"), ExitCommandError},
		{"invalid range", errors.Wrap(errors.ErrInvalidRange, "ymin > ymax"), ExitCommandError},
		{"invalid name", errors.Wrap(errors.ErrInvalidName, ""), ExitCommandError},
		{"data error", errors.Wrap(errors.ErrShapeMismatch, "x"), ExitFailure},
		{"plain", fmt.Errorf("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestRoot_InvalidFormat(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "", "--format", "xml", "names")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = run(t, t.TempDir(), "", "names", "--nosuchflag")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
