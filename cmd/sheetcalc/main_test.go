package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestEval(t *testing.T) {
	dir := t.TempDir()
	formula := writeFile(t, dir, "Staff_List_Formula.tsv", "=ローデータ!A1\t=ローデータ!B1*2\t=B1/0\n")
	raw := writeFile(t, dir, "Raw_Data.tsv", "name\thours\n佐藤\t4\n")
	out := filepath.Join(dir, "Staff_List.tsv")

	stdout, _, err := runCLI("eval",
		"--formula", formula,
		"--raw", raw,
		"--raw-has-header",
		"--raw-sheet", "ローデータ",
		"--out", out,
		"--trace")
	require.NoError(t, err)

	assert.Equal(t, "佐藤\t8\t0\n", readFile(t, out))
	assert.Contains(t, stdout, "wrote "+out)
	assert.Contains(t, stdout, "Sheet1!C1 #DIV/0!")
	assert.Contains(t, stdout, "Sheet1!C1 =B1/0 <- Sheet1!B1")
	assert.Less(t,
		strings.Index(stdout, "Sheet1!B1 ="),
		strings.Index(stdout, "Sheet1!C1 ="),
		"a formula is traced after the formulas it reads")
}

func TestEvalCircularReference(t *testing.T) {
	dir := t.TempDir()
	formula := writeFile(t, dir, "Cycle_Formula.tsv", "1\t=C1\t=B1\n")
	out := filepath.Join(dir, "Cycle.tsv")

	stdout, _, err := runCLI("eval", "-f", formula, "-o", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular reference detected at Sheet1!R1C2")

	artifact := filepath.Join(dir, "Cycle_error.tsv")
	assert.Contains(t, stdout, "error written to "+artifact)
	assert.Equal(t, "circular reference detected at Sheet1!R1C2\n", readFile(t, artifact))
	assert.NoFileExists(t, out)
}

func TestEvalRequiresFlags(t *testing.T) {
	_, _, err := runCLI("eval", "--formula", "x.tsv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"out" not set`)
}

func TestEvalUnknownPolicy(t *testing.T) {
	dir := t.TempDir()
	formula := writeFile(t, dir, "f.tsv", "1\n")

	_, _, err := runCLI("eval", "-f", formula, "-o", filepath.Join(dir, "o.tsv"), "--policy", "upward")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown reference policy "upward"`)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Raw_Data.tsv", "佐藤\tP001\t7.5\n鈴木\tP001\t8\n")
	writeFile(t, dir, "Project_List_Formula.tsv", "=RawSheet!B1\t=SUM(RawSheet!C1:C2)\n")
	writeFile(t, dir, "Staff_List_Formula.tsv", "=RawSheet!A1\t=RawSheet!A2\t=A1&B1\n")
	config := writeFile(t, dir, "jobs.yaml", `
logging:
  level: warn
jobs:
  - name: project_list
    formula: Project_List_Formula.tsv
    raw: Raw_Data.tsv
    output: out/Project_List.tsv
  - name: staff_list
    formula: Staff_List_Formula.tsv
    raw: Raw_Data.tsv
    output: out/Staff_List.tsv
`)

	stdout, _, err := runCLI("run", "--config", config, "--parallel", "2")
	require.NoError(t, err)

	assert.Equal(t, "P001\t15.5\n", readFile(t, filepath.Join(dir, "out", "Project_List.tsv")))
	assert.Equal(t, "佐藤\t鈴木\t佐藤鈴木\n", readFile(t, filepath.Join(dir, "out", "Staff_List.tsv")))
	assert.Contains(t, stdout, "ok   project_list")
	assert.Contains(t, stdout, "ok   staff_list")
}

func TestRunOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tsv", "1\n")
	config := writeFile(t, dir, "jobs.yaml", `
jobs:
  - name: a
    formula: a.tsv
    output: a_out.tsv
  - name: b
    formula: missing.tsv
    output: b_out.tsv
`)

	stdout, _, err := runCLI("run", "-c", config, "--only", "a")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ok   a")
	assert.NotContains(t, stdout, "b_out")
	assert.NoFileExists(t, filepath.Join(dir, "b_out.tsv"))

	stdout, _, err = runCLI("run", "-c", config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job b")
	assert.Contains(t, stdout, "FAIL b: "+filepath.Join(dir, "b_out_error.tsv"))
	assert.FileExists(t, filepath.Join(dir, "b_out_error.tsv"))

	_, _, err = runCLI("run", "-c", config, "--only", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no job named "c"`)
}

func TestRunInvalidConfig(t *testing.T) {
	config := writeFile(t, t.TempDir(), "jobs.yaml", "jobs: []\n")

	_, _, err := runCLI("run", "-c", config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no jobs configured")
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCLI("version")
	require.NoError(t, err)
	assert.Equal(t, "sheetcalc dev\n", stdout)
}
