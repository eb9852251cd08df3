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

const testRules = `
SecRule ARGS:id "@streq 1" "id:100,phase:1,deny,msg:'bad id'"
SecRule REQUEST_BODY "@contains evil" "id:200,phase:2,t:lowercase,deny"
SecRule RESPONSE_STATUS "@eq 500" "id:300,phase:3,tag:response,deny"
SecRule ARGS "@rx (" "id:400,phase:2,deny"
SecAction "id:900,phase:5,nolog,setvar:tx.done=1"
`

const testTransactions = `
transactions:
  - id: t1
    uri: /?id=1
    expect: Block
  - id: t2
    method: POST
    uri: /upload
    body: "some EVIL content"
    expect: Block
  - id: t3
    uri: /
    response:
      status: 500
    expect: Block
  - id: t4
    uri: /
    response:
      status: 200
      body: fine
    expect: Pass
`

func writeTestFiles(t *testing.T, configExtra string, transactions string) (configPath string, txPath string, dir string) {
	dir = t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "rules.conf"), []byte(testRules), 0644))

	configPath = filepath.Join(dir, "secwaf.yaml")
	cfg := "ruleFiles: [rules.conf]\nlogging:\n  level: error\n" + configExtra
	require.Nil(t, os.WriteFile(configPath, []byte(cfg), 0644))

	txPath = filepath.Join(dir, "transactions.yaml")
	require.Nil(t, os.WriteFile(txPath, []byte(transactions), 0644))
	return
}

func runCmd(args ...string) (out string, errOut string, err error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err = root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestEvalCmd(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	configPath, txPath, dir := writeTestFiles(t, "resultsLog:\n  dir: logs\n", testTransactions)
	logDir := filepath.Join(dir, "logs")

	// Act
	out, errOut, err := runCmd("eval", "-c", configPath, "-t", txPath, "--metrics")

	// Assert
	require.Nil(t, err)
	assert.Contains(out, "ok   t1 Block rules=[100,900]")
	assert.Contains(out, "ok   t2 Block rules=[200,900]")
	assert.Contains(out, "ok   t3 Block rules=[300,900]")
	assert.Contains(out, "ok   t4 Pass rules=[900]")
	assert.Contains(out, `secwaf_phase_decisions_total{decision=Block,phase=1} 1`)
	assert.Contains(errOut, "rule 400")

	log, err := os.ReadFile(filepath.Join(logDir, "waf_json.log"))
	require.Nil(t, err)
	assert.Contains(string(log), `"ruleId":"100"`)
	assert.NotContains(string(log), `"ruleId":"900"`)
}

func TestEvalCmdUnexpectedDecision(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	transactions := "transactions:\n  - id: t1\n    uri: /?id=1\n    expect: Pass\n  - id: t2\n    uri: /?id=2\n"
	configPath, txPath, _ := writeTestFiles(t, "", transactions)

	// Act
	out, _, err := runCmd("eval", "-c", configPath, "-t", txPath, "--concurrency", "1")

	// Assert
	assert.NotNil(err)
	assert.Contains(out, "FAIL t1 Block rules=[100,900] expected=Pass")
	assert.Contains(out, "ok   t2 Pass rules=[900]")
	assert.False(strings.Contains(out, "ok   t1"))
}

func TestEvalCmdBadFixtures(t *testing.T) {
	type testcase struct {
		transactions string
		expected     string
	}
	tests := []testcase{
		{"transactions:\n  - uri: /\n    expect: Maybe\n", "unknown expected decision"},
		{"transactions: [", "parse transactions"},
	}

	var b strings.Builder
	for _, test := range tests {
		configPath, txPath, _ := writeTestFiles(t, "", test.transactions)
		_, _, err := runCmd("eval", "-c", configPath, "-t", txPath)
		if err == nil || !strings.Contains(err.Error(), test.expected) {
			b.WriteString("Expected error containing " + test.expected + " for " + test.transactions + "\n")
		}
	}

	if b.Len() > 0 {
		t.Fatalf("\n%s", b.String())
	}
}

func TestRulesCmd(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	configPath, _, _ := writeTestFiles(t, "removeByTag: [response]\n", testTransactions)

	// Act
	out, _, err := runCmd("rules", "-c", configPath)

	// Assert
	require.Nil(t, err)
	assert.Contains(out, "active  100 phase=1 links=1 tags=[]")
	assert.Contains(out, "active  900 phase=5 links=1 tags=[]")
	assert.Contains(out, "removed 300 phase=3 tags=[response]")
	assert.Contains(out, "invalid 400")
	assert.Contains(out, "3 active, 1 removed, 1 invalid")
}

func TestValidateCmd(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	configPath, _, _ := writeTestFiles(t, "", testTransactions)

	// Act
	out, _, err := runCmd("validate", "-c", configPath)
	_, _, errLevel := runCmd("validate", "-c", configPath, "--loglevel", "loud")
	_, _, errMissing := runCmd("validate")

	// Assert
	assert.Nil(err)
	assert.Equal("config ok\n", out)
	assert.NotNil(errLevel)
	assert.NotNil(errMissing)
}
