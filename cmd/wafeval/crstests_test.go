package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCRSFile = `
meta:
  author: test
  enabled: true
  name: 100.yaml
tests:
  - test_title: 100-1
    stages:
      - stage:
          input:
            method: POST
            uri: /login
            headers:
              User-Agent: ModSecurity CRS 3 Tests
              Content-Type: application/x-www-form-urlencoded
            data:
              - "user=admin"
              - "&x=1"
          output:
            log_contains: id "100"
  - test_title: 100-2
    stages:
      - stage:
          input:
            uri: /?id=1
          output:
            status: 403
            no_log_contains: id "200"
      - stage:
          input:
            uri: /?id=2
          output:
            no_log_contains: "id \"100\""
`

func TestLoadCRSFixtures(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "100.yaml"), []byte(testCRSFile), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a test"), 0644))

	// Act
	ff, err := loadCRSFixtures(dir)

	// Assert
	require.Nil(t, err)
	require.Len(t, ff, 3)

	assert.Equal("100-1", ff[0].ID)
	assert.Equal("POST", ff[0].Method)
	assert.Equal("HTTP/1.1", ff[0].Protocol)
	assert.Equal("user=admin\n&x=1", ff[0].Body)
	assert.Equal([]fixtureHeader{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}, {Name: "User-Agent", Value: "ModSecurity CRS 3 Tests"}}, ff[0].Headers)
	assert.Equal([]int{100}, ff[0].ExpectRules)

	assert.Equal("100-2#1", ff[1].ID)
	assert.Equal("GET", ff[1].Method)
	assert.Equal([]int{200}, ff[1].ExpectNotRules)
	assert.Equal("100-2#2", ff[2].ID)
	assert.Equal([]int{100}, ff[2].ExpectNotRules)
}

func TestLoadCRSFixturesErrors(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	_, err := loadCRSFixtures(dir)
	assert.NotNil(err)

	require.Nil(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("tests:\n  - test_title: x\n    stages:\n      - stage:\n          output:\n            log_contains: no id here\n"), 0644))
	_, err = loadCRSFixtures(dir)
	assert.NotNil(err)
}

func TestEvalCmdCRS(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	configPath, _, dir := writeTestFiles(t, "", testTransactions)
	crsPath := filepath.Join(dir, "crs", "100.yaml")
	require.Nil(t, os.MkdirAll(filepath.Dir(crsPath), 0755))
	crs := `
tests:
  - test_title: id-1
    stages:
      - stage:
          input:
            uri: /?id=1
          output:
            log_contains: id "100"
  - test_title: id-2
    stages:
      - stage:
          input:
            uri: /?id=2
          output:
            log_contains: id "100"
`
	require.Nil(t, os.WriteFile(crsPath, []byte(crs), 0644))

	// Act
	out, _, err := runCmd("eval", "-c", configPath, "-t", filepath.Dir(crsPath), "--crs")

	// Assert
	assert.NotNil(err)
	assert.Contains(out, "ok   id-1 Block rules=[100,900]")
	assert.Contains(out, "FAIL id-2 Pass rules=[900] missing=[100]")
}
