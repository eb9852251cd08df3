package ruleparsing

import (
	"errors"
	"strings"
	"testing"

	sr "secwaf/secrule"
	ast "secwaf/secrule/ast"

	"github.com/stretchr/testify/assert"
)

func TestFileRuleLoader(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	rl := NewFileRuleLoader(NewRuleParser(), &mockRuleLoaderFileSystem{}, "file1.conf", "/rules/main.conf")

	// Act
	doc, err := rl.Rules()

	// Assert
	assert.Nil(err)
	var ids []int
	for _, r := range doc.Rules {
		ids = append(ids, r.ID)
	}
	assert.Equal([]int{12345, 100, 200}, ids)
	assert.Equal([]int{100}, doc.RemoveIDs)
	assert.Equal([]string{"attack-sqli"}, doc.RemoveTags)
}

func TestFileRuleLoaderPhraseFile(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	rl := NewFileRuleLoader(NewRuleParser(), &mockRuleLoaderFileSystem{}, "/rules/phrases.conf")

	// Act
	doc, err := rl.Rules()

	// Assert
	assert.Nil(err)
	assert.Len(doc.Rules, 1)
	op := doc.Rules[0].Op
	assert.Equal(ast.Pm, op.Op)
	assert.Equal([]string{"union select", "drop table"}, op.Phrases)
}

func TestFileRuleLoaderCycle(t *testing.T) {
	// Arrange
	rl := NewFileRuleLoader(NewRuleParser(), &mockRuleLoaderFileSystem{}, "/fileCycle1.conf")

	// Act
	_, err := rl.Rules()

	// Assert
	if err == nil {
		t.Fatalf("Expected an error but got nil")
	}

	if !strings.Contains(err.Error(), "cyclic include of /fileCycle1.conf via /fileCycle1.conf -> /someDir/fileCycle2.conf -> /someDir/fileCycle3.conf") {
		t.Fatalf("Did not get cyclic include error. Got: %s", err)
	}
}

func TestFileRuleLoaderSameIncludeTwice(t *testing.T) {
	// Arrange
	rl := NewFileRuleLoader(NewRuleParser(), &mockRuleLoaderFileSystem{}, "/twice.conf")

	// Act
	doc, err := rl.Rules()

	// Assert
	assert.Nil(t, err)
	assert.Len(t, doc.Rules, 2)
}

func TestFileRuleLoaderMissingFile(t *testing.T) {
	// Arrange
	rl := NewFileRuleLoader(NewRuleParser(), &mockRuleLoaderFileSystem{}, "/rules/missing.conf")

	// Act
	doc, err := rl.Rules()

	// Assert
	assert.Nil(t, doc)
	assert.ErrorContains(t, err, "failed to read rule file /rules/missing.conf")
}

func TestFileRuleLoaderParserError(t *testing.T) {
	// Arrange
	rl := NewFileRuleLoader(&mockRuleParser{err: errors.New("boom")}, &mockRuleLoaderFileSystem{}, "file1.conf")

	// Act
	doc, err := rl.Rules()

	// Assert
	assert.Nil(t, doc)
	assert.NotNil(t, err)
}

type mockRuleParser struct {
	err error
}

func (p *mockRuleParser) Parse(input string, pf sr.PhraseLoaderCb, ilcb sr.IncludeLoaderCb) (doc *sr.RuleDocument, err error) {
	return nil, p.err
}

var mockFSFiles = map[string]string{
	"file1.conf":               `SecRule ARGS helloworld "id:12345,deny"`,
	"/rules/main.conf":         "include crs/rules.conf\nSecRuleRemoveById 100\nSecRuleRemoveByTag attack-sqli\n",
	"/rules/crs/rules.conf":    "SecRule ARGS abc \"id:100,phase:2,tag:attack-sqli,deny\"\nSecRule ARGS xyz \"id:200,deny\"\n",
	"/rules/phrases.conf":      `SecRule ARGS "@pmFromFile data/sql.data" "id:300,deny"`,
	"/rules/data/sql.data":     "# SQL keywords\nunion select\n\ndrop table\n",
	"/fileCycle1.conf":         "include /someDir/fileCycle2.conf",
	"/someDir/fileCycle2.conf": "include fileCycle3.conf",
	"/someDir/fileCycle3.conf": "include ../fileCycle1.conf",
	"/twice.conf":              "include /once.conf\ninclude /once.conf\n",
	"/once.conf":               `SecRule ARGS abc "id:1,deny"`,
}

type mockRuleLoaderFileSystem struct{}

func (f *mockRuleLoaderFileSystem) ReadFile(filename string) ([]byte, error) {
	if s, ok := mockFSFiles[filename]; ok {
		return []byte(s), nil
	}

	return nil, errors.New("file not found")
}
func (f *mockRuleLoaderFileSystem) Abs(path string) (string, error)          { return path, nil }
func (f *mockRuleLoaderFileSystem) EvalSymlinks(path string) (string, error) { return path, nil }
