package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"secwaf/testutils"
	"secwaf/waf"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleEvaluated(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	fileSystem := &mockFileSystem{fmap: make(map[string]*mockFile)}
	logger, err := NewFileResultsLogger(fileSystem, testutils.NewTestLogger(t), "/var/log/secwaf")
	require.Nil(t, err)
	ev := waf.EvaluationEvent{
		TransactionID: "abc",
		RuleID:        11,
		Phase:         2,
		Matched:       true,
		ShouldLog:     true,
		Decision:      waf.Block,
		Actions:       []string{"deny", "msg"},
		Msg:           "abc",
		LogData:       "bce",
	}

	// Act
	logger.RuleEvaluated(ev)
	logger.PhaseCompleted("abc", 2, waf.Block)
	err = logger.Close()

	// Assert
	assert.Nil(err)
	expected := `{"operationName":"SecRuleEvaluation","category":"FirewallRuleLog","properties":{"transactionId":"abc","ruleId":"11","phase":2,"message":"abc","action":"Blocked","details":{"message":"bce","actions":["deny","msg"]}}}` + "\n" +
		`{"operationName":"SecRuleEvaluation","category":"FirewallDecisionLog","properties":{"transactionId":"abc","phase":2,"message":"Transaction Block","action":"Blocked","details":{"message":""}}}` + "\n"
	f := fileSystem.Get("/var/log/secwaf/" + FileName)
	assert.Equal(expected, f.Content)
	assert.True(f.closed)
}

func TestRuleEvaluatedFiltersEvents(t *testing.T) {
	type testcase struct {
		ev       waf.EvaluationEvent
		expected string
	}
	tests := []testcase{
		{waf.EvaluationEvent{RuleID: 1, Phase: 1}, ""},
		{waf.EvaluationEvent{RuleID: 2, Phase: 1, Matched: true}, ""},
		{waf.EvaluationEvent{RuleID: 3, Phase: 1, Matched: true, ShouldLog: true}, `"action":"Matched"`},
		{waf.EvaluationEvent{RuleID: 4, Phase: 1, Matched: true, ShouldLog: true, Decision: waf.Allow}, `"action":"Allowed"`},
		{waf.EvaluationEvent{RuleID: 5, Phase: 1, Err: errors.New("operator failed")}, `"action":"Error","details":{"message":"","error":"operator failed"}`},
		{waf.EvaluationEvent{RuleID: 6, Phase: 1, Matched: true, ShouldLog: true, SkippedValues: 2}, `"skippedValues":2`},
	}

	var b strings.Builder
	for _, test := range tests {
		fileSystem := &mockFileSystem{fmap: make(map[string]*mockFile)}
		logger, err := NewFileResultsLogger(fileSystem, testutils.NewTestLogger(t), "/log")
		require.Nil(t, err)

		logger.RuleEvaluated(test.ev)
		logger.Close()
		content := fileSystem.Get("/log/" + FileName).Content

		if test.expected == "" && content != "" {
			b.WriteString("Unexpected log line for rule " + content)
		}
		if test.expected != "" && !strings.Contains(content, test.expected) {
			b.WriteString("Log line " + content + " did not contain " + test.expected + "\n")
		}
	}

	if b.Len() > 0 {
		t.Fatalf("\n%s", b.String())
	}
}

func TestPhaseCompletedPassIsNotLogged(t *testing.T) {
	// Arrange
	fileSystem := &mockFileSystem{fmap: make(map[string]*mockFile)}
	logger, err := NewFileResultsLogger(fileSystem, testutils.NewTestLogger(t), "/log")
	require.Nil(t, err)

	// Act
	logger.PhaseCompleted("abc", 1, waf.Pass)
	logger.Close()

	// Assert
	assert.Equal(t, "", fileSystem.Get("/log/"+FileName).Content)
}

func TestFileResultsLoggerConcurrentWriters(t *testing.T) {
	// Arrange
	fileSystem := &mockFileSystem{fmap: make(map[string]*mockFile)}
	logger, err := NewFileResultsLogger(fileSystem, testutils.NewTestLogger(t), "/log")
	require.Nil(t, err)

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.RuleEvaluated(waf.EvaluationEvent{RuleID: i, Matched: true, ShouldLog: true})
		}(i)
	}
	wg.Wait()
	logger.Close()

	// Assert
	lines := strings.Split(strings.TrimSuffix(fileSystem.Get("/log/"+FileName).Content, "\n"), "\n")
	assert.Len(t, lines, 10)
}

func TestNewFileResultsLoggerOpenError(t *testing.T) {
	fileSystem := &mockFileSystem{fmap: make(map[string]*mockFile), openErr: errors.New("denied")}
	_, err := NewFileResultsLogger(fileSystem, testutils.NewTestLogger(t), "/log")
	assert.NotNil(t, err)
}

func TestZerologResultsLogger(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	var buf bytes.Buffer
	logger := NewZerologResultsLogger(zerolog.New(&buf))

	// Act
	logger.RuleEvaluated(waf.EvaluationEvent{RuleID: 1, Matched: true, ShouldLog: false})
	silenced := buf.Len()
	logger.RuleEvaluated(waf.EvaluationEvent{RuleID: 2, Matched: true, ShouldLog: true, Decision: waf.Block})
	logger.PhaseCompleted("abc", 1, waf.Block)

	// Assert
	assert.Equal(0, silenced)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var ruleLine, decisionLine struct {
		Category string           `json:"category"`
		Message  string           `json:"message"`
		Entry    firewallLogEntry `json:"entry"`
	}
	require.Nil(t, json.Unmarshal([]byte(lines[0]), &ruleLine))
	require.Nil(t, json.Unmarshal([]byte(lines[1]), &decisionLine))
	assert.Equal("Results log", ruleLine.Message)
	assert.Equal(categoryRule, ruleLine.Category)
	assert.Equal("2", ruleLine.Entry.Properties.RuleID)
	assert.Equal("Blocked", ruleLine.Entry.Properties.Action)
	assert.Equal(categoryDecision, decisionLine.Category)
	assert.Equal("abc", decisionLine.Entry.Properties.TransactionID)
}

type mockFile struct {
	Content string
	closed  bool
}

func (fs *mockFile) Append(content []byte) (err error) {
	fs.Content = fs.Content + string(content)
	return nil
}

func (fs *mockFile) Close() error {
	fs.closed = true
	return nil
}

type mockFileSystem struct {
	fmap    map[string]*mockFile
	openErr error
}

func (fs *mockFileSystem) MkdirAll(name string) error {
	return nil
}

func (fs *mockFileSystem) OpenAppend(name string) (LogFile, error) {
	if fs.openErr != nil {
		return nil, fs.openErr
	}
	mf := &mockFile{}
	fs.fmap[name] = mf
	return mf, nil
}

func (fs *mockFileSystem) Get(name string) *mockFile {
	return fs.fmap[name]
}
