package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/miner"
)

type mockMiner struct {
	mock.Mock
}

func (m *mockMiner) ID() string        { return m.Called().String(0) }
func (m *mockMiner) Initialized() bool { return m.Called().Bool(0) }
func (m *mockMiner) Killed() bool      { return m.Called().Bool(0) }

func (m *mockMiner) Start(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(json.RawMessage)
	return res, args.Error(1)
}

func (m *mockMiner) Stop(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(json.RawMessage)
	return res, args.Error(1)
}

func (m *mockMiner) Call(ctx context.Context, method string, callArgs ...interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, method, callArgs)
	res, _ := args.Get(0).(json.RawMessage)
	return res, args.Error(1)
}

var _ minerAPI = (*miner.Controller)(nil)

func TestRunShell(t *testing.T) {
	m := new(mockMiner)
	m.On("Start", mock.Anything).Return(nil, nil).Once()
	m.On("Call", mock.Anything, "getHashesPerSecond", []interface{}{}).Return(json.RawMessage(`17.5`), nil).Once()
	m.On("Call", mock.Anything, "setThrottle", []interface{}{json.RawMessage(`0.5`)}).Return(nil, errors.New("TypeError: not a function")).Once()
	m.On("Stop", mock.Anything).Return(json.RawMessage(`true`), nil).Once()
	m.On("ID").Return("ctrl-1")
	m.On("Initialized").Return(true)
	m.On("Killed").Return(false)

	in := strings.NewReader(strings.Join([]string{
		"",
		"start",
		"rpc getHashesPerSecond",
		"rpc setThrottle 0.5",
		"rpc",
		"status",
		"dance",
		"stop",
		"exit",
		"start",
	}, "\n"))
	var out bytes.Buffer

	err := runShell(context.Background(), in, &out, m, time.Minute, zap.NewNop())
	require.NoError(t, err)
	m.AssertExpectations(t)

	got := out.String()
	assert.Contains(t, got, "undefined\n")
	assert.Contains(t, got, "17.5\n")
	assert.Contains(t, got, "error: TypeError: not a function")
	assert.Contains(t, got, "error: usage: rpc <method>")
	assert.Contains(t, got, "controller ctrl-1 initialized=true killed=false")
	assert.Contains(t, got, `error: unknown command "dance"`)
	assert.Contains(t, got, "true\n")
	m.AssertNumberOfCalls(t, "Start", 1)
}

func TestRunShell_EOF(t *testing.T) {
	m := new(mockMiner)
	var out bytes.Buffer
	err := runShell(context.Background(), strings.NewReader("help\n"), &out, m, 0, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "rpc <method> [json-args...]")
}

func TestRunShell_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := runShell(ctx, strings.NewReader(""), &out, new(mockMiner), 0, zap.NewNop())
	assert.NoError(t, err)
}

func TestParseArgs(t *testing.T) {
	args := parseArgs([]string{"4", `{"a":1}`, "hello", `"quoted"`, "true"})
	require.Len(t, args, 5)
	assert.Equal(t, json.RawMessage(`4`), args[0])
	assert.Equal(t, json.RawMessage(`{"a":1}`), args[1])
	assert.Equal(t, "hello", args[2])
	assert.Equal(t, json.RawMessage(`"quoted"`), args[3])
	assert.Equal(t, json.RawMessage(`true`), args[4])
}

func TestCallAndPrint(t *testing.T) {
	m := new(mockMiner)
	m.On("Call", mock.Anything, "setNumThreads", []interface{}{json.RawMessage(`8`)}).Return(nil, nil).Once()
	m.On("Call", mock.Anything, "getTotalHashes", []interface{}{}).Return(json.RawMessage(`1024`), nil).Once()
	m.On("Call", mock.Anything, "boom", []interface{}{}).Return(nil, miner.ErrKilled).Once()

	var out bytes.Buffer
	require.NoError(t, callAndPrint(context.Background(), &out, m, "setNumThreads", []string{"8"}))
	require.NoError(t, callAndPrint(context.Background(), &out, m, "getTotalHashes", nil))
	err := callAndPrint(context.Background(), &out, m, "boom", nil)
	assert.ErrorIs(t, err, miner.ErrKilled)

	assert.Equal(t, "undefined\n1024\n", out.String())
	m.AssertExpectations(t)
}
