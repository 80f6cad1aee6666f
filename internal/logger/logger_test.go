package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineRE = regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2} \d{1,2}:\d{1,2}:\d{1,2} ([EWID]): (.*)$`)

func TestWriter_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(NewWriter(&buf)).With().Timestamp().Logger()

	Warning(log).Msg("File C:\\app\\a.txt does not exist")
	Critical(log).Msg("No process name given")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	m := lineRE.FindStringSubmatch(lines[0])
	require.NotNil(t, m, "line %q does not match", lines[0])
	assert.Equal(t, "W", m[1])
	assert.Equal(t, "File C:\\app\\a.txt does not exist", m[2])

	m = lineRE.FindStringSubmatch(lines[1])
	require.NotNil(t, m, "line %q does not match", lines[1])
	assert.Equal(t, "E", m[1])
}

func TestWriter_FieldsAppended(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(NewWriter(&buf)).With().Timestamp().Logger()

	Warning(log).Str("archive", "app.zip").Msg("Unable to open zip file")

	assert.Contains(t, buf.String(), "W: Unable to open zip file")
	assert.Contains(t, buf.String(), "archive=app.zip")
}

func TestStamp_NoZeroPadding(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 9, 7, 2, 0, time.Local)
	assert.Equal(t, "2024/3/5 9:7:2", Stamp(ts))
}

func TestNew_FreshFileEachRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	cfg := DefaultConfig()
	cfg.FilePath = path
	l, err := New(cfg)
	require.NoError(t, err)

	Warning(l.Logger).Msg("current run")
	Critical(l.Logger).Msg("fatal")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "previous run")
	assert.Contains(t, string(data), "W: current run")
	assert.Contains(t, string(data), "E: fatal")
}

func TestNew_DefaultLevelDropsInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	cfg := DefaultConfig()
	cfg.FilePath = path
	var console bytes.Buffer
	cfg.Console = &console

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info().Msg("applied")
	Warning(l.Logger).Msg("warned")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "applied")
	assert.Contains(t, string(data), "warned")
	assert.Contains(t, console.String(), "W: warned")
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
