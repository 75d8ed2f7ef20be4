package bus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/internal/governor"
)

func TestParseProfileSignal(t *testing.T) {
	ok := &dbus.Signal{Path: profileSignalPath, Body: []interface{}{"performance"}}
	p, valid := parseProfileSignal(ok)
	require.True(t, valid)
	assert.Equal(t, governor.ProfilePerformance, p)

	wrongPath := &dbus.Signal{Path: "/other", Body: []interface{}{"performance"}}
	_, valid = parseProfileSignal(wrongPath)
	assert.False(t, valid)

	badName := &dbus.Signal{Path: profileSignalPath, Body: []interface{}{"turbo"}}
	_, valid = parseProfileSignal(badName)
	assert.False(t, valid)

	noBody := &dbus.Signal{Path: profileSignalPath}
	_, valid = parseProfileSignal(noBody)
	assert.False(t, valid)
}

func TestFileSource_EmitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile")
	require.NoError(t, os.WriteFile(path, []byte("balanced"), 0o644))

	src, err := NewFileSource(path, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	select {
	case p := <-src.Events():
		assert.Equal(t, governor.ProfileBalanced, p)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial profile event")
	}

	require.NoError(t, os.WriteFile(path, []byte("performance"), 0o644))

	select {
	case p := <-src.Events():
		assert.Equal(t, governor.ProfilePerformance, p)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write event")
	}
}

func TestFileSource_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile")
	require.NoError(t, os.WriteFile(path, []byte("balanced"), 0o644))

	src, err := NewFileSource(path, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	<-src.Events() // drain the initial read

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated"), []byte("x"), 0o644))

	select {
	case p := <-src.Events():
		t.Fatalf("unexpected event for unrelated file: %v", p)
	case <-time.After(200 * time.Millisecond):
	}
}
