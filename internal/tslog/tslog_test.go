package tslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFileLogger(t *testing.T, level Level) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("os.Create: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return New(level, "", f), path
}

func readAll(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile: %v", err)
	}
	return string(data)
}

func TestLoggerFiltersBelowItsLevel(t *testing.T) {
	l, path := newFileLogger(t, LevelWarn)
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := readAll(t, path)
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("log below configured level was written: %q", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Errorf("log at or above configured level was dropped: %q", out)
	}
}

func TestSetLevelChangesFilteringAtRuntime(t *testing.T) {
	l, path := newFileLogger(t, LevelError)
	l.Infof("before")
	l.SetLevel(LevelInfo)
	l.Infof("after")

	out := readAll(t, path)
	if strings.Contains(out, "before") {
		t.Errorf("log written before SetLevel raised the threshold: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("log written after SetLevel was dropped: %q", out)
	}
}

func TestNilLoggerDiscardsEverythingWithoutPanicking(t *testing.T) {
	var l *Logger
	l.SetLevel(LevelDebug)
	l.Debugf("should not panic")
	l.Errorf("neither should this")
}

func TestSetDefaultReplacesThePackageLevelLogger(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	l, path := newFileLogger(t, LevelInfo)
	SetDefault(l)
	if Default() != l {
		t.Fatal("SetDefault did not replace the package-level logger")
	}
	Default().Infof("via default")

	out := readAll(t, path)
	if !strings.Contains(out, "via default") {
		t.Errorf("log through Default() was not written: %q", out)
	}
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	SetDefault(nil)
	if Default() != original {
		t.Error("SetDefault(nil) replaced the default logger")
	}
}
