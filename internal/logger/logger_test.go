package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoggerInit(t *testing.T) {
	if Logger == nil {
		t.Fatal("expected Logger to be initialized")
	}
	if Logger.Out != os.Stdout {
		t.Error("expected Logger output to be os.Stdout")
	}
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     logrus.Level
	}{
		{"unset", "", logrus.InfoLevel},
		{"debug", "debug", logrus.DebugLevel},
		{"warn", "warn", logrus.WarnLevel},
		{"uppercase", "ERROR", logrus.ErrorLevel},
		{"invalid falls back", "chatty", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.envValue)
			if got := levelFromEnv(logrus.InfoLevel); got != tt.want {
				t.Errorf("expected level %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	origLevel := Logger.GetLevel()
	defer Logger.SetLevel(origLevel)

	if err := SetLevel("DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %v", Logger.GetLevel())
	}

	if err := SetLevel("nope"); err == nil {
		t.Error("expected error for invalid level")
	}
	if Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected level to stay debug, got %v", Logger.GetLevel())
	}
}

func TestWithComponent(t *testing.T) {
	entry := WithComponent("trigger")
	if val := entry.Data["component"]; val != "trigger" {
		t.Errorf("expected component 'trigger', got '%v'", val)
	}
	if _, ok := entry.Data["resource"]; ok {
		t.Error("component entries carry no resource field")
	}
}

func TestWithResource(t *testing.T) {
	entry := WithResource("watcher", "/tmp/books/report.xlsx")

	if entry.Data["component"] != "watcher" {
		t.Errorf("expected component 'watcher', got '%v'", entry.Data["component"])
	}
	if entry.Data["resource"] != "report.xlsx" {
		t.Errorf("expected resource 'report.xlsx', got '%v'", entry.Data["resource"])
	}
}

func TestWithResource_Output(t *testing.T) {
	var buf bytes.Buffer
	origOut := Logger.Out
	Logger.SetOutput(&buf)
	origLevel := Logger.GetLevel()
	Logger.SetLevel(logrus.InfoLevel)
	defer func() {
		Logger.SetOutput(origOut)
		Logger.SetLevel(origLevel)
	}()

	WithResource("watcher", "/data/budget.xlsx").WithField("event", "cell_updated").Info("Event: [Sheet1] Cell updated A1 from 'a' to 'b'")

	line := buf.String()
	for _, want := range []string{"component=watcher", "resource=budget.xlsx", "event=cell_updated", "Cell updated A1"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in log line %q", want, line)
		}
	}
}
