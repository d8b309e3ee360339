package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNamedNilIsNop(t *testing.T) {
	l := Named(nil, "costing")
	if l == nil {
		t.Fatal("expected a logger")
	}
	l.Info("dropped")
}

func TestNamedAddsComponent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Named(zap.New(core), "timetrack").Info("switched")

	entries := logs.All()
	if len(entries) != 1 || entries[0].LoggerName != "timetrack" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestMustPanicsOnError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Must(nil, errTest{})
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
