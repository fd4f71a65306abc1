package main

import (
	"runtime"
	"testing"

	"modio-repo/logger"

	"go.uber.org/zap"
)

func TestSetMaxProcs(t *testing.T) {
	logger.Log = zap.NewNop().Sugar()
	before := runtime.GOMAXPROCS(0)

	undo := setMaxProcs()
	if undo == nil {
		t.Fatal("setMaxProcs() returned a nil undo func")
	}
	if got := runtime.GOMAXPROCS(0); got < 1 {
		t.Errorf("GOMAXPROCS = %d after setMaxProcs", got)
	}

	undo()
	if got := runtime.GOMAXPROCS(0); got != before {
		t.Errorf("GOMAXPROCS = %d after undo, want %d", got, before)
	}
}
