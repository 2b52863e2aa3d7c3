package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/config"
	"github.com/dvloznov/contract-tracker/internal/logger"
	"github.com/dvloznov/contract-tracker/internal/store/inmemory"
)

func TestOpen_InMemoryWithoutDSN(t *testing.T) {
	ctx := logger.WithContext(context.Background(), zerolog.Nop())

	s, closeFn, err := Open(ctx, config.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*inmemory.Store); !ok {
		t.Errorf("store = %T, want *inmemory.Store", s)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}
