//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/testutil/containers"
)

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t, Schema)
	s := &contractSuite{store: NewPostgres(pg.DB)}
	s.reset = func() {
		if err := pg.Truncate(context.Background(), "transactions"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	suite.Run(t, s)
}
