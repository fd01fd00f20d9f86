package memstore

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"intraday/internal/store"
	"intraday/internal/store/storetest"
)

func TestMemStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{Factory: func() store.Store { return New() }})
}
