package memory

import (
	"testing"

	"github.com/JonMunkholm/testcatalog/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return New() })
}
