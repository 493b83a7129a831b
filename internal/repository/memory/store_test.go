package memory

import (
	"testing"

	"bitpredict/internal/repository"
	"bitpredict/internal/repository/repositorytest"
)

func TestStoreContract(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) repository.GuessRepository {
		return New()
	})
}
