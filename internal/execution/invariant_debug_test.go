//go:build debug

package execution

import (
	"testing"

	"rbot_go/internal/domain"
)

func TestAppendDuplicatePanics(t *testing.T) {
	l := NewOrderList(domain.SideBuy)
	l.Append(limit("a", domain.SideBuy, "100", "10", 1))

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate order id")
		}
	}()
	l.Append(limit("a", domain.SideBuy, "120", "3", 1))
}
