package stakes

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNewConfig_SeedsAndSorts(t *testing.T) {
	c := NewConfig([]decimal.Decimal{d(10), d(1), d(5)})

	values, version := c.List()
	if version != 1 {
		t.Errorf("initial version should be 1, got %d", version)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	if !values[0].Equal(d(1)) || !values[2].Equal(d(10)) {
		t.Errorf("values should be sorted ascending: %v", values)
	}
}

func TestReplace_BumpsVersion(t *testing.T) {
	c := NewConfig(Defaults())

	_, before := c.List()
	if err := c.Replace([]decimal.Decimal{d(2.5), d(7)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values, after := c.List()

	if after != before+1 {
		t.Errorf("version should bump from %d, got %d", before, after)
	}
	if len(values) != 2 {
		t.Errorf("expected replaced list of 2, got %v", values)
	}
}

func TestReplace_Rejections(t *testing.T) {
	c := NewConfig(Defaults())

	if err := c.Replace(nil); !errors.Is(err, ErrEmptyList) {
		t.Errorf("expected ErrEmptyList, got %v", err)
	}
	if err := c.Replace([]decimal.Decimal{d(1), d(-2)}); !errors.Is(err, ErrNonPositive) {
		t.Errorf("expected ErrNonPositive, got %v", err)
	}
	if err := c.Replace([]decimal.Decimal{decimal.Zero}); !errors.Is(err, ErrNonPositive) {
		t.Errorf("expected ErrNonPositive for zero, got %v", err)
	}

	// Failed updates must not touch the list or version.
	values, version := c.List()
	if version != 1 || len(values) != len(Defaults()) {
		t.Errorf("rejected updates should leave config untouched: v%d %v", version, values)
	}
}

func TestAllowed(t *testing.T) {
	c := NewConfig([]decimal.Decimal{d(1), d(5), d(10)})

	if !c.Allowed(d(5)) {
		t.Error("5 should be allowed")
	}
	if !c.Allowed(decimal.RequireFromString("5.00")) {
		t.Error("5.00 should compare equal to 5")
	}
	if c.Allowed(d(4)) {
		t.Error("4 should not be allowed")
	}
}

func TestConcurrentReadsAndReplace(t *testing.T) {
	c := NewConfig(Defaults())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				values, _ := c.List()
				if len(values) == 0 {
					t.Error("list should never be observed empty")
					return
				}
				c.Allowed(d(5))
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Replace([]decimal.Decimal{d(1), d(2), d(3)})
			}
		}()
	}
	wg.Wait()
}
