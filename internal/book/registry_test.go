package book

import "testing"

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.Register(Key("bybit", "linear", "BTCUSDT"), 10)
	if again := r.Register("bybit/linear/BTCUSDT", 99); again != a {
		t.Error("Register should return the existing book")
	}
	r.Register(Key("binance", "spot", "ETHUSDT"), 0)

	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "binance/spot/ETHUSDT" {
		t.Errorf("Keys() = %v", keys)
	}

	r.Unregister("binance/spot/ETHUSDT")
	if _, ok := r.Get("binance/spot/ETHUSDT"); ok {
		t.Error("book still registered after Unregister")
	}
	if ob, ok := r.Get("bybit/linear/BTCUSDT"); !ok || ob.Market() != "bybit/linear/BTCUSDT" {
		t.Error("Get() lost the remaining book")
	}
}
