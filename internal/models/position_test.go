package models

import (
	"math"
	"testing"
)

func filledRecord(entry float64) ExecutionRecord {
	return ExecutionRecord{
		Token:            "54321",
		OptionSymbol:     "RELIANCE25SEP251400CE",
		UnderlyingSymbol: "RELIANCE",
		OptionType:       RightCall,
		Strike:           140000,
		EntryPrice:       entry,
		LotSize:          250,
		NotionalCost:     entry * 250,
		OrderID:          "ORD-1",
	}
}

func TestNewPosition(t *testing.T) {
	pos, err := NewPosition("p1", filledRecord(100), 5.0)
	if err != nil {
		t.Fatalf("NewPosition returned error: %v", err)
	}
	if pos.State != StateActive {
		t.Errorf("new position state = %s, expected %s", pos.State, StateActive)
	}
	if pos.HighPrice != 100 {
		t.Errorf("initial high = %v, expected entry price 100", pos.HighPrice)
	}
	if math.Abs(pos.StopPrice-95) > 1e-9 {
		t.Errorf("initial stop = %v, expected 95", pos.StopPrice)
	}
}

func TestNewPositionRejectsUnfilledRecord(t *testing.T) {
	rec := filledRecord(100)
	rec.OrderID = ""
	if _, err := NewPosition("p1", rec, 5.0); err == nil {
		t.Fatal("expected error for record without order id")
	}
}

func TestNewPositionRejectsBadStopPct(t *testing.T) {
	for _, pct := range []float64{0, -1, 100, 150} {
		if _, err := NewPosition("p1", filledRecord(100), pct); err == nil {
			t.Errorf("expected error for stop pct %v", pct)
		}
	}
}

// Walks the documented trailing sequence: entry 100 at 5%, rally to 110,
// pullbacks that hold and then breach the ratcheted stop.
func TestTrailingStopSequence(t *testing.T) {
	pos, err := NewPosition("p1", filledRecord(100), 5.0)
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}

	if !pos.RaiseHigh(110, 5.0) {
		t.Fatal("expected high to ratchet on ltp 110")
	}
	if pos.HighPrice != 110 {
		t.Errorf("high = %v, expected 110", pos.HighPrice)
	}
	if math.Abs(pos.StopPrice-104.5) > 1e-9 {
		t.Errorf("stop = %v, expected 104.5", pos.StopPrice)
	}

	// Pullback above the stop: no ratchet, no breach.
	if pos.RaiseHigh(105, 5.0) {
		t.Error("ltp 105 below high water mark must not ratchet")
	}
	if math.Abs(pos.StopPrice-104.5) > 1e-9 {
		t.Errorf("stop moved on pullback: %v", pos.StopPrice)
	}
	if pos.StopBreached(105) {
		t.Error("ltp 105 above stop 104.5 must not breach")
	}

	if !pos.StopBreached(104) {
		t.Error("ltp 104 at/below stop 104.5 must breach")
	}

	if err := pos.Close(104, "ORD-EXIT"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pos.State != StateClosed {
		t.Errorf("state after close = %s, expected %s", pos.State, StateClosed)
	}
	if pos.Active() {
		t.Error("closed position reported active")
	}
	if pos.ExitPrice != 104 || pos.ExitOrderID != "ORD-EXIT" {
		t.Errorf("exit fields = %v / %q", pos.ExitPrice, pos.ExitOrderID)
	}
}

func TestRaiseHighEqualPriceRecomputes(t *testing.T) {
	pos, err := NewPosition("p1", filledRecord(100), 5.0)
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}
	// Equal to the high counts as a ratchet; the stop stays put.
	if !pos.RaiseHigh(100, 5.0) {
		t.Error("ltp equal to high should ratchet")
	}
	if math.Abs(pos.StopPrice-95) > 1e-9 {
		t.Errorf("stop = %v, expected 95", pos.StopPrice)
	}
}

func TestCloseTwiceFails(t *testing.T) {
	pos, err := NewPosition("p1", filledRecord(100), 5.0)
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}
	if err := pos.Close(90, ""); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := pos.Close(80, ""); err == nil {
		t.Fatal("second close must fail: closed is terminal")
	}
}

func TestTransitionTable(t *testing.T) {
	if !CanTransition(StateActive, StateClosed, ConditionStopTriggered) {
		t.Error("active -> closed on stop_triggered must be allowed")
	}
	if CanTransition(StateClosed, StateActive, ConditionStopTriggered) {
		t.Error("closed -> active must not be allowed")
	}
	if _, err := Transition(StateClosed, StateClosed, ConditionStopTriggered); err == nil {
		t.Error("transition out of closed must error")
	}
}
