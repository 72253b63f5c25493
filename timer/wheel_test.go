package timer

import "testing"

func TestTimerFiresAfterDelay(t *testing.T) {
	var fired []Context
	w := New(1000, func(c Context) { fired = append(fired, c) })

	w.Add(1025, Context{ServiceID: 0x01000001, TimerID: 7})

	for ms := int64(1010); ms <= 1040; ms += 10 {
		w.Update(ms)
	}

	if len(fired) != 1 {
		t.Fatalf("expected exactly one fire, got %d", len(fired))
	}
	if fired[0].TimerID != 7 {
		t.Fatalf("unexpected timer id: %d", fired[0].TimerID)
	}
}

func TestTimerFiresOnceEvenWithMultiTickUpdate(t *testing.T) {
	count := 0
	w := New(0, func(Context) { count++ })
	w.Add(50, Context{TimerID: 1})
	w.Update(200) // jumps 20 ticks in one call
	if count != 1 {
		t.Fatalf("expected single fire, got %d", count)
	}
}

func TestLongDelayCascades(t *testing.T) {
	fired := false
	w := New(0, func(Context) { fired = true })
	// delay spans multiple wheel levels (255*10 = 2550ms is level-0 span)
	w.Add(5000, Context{TimerID: 42})
	for ms := int64(10); ms <= 5010; ms += 10 {
		w.Update(ms)
	}
	if !fired {
		t.Fatal("expected long-delay timer to eventually fire")
	}
}

func TestZeroAndNegativeDeltaClampToOneTick(t *testing.T) {
	count := 0
	w := New(1000, func(Context) { count++ })
	w.Add(999, Context{TimerID: 1}) // expiry in the past
	w.Update(1010)
	if count != 1 {
		t.Fatalf("expected immediate-ish fire on next tick, got %d", count)
	}
}
