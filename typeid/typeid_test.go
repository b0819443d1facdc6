package typeid

import "testing"

type fooPayload struct{ X int }
type barPayload struct{ Y string }

func TestRegisterThenLookupReturnsTheRegisteredName(t *testing.T) {
	r := NewRegistry()
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	name, err := r.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if name != "foo" {
		t.Errorf("Lookup(1) = %q, want %q", name, "foo")
	}
}

func TestRegisterSameIDAndNameIsIdempotent(t *testing.T) {
	r := NewRegistry()
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Errorf("re-registering the same (id, name) returned an error: %v", err)
	}
}

func TestRegisterCollisionOnSameIDDifferentName(t *testing.T) {
	r := NewRegistry()
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := Register[barPayload](r, 1, "bar")
	if err == nil {
		t.Fatalf("expected a collision error, got nil")
	}
	if _, ok := err.(*ErrCollision); !ok {
		t.Errorf("expected *ErrCollision, got %T", err)
	}
}

func TestLookupUnregisteredReturnsErrUnregistered(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(99); err == nil {
		t.Fatalf("expected an error looking up an unregistered id")
	} else if _, ok := err.(*ErrUnregistered); !ok {
		t.Errorf("expected *ErrUnregistered, got %T", err)
	}
}

func TestMustZeroReturnsAPointerToTheRegisteredType(t *testing.T) {
	r := NewRegistry()
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	target := r.MustZero(1)
	ptr, ok := target.(*fooPayload)
	if !ok {
		t.Fatalf("MustZero returned %T, want *fooPayload", target)
	}
	if ptr.X != 0 {
		t.Errorf("MustZero did not return a zeroed value")
	}
}

func TestMustZeroPanicsOnUnregisteredID(t *testing.T) {
	r := NewRegistry()
	defer func() {
		if recover() == nil {
			t.Errorf("MustZero on an unregistered id did not panic")
		}
	}()
	r.MustZero(123)
}

func TestRegisteredReflectsRegistrationState(t *testing.T) {
	r := NewRegistry()
	if r.Registered(1) {
		t.Errorf("Registered(1) = true before any registration")
	}
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !r.Registered(1) {
		t.Errorf("Registered(1) = false after registration")
	}
}

func TestIDsReturnsAscendingOrderRegardlessOfRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	if err := Register[barPayload](r, 5, "bar"); err != nil {
		t.Fatalf("Register(5): %v", err)
	}
	if err := Register[fooPayload](r, 1, "foo"); err != nil {
		t.Fatalf("Register(1): %v", err)
	}
	ids := r.IDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 5 {
		t.Errorf("IDs() = %v, want [1 5]", ids)
	}
}
