package xarm

import (
	"errors"
	"testing"
)

func TestServo_Defaults(t *testing.T) {
	s, err := NewServo(1)
	if err != nil {
		t.Fatalf("NewServo failed: %v", err)
	}
	if s.Position() != 500 {
		t.Errorf("default position: got %d, want 500", s.Position())
	}
	if s.Angle() != 0.0 {
		t.Errorf("default angle: got %v, want 0.0", s.Angle())
	}
}

func TestServo_InvalidID(t *testing.T) {
	var argErr *ArgumentError

	for _, id := range []int{0, -1, 255, 1000} {
		_, err := NewServo(id)
		if !errors.As(err, &argErr) {
			t.Errorf("NewServo(%d): got %v, want *ArgumentError", id, err)
		}
	}
}

func TestServo_PositionAngleConsistency(t *testing.T) {
	s, _ := NewServo(1)

	if err := s.SetPosition(300); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	if s.Angle() != -50.0 {
		t.Errorf("angle after SetPosition(300): got %v, want -50.0", s.Angle())
	}

	if err := s.SetAngle(12.5); err != nil {
		t.Fatalf("SetAngle failed: %v", err)
	}
	if s.Position() != 550 {
		t.Errorf("position after SetAngle(12.5): got %d, want 550", s.Position())
	}
}

func TestServo_RejectOutOfRange(t *testing.T) {
	var argErr *ArgumentError

	s, _ := NewServo(1)
	if err := s.SetPosition(1001); !errors.As(err, &argErr) {
		t.Errorf("SetPosition(1001): got %v, want *ArgumentError", err)
	}
	if err := s.SetPosition(-1); !errors.As(err, &argErr) {
		t.Errorf("SetPosition(-1): got %v, want *ArgumentError", err)
	}
	if err := s.SetAngle(125.25); !errors.As(err, &argErr) {
		t.Errorf("SetAngle(125.25): got %v, want *ArgumentError", err)
	}

	// Rejection leaves the record untouched.
	if s.Position() != 500 {
		t.Errorf("position mutated by rejected writes: got %d", s.Position())
	}

	if _, err := NewServoAt(1, 2000); !errors.As(err, &argErr) {
		t.Errorf("NewServoAt(1, 2000): got %v, want *ArgumentError", err)
	}
	if _, err := NewServoAtAngle(1, -140); !errors.As(err, &argErr) {
		t.Errorf("NewServoAtAngle(1, -140): got %v, want *ArgumentError", err)
	}
}

func TestTarget_Resolve(t *testing.T) {
	record, _ := NewServoAt(4, 650)

	servos, err := resolveTargets([]Target{
		ID(1),
		Position(2, 300),
		Angle(3, -25.0),
		record,
	})
	if err != nil {
		t.Fatalf("resolveTargets failed: %v", err)
	}

	if servos[0].ID() != 1 || servos[0].Position() != 500 {
		t.Errorf("ID target: got %d@%d, want 1@500", servos[0].ID(), servos[0].Position())
	}
	if servos[1].ID() != 2 || servos[1].Position() != 300 {
		t.Errorf("Position target: got %d@%d, want 2@300", servos[1].ID(), servos[1].Position())
	}
	if servos[2].ID() != 3 || servos[2].Position() != 400 {
		t.Errorf("Angle target: got %d@%d, want 3@400", servos[2].ID(), servos[2].Position())
	}
	if servos[3] != record {
		t.Errorf("record target must resolve to the same record")
	}
}

func TestTarget_ResolveAllOrNothing(t *testing.T) {
	var argErr *ArgumentError

	_, err := resolveTargets([]Target{ID(1), Position(2, 5000)})
	if !errors.As(err, &argErr) {
		t.Fatalf("got %v, want *ArgumentError", err)
	}
}
