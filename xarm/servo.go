package xarm

// Servo is a record of one bus servo's commanded or last-read state.
// It stores the raw position; the angle view is derived, so the two
// can never disagree. Position and angle mutations are validated, not
// clamped.
//
// A *Servo passed to Controller.Move or a position query is updated in
// place with the position the operation resolved. It is a transient
// value object: do not share one record between concurrent operations.
type Servo struct {
	id       int
	position int
}

// NewServo creates a record for the given servo ID at the centered
// default position (500 units, 0.0 degrees).
func NewServo(id int) (*Servo, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return &Servo{id: id, position: PositionCenter}, nil
}

// NewServoAt creates a record at a raw position.
func NewServoAt(id, position int) (*Servo, error) {
	s, err := NewServo(id)
	if err != nil {
		return nil, err
	}
	if err := s.SetPosition(position); err != nil {
		return nil, err
	}
	return s, nil
}

// NewServoAtAngle creates a record at an angle in degrees.
func NewServoAtAngle(id int, degrees float64) (*Servo, error) {
	s, err := NewServo(id)
	if err != nil {
		return nil, err
	}
	if err := s.SetAngle(degrees); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the servo's bus ID.
func (s *Servo) ID() int {
	return s.id
}

// Position returns the raw position in units.
func (s *Servo) Position() int {
	return s.position
}

// Angle returns the position as degrees on the 0.25 degree grid.
func (s *Servo) Angle() float64 {
	return ToAngle(s.position)
}

// SetPosition updates the record's raw position.
func (s *Servo) SetPosition(position int) error {
	if err := validatePosition(position); err != nil {
		return err
	}
	s.position = position
	return nil
}

// SetAngle updates the record's position from degrees.
func (s *Servo) SetAngle(degrees float64) error {
	if degrees < AngleMin || degrees > AngleMax {
		return &ArgumentError{Param: "angle", Value: degrees, Reason: "must be between -125.0 and 125.0 degrees"}
	}
	s.position = ToPosition(degrees)
	return nil
}

func validateID(id int) error {
	if id < MinServoID || id > MaxServoID {
		return &ArgumentError{Param: "servo ID", Value: id, Reason: "must be between 1 and 254"}
	}
	return nil
}

func validatePosition(position int) error {
	if position < PositionMin || position > PositionMax {
		return &ArgumentError{Param: "position", Value: position, Reason: "must be between 0 and 1000"}
	}
	return nil
}

// Target selects a servo for a controller operation. A target is one
// of: ID (bare servo ID at its current/default position), Position
// (ID + raw units), Angle (ID + degrees), or a *Servo record. Records
// are resolved to themselves, so query results land in the caller's
// record.
type Target interface {
	resolve() (*Servo, error)
}

func (s *Servo) resolve() (*Servo, error) {
	if s == nil {
		return nil, &ArgumentError{Param: "target", Value: nil, Reason: "nil servo record"}
	}
	return s, nil
}

type idTarget int

func (t idTarget) resolve() (*Servo, error) {
	return NewServo(int(t))
}

// ID targets a servo by bare ID.
func ID(id int) Target {
	return idTarget(id)
}

type positionTarget struct {
	id       int
	position int
}

func (t positionTarget) resolve() (*Servo, error) {
	return NewServoAt(t.id, t.position)
}

// Position targets a servo with a raw position in units.
func Position(id, position int) Target {
	return positionTarget{id: id, position: position}
}

type angleTarget struct {
	id      int
	degrees float64
}

func (t angleTarget) resolve() (*Servo, error) {
	return NewServoAtAngle(t.id, t.degrees)
}

// Angle targets a servo with an angle in degrees.
func Angle(id int, degrees float64) Target {
	return angleTarget{id: id, degrees: degrees}
}

// resolveTargets normalizes every target in one pass. Any invalid
// target fails the whole batch before anything touches the transport.
func resolveTargets(targets []Target) ([]*Servo, error) {
	servos := make([]*Servo, len(targets))
	for i, t := range targets {
		if t == nil {
			return nil, &ArgumentError{Param: "target", Value: nil, Reason: "nil target"}
		}
		s, err := t.resolve()
		if err != nil {
			return nil, err
		}
		servos[i] = s
	}
	return servos, nil
}
