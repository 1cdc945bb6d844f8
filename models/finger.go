package models

import "fmt"

// Finger is one of the ten finger identifiers understood by fprintd.
type Finger string

const (
	RightThumb  Finger = "right-thumb"
	RightIndex  Finger = "right-index-finger"
	RightMiddle Finger = "right-middle-finger"
	RightRing   Finger = "right-ring-finger"
	RightLittle Finger = "right-little-finger"
	LeftThumb   Finger = "left-thumb"
	LeftIndex   Finger = "left-index-finger"
	LeftMiddle  Finger = "left-middle-finger"
	LeftRing    Finger = "left-ring-finger"
	LeftLittle  Finger = "left-little-finger"
)

// AllFingers lists every enrollable finger in the order the daemon documents them.
func AllFingers() []Finger {
	return []Finger{
		RightThumb,
		RightIndex,
		RightMiddle,
		RightRing,
		RightLittle,
		LeftThumb,
		LeftIndex,
		LeftMiddle,
		LeftRing,
		LeftLittle,
	}
}

var fingerDisplayNames = map[Finger]string{
	RightThumb:  "Right thumb",
	RightIndex:  "Right index finger",
	RightMiddle: "Right middle finger",
	RightRing:   "Right ring finger",
	RightLittle: "Right little finger",
	LeftThumb:   "Left thumb",
	LeftIndex:   "Left index finger",
	LeftMiddle:  "Left middle finger",
	LeftRing:    "Left ring finger",
	LeftLittle:  "Left little finger",
}

// ParseFinger validates a finger identifier received from a client.
func ParseFinger(s string) (Finger, error) {
	f := Finger(s)
	if _, ok := fingerDisplayNames[f]; !ok {
		return "", fmt.Errorf("unknown finger: %q", s)
	}
	return f, nil
}

// DisplayName returns the human readable name for the finger.
func (f Finger) DisplayName() string {
	if name, ok := fingerDisplayNames[f]; ok {
		return name
	}
	return string(f)
}

func (f Finger) String() string {
	return string(f)
}
