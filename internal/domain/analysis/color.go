package analysis

import "fmt"

type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// Sign is +1 for White and -1 for Black.
func (c Color) Sign() int {
	if c == Black {
		return -1
	}
	return 1
}

func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(data []byte) error {
	parsed, err := ParseColor(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseColor(s string) (Color, error) {
	switch s {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	}
	return White, fmt.Errorf("unknown color %q", s)
}
