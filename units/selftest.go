package units

import (
	"errors"
	"fmt"

	"github.com/maxpert/unitsffi/bind"
	"github.com/rs/zerolog/log"
)

var ErrSelfTestFailed = errors.New("self test failed")

// Check is the outcome of one self test step.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SelfTest exercises aliasing, free functions and release against the loaded
// library. Every object it creates is released before it returns, which the
// final check verifies through the library's own live count.
func SelfTest(rt *bind.Runtime) ([]Check, error) {
	var checks []Check
	record := func(name string, passed bool, format string, args ...any) {
		c := Check{Name: name, Passed: passed, Detail: fmt.Sprintf(format, args...)}
		checks = append(checks, c)
		ev := log.Info()
		if !passed {
			ev = log.Error()
		}
		ev.Str("check", name).Bool("passed", passed).Str("detail", c.Detail).Msg("Self test")
	}

	before, err := LiveCount(rt)
	if err != nil {
		return checks, err
	}

	err = rt.Scope(func(s *bind.Scope) error {
		v, err := NewVec3WithValues(s, 10, 20, 30)
		if err != nil {
			return err
		}

		z, err := v.AsZ()
		if err != nil {
			return err
		}
		s.Adopt(z.Object())
		if err := z.SetZ(5); err != nil {
			return err
		}
		got, err := v.GetZ()
		if err != nil {
			return err
		}
		record("alias", got == 5, "write through Z view, Vec3.z=%d", got)

		sum, err := Sum(v, v, v)
		if err != nil {
			return err
		}
		record("sum_shared", sum == 35, "Sum(v, v, v)=%d", sum)

		if err := ZeroY(v); err != nil {
			return err
		}
		y, err := v.GetY()
		if err != nil {
			return err
		}
		record("zero_y", y == 0, "Vec3.y=%d after Units_Zero_Y", y)

		x, err := NewXWithValue(s, 1)
		if err != nil {
			return err
		}
		yy, err := NewYWithValue(s, 2)
		if err != nil {
			return err
		}
		zz, err := NewZWithValue(s, 3)
		if err != nil {
			return err
		}
		sum, err = Sum(x, yy, zz)
		if err != nil {
			return err
		}
		record("sum_separate", sum == 6, "Sum(x, y, z)=%d", sum)

		v4, err := NewVec4WithValues(s, 1, 2, 3, 4)
		if err != nil {
			return err
		}
		a, b, c, err := v4.GetVec3()
		if err != nil {
			return err
		}
		d, err := v4.GetD()
		if err != nil {
			return err
		}
		record("vec4", a == 1 && b == 2 && c == 3 && d == 4, "Vec4=(%d, %d, %d, %d)", a, b, c, d)
		return nil
	})
	if err != nil {
		return checks, err
	}

	after, err := LiveCount(rt)
	if err != nil {
		return checks, err
	}
	record("release", after == before, "live allocations %d before, %d after", before, after)

	for _, c := range checks {
		if !c.Passed {
			return checks, fmt.Errorf("%w: %s: %s", ErrSelfTestFailed, c.Name, c.Detail)
		}
	}
	return checks, nil
}
