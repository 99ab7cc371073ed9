package domain

import (
	"fmt"
	"strings"
)

// Student is one record of the student store. The JSON shape matches the
// data/students.json files written by earlier versions of the tool.
type Student struct {
	ID    string `json:"-" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Age   string `json:"age" yaml:"age"`
	Class string `json:"class" yaml:"class"`
	Phone string `json:"phone" yaml:"phone"`
}

func (s *Student) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: student name is required", ErrValidation)
	}
	return nil
}

// StudentPatch carries optional field updates; nil fields are left untouched.
type StudentPatch struct {
	Name  *string
	Age   *string
	Class *string
	Phone *string
}

// Apply updates s with every non-empty value of the patch.
func (p StudentPatch) Apply(s *Student) {
	apply := func(dst *string, src *string) {
		if src == nil {
			return
		}
		if v := strings.TrimSpace(*src); v != "" {
			*dst = v
		}
	}

	apply(&s.Name, p.Name)
	apply(&s.Age, p.Age)
	apply(&s.Class, p.Class)
	apply(&s.Phone, p.Phone)
}
