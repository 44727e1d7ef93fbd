package room

import (
	"fmt"

	"github.com/countkeeper/countkeeper/pkg/model"
)

// Key identifies one collaboration room: all live connections counting the
// same organizational unit in the same period.
type Key struct {
	Unit  string
	Month int
	Year  int
}

func NewKey(unit string, period model.Period) Key {
	return Key{Unit: unit, Month: period.Month, Year: period.Year}
}

func (k Key) Period() model.Period {
	return model.Period{Month: k.Month, Year: k.Year}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%02d/%d", k.Unit, k.Month, k.Year)
}
