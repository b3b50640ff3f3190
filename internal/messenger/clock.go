//go:generate go run go.uber.org/mock/mockgen -source=clock.go -destination=mocks/mock_clock.go -package=mocks
package messenger

import "time"

// Clock supplies message timestamps
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock reads the wall clock
var SystemClock Clock = systemClock{}
