package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
)

// ErrInvalidCityName is returned when a city name is empty or contains
// characters outside the allowed set.
var ErrInvalidCityName = errors.New("invalid city name")

// cityNamePattern allows Latin letters including the Latin-1 accented ranges,
// whitespace and hyphens, e.g. "New York", "São-Paulo".
var cityNamePattern = regexp.MustCompile(`^[A-Za-zÀ-ÖØ-öø-ÿ\s\-]+$`)

// ValidateCity returns nil if name is an acceptable city name. The input is not
// trimmed or normalized; callers use it verbatim as a storage key.
func ValidateCity(name string) error {
	if name == "" || !cityNamePattern.MatchString(name) {
		return apperrors.InvalidInput("validate city", fmt.Errorf("%w: %q", ErrInvalidCityName, name))
	}
	return nil
}
