package risk

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced score, assessment, model, determinant,
// or cohort does not exist for the tenant.
var ErrNotFound = errors.New("record not found")

// ErrInvalidState indicates an operation attempted on an assessment that is
// already completed or expired.
var ErrInvalidState = errors.New("assessment in terminal state")

// ErrInactiveModel indicates an analysis was requested against a model that
// is deactivated or outside its validity window.
var ErrInactiveModel = errors.New("predictive model is not active")

// MissingFeatureError indicates a predictive analysis was invoked without a
// feature the model declares as required.
type MissingFeatureError struct {
	Feature string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing input feature: %s", e.Feature)
}

// IsMissingFeature reports whether err is a MissingFeatureError.
func IsMissingFeature(err error) bool {
	var mfe *MissingFeatureError
	return errors.As(err, &mfe)
}
