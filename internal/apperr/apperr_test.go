package apperr

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestValidation_MatchesSentinel(t *testing.T) {
	err := Validation("select at least one parcel")
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Equal(t, "select at least one parcel", Reason(err))
	assert.Equal(t, "validation failed: select at least one parcel", err.Error())
}

func TestValidation_SurvivesWrap(t *testing.T) {
	err := eris.Wrap(Validation("no parcels"), "workflow: confirm boundary")
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Equal(t, "no parcels", Reason(err))
}

func TestReason_Other(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "boom", Reason(errors.New("boom")))
}

