package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCauseButRendersMessage(t *testing.T) {
	cause := errors.New(`pq: duplicate key value violates unique constraint "kyc_documents_principal_id_key"`)
	err := Wrap(cause, CodeInternal, "failed to create KYC document")

	require.ErrorIs(t, err, cause)
	de, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "failed to create KYC document", de.Message)
	assert.NotContains(t, de.Message, "kyc_documents_principal_id_key")
	assert.Equal(t, "failed to create KYC document", err.Error())

	outer := fmt.Errorf("submit kyc: %w", err)
	assert.NotContains(t, outer.Error(), "duplicate key")
}

func TestReasonSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("approve doctor: %w", NewReason(CodeForbidden, ReasonWrongRole, "permission denied"))

	assert.True(t, HasCode(err, CodeForbidden))
	assert.True(t, HasReason(err, ReasonWrongRole))
	assert.False(t, HasReason(err, ReasonNoRole))
	assert.Equal(t, ReasonWrongRole, ReasonOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{New(CodeValidation, "bad"), KindValidation},
		{New(CodeInvalidInput, "bad"), KindValidation},
		{New(CodeUnauthorized, "who"), KindAuthentication},
		{NewReason(CodeForbidden, ReasonApprovalPending, "no"), KindAuthorization},
		{NewReason(CodeConflict, ReasonInvalidTransition, "no"), KindState},
		{NewReason(CodeConflict, ReasonAlreadySubmitted, "no"), KindState},
		{NewReason(CodeNotFound, ReasonNotFound, "gone"), KindNotFound},
		{errors.New("driver: connection reset"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), tt.err.Error())
	}
}
