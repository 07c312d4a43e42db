package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type registerPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,max=255"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(&registerPayload{
		Email:    "user@example.com",
		Password: "secret1",
		Name:     "User",
	})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(&registerPayload{Email: "nope", Password: "123"})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)

	fields := make(map[string]string, len(failures))
	for _, failure := range failures {
		fields[failure.Field] = failure.Tag
	}

	require.Equal(t, "email", fields["email"])
	require.Equal(t, "min", fields["password"])
	require.Equal(t, "required", fields["name"])
}
