package reload

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodevd/daemon/internal/module"
)

func TestDefaultVerifier_SmokeDelegatesToHealthCheck(t *testing.T) {
	inst := newFakeInstance(module.Metadata{Name: "x", Version: "1.0.0"})
	inst.healthy = false

	v := NewDefaultVerifier(nil)
	err := v.Verify(context.Background(), VerificationSmoke, inst)
	require.Error(t, err)
}

func TestDefaultVerifier_UnregisteredKindPassesTrivially(t *testing.T) {
	inst := newFakeInstance(module.Metadata{Name: "x", Version: "1.0.0"})
	v := NewDefaultVerifier(nil)
	assert.NoError(t, v.Verify(context.Background(), VerificationContract, inst))
}

func TestDefaultVerifier_RegisteredProbeRuns(t *testing.T) {
	inst := newFakeInstance(module.Metadata{Name: "x", Version: "1.0.0"})
	called := false
	v := NewDefaultVerifier(map[VerificationKind]ProbeFunc{
		VerificationSecurity: func(context.Context, module.Interface) error {
			called = true
			return errors.New("denied call not rejected")
		},
	})
	err := v.Verify(context.Background(), VerificationSecurity, inst)
	assert.True(t, called)
	assert.Error(t, err)
}
