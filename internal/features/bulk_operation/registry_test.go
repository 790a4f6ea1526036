package bulk_operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub(OperationDefinition{Type: "a"}, nil)))

	_, ok := r.Get("a")
	assert.True(t, ok)
	_, ok = r.Get("b")
	assert.False(t, ok)

	err := r.Register(newStub(OperationDefinition{Type: "a"}, nil))
	assert.Error(t, err, "duplicate registration must fail")

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newStub(OperationDefinition{}, nil)))
}

func TestRegistry_Inverse(t *testing.T) {
	r, err := NewRegistryWith(
		newStub(OperationDefinition{Type: "assign", InverseType: "unassign"}, nil),
		newStub(OperationDefinition{Type: "unassign"}, nil),
		newStub(OperationDefinition{Type: "dangling", InverseType: "missing"}, nil),
	)
	require.NoError(t, err)

	inv, err := r.Inverse("assign")
	require.NoError(t, err)
	assert.Equal(t, "unassign", inv.Definition().Type)

	_, err = r.Inverse("unassign")
	assert.ErrorIs(t, err, ErrNotReversible)

	_, err = r.Inverse("dangling")
	assert.ErrorIs(t, err, ErrNotReversible)

	_, err = r.Inverse("unknown")
	assert.ErrorIs(t, err, ErrInvalidOperationType)
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	r, err := NewRegistryWith(
		newStub(OperationDefinition{Type: "zeta"}, nil),
		newStub(OperationDefinition{Type: "alpha"}, nil),
	)
	require.NoError(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Type)
	assert.Equal(t, "zeta", defs[1].Type)
}

func TestIDKind_Validate(t *testing.T) {
	tests := []struct {
		kind  IDKind
		id    string
		valid bool
	}{
		{IDKindString, "anything", true},
		{IDKindString, "", false},
		{IDKindObjectID, "507f1f77bcf86cd799439011", true},
		{IDKindObjectID, "not-an-object-id", false},
		{IDKindUUID, "3f2504e0-4f89-11d3-9a0c-0305e82c3301", true},
		{IDKindUUID, "42", false},
		{IDKindNumeric, "42", true},
		{IDKindNumeric, "-7", true},
		{IDKindNumeric, "4.2", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.id, func(t *testing.T) {
			err := tt.kind.Validate(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
