package uuid_test

import (
	"testing"

	"github.com/nogproject/luks-header-backup/backend/pkg/uuid"
	"github.com/stretchr/testify/require"
)

func TestIsCanonical(t *testing.T) {
	require.True(t, uuid.IsCanonical("12345678-1234-1234-1234-123456789abc"))
	require.False(t, uuid.IsCanonical("12345678-1234-1234-1234-123456789ABC"))
	require.False(t, uuid.IsCanonical("{12345678-1234-1234-1234-123456789abc}"))
	require.False(t, uuid.IsCanonical("1234"))
	require.False(t, uuid.IsCanonical(""))
}
