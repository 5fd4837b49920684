package uuid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGeneratesValidV4(t *testing.T) {
	id := New()
	assert.True(t, IsValid(id), "generated id %q is not a v4 uuid", id)
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		assert.False(t, seen[id], "duplicate uuid %s", id)
		seen[id] = true
	}
}

func TestNewLocal(t *testing.T) {
	id := NewLocal("local-")

	assert.True(t, strings.HasPrefix(id, "local-"))
	assert.True(t, IsValid(strings.TrimPrefix(id, "local-")))
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want bool
	}{
		{"valid v4", "f47ac10b-58cc-4372-a567-0e02b2c3d479", true},
		{"valid v4 uppercase", "6BA7B810-9DAD-41D1-80B4-00C04FD430C8", true},
		{"empty", "", false},
		{"too short", "f47ac10b-58cc-4372-a567", false},
		{"missing dashes", "f47ac10b58cc4372a5670e02b2c3d479", false},
		{"wrong version", "f47ac10b-58cc-1372-a567-0e02b2c3d479", false},
		{"wrong variant", "f47ac10b-58cc-4372-c567-0e02b2c3d479", false},
		{"garbage", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.uuid))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.Error(t, Validate("not-a-uuid"))
	assert.Error(t, Validate(""))
}
