package portalgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisStoreKeyPrefix(t *testing.T) {
	plain := NewRedisStore(nil, "")
	assert.Equal(t, "patients:42", plain.key("patients:42"))

	prefixed := NewRedisStore(nil, "portalgate")
	assert.Equal(t, "portalgate:patients:42", prefixed.key("patients:42"))
	assert.Equal(t, "portalgate:auth:access", prefixed.key(credAccessKey))
}

func TestRedisStoreImplementsDurableStore(t *testing.T) {
	var store DurableStore = NewRedisStore(nil, "x")
	assert.NotNil(t, store)
}
