package integration

import (
	"fmt"
	"time"
)

// TestUser generates a unique test user email using a timestamp
func TestUser(suffix string) (email, name string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	name = "Test User"
	return
}
