package integration

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	TestPassword = "TestPassword123!"
	TestPIN      = "24680"

	testBcryptCost = bcrypt.MinCost
)

// TestAccount generates unique test account credentials using timestamp
func TestAccount(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	return email, TestPassword
}
